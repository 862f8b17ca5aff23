// Package cdn provides clients for CDN cache control.
package cdn

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"cdnsync/internal/deploy"
	"cdnsync/internal/qiniu"
)

const (
	refreshPath  = "/v2/tune/refresh"
	prefetchPath = "/v2/tune/prefetch"
)

// QiniuCDN drives the Qiniu fusion CDN refresh and prefetch APIs.
type QiniuCDN struct {
	creds  qiniu.Credentials
	host   string
	client *resty.Client
}

// NewQiniuCDN creates a fusion CDN client. An empty host selects the
// public endpoint.
func NewQiniuCDN(creds qiniu.Credentials, host string, timeout time.Duration) (*QiniuCDN, error) {
	if !creds.Valid() {
		return nil, fmt.Errorf("qiniu cdn: access key and secret key are required")
	}
	if host == "" {
		host = qiniu.DefaultFusionHost
	}
	return &QiniuCDN{
		creds:  creds,
		host:   strings.TrimRight(host, "/"),
		client: qiniu.NewClient(timeout),
	}, nil
}

type fusionRequest struct {
	URLs []string `json:"urls"`
}

type fusionResponse struct {
	Code        int      `json:"code"`
	Error       string   `json:"error"`
	RequestID   string   `json:"requestId"`
	InvalidURLs []string `json:"invalidUrls"`
}

// Refresh invalidates the cached copies of urls.
func (c *QiniuCDN) Refresh(ctx context.Context, urls []string) error {
	return c.post(ctx, "refresh", refreshPath, urls)
}

// Prefetch asks the CDN to pull urls from the origin ahead of requests.
func (c *QiniuCDN) Prefetch(ctx context.Context, urls []string) error {
	return c.post(ctx, "prefetch", prefetchPath, urls)
}

func (c *QiniuCDN) post(ctx context.Context, op, path string, urls []string) error {
	if len(urls) == 0 {
		return nil
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", c.creds.Authorization(path, nil)).
		SetBody(fusionRequest{URLs: urls}).
		Post(c.host + path)
	if err != nil {
		return deploy.NewOpError(op, "", fmt.Errorf("%s request: %w", op, err))
	}
	if err := qiniu.CheckResponse(resp); err != nil {
		return deploy.NewOpError(op, "", err)
	}

	var out fusionResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return deploy.NewOpError(op, "", fmt.Errorf("decode %s response: %w", op, err))
	}
	if out.Code != 200 {
		return deploy.NewOpError(op, "", &qiniu.Error{StatusCode: out.Code, Message: out.Error, RequestID: out.RequestID})
	}
	return nil
}

// Compile-time check that QiniuCDN implements deploy.CDN interface
var _ deploy.CDN = (*QiniuCDN)(nil)
