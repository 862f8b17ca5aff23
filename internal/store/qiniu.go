package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"cdnsync/internal/deploy"
	"cdnsync/internal/etag"
	"cdnsync/internal/qiniu"
)

const (
	qiniuListLimit = 1000
	// qiniuBatchLimit is the service limit on operations per batch request.
	qiniuBatchLimit = 1000
	// qiniuCodeNoSuchFile is returned per entry by batch delete for keys
	// that do not exist.
	qiniuCodeNoSuchFile = 612
	// qiniuStatusPartial is returned by batch when some operations failed.
	qiniuStatusPartial = 298

	uploadTokenTTL = time.Hour
)

// QiniuOptions configures a QiniuStore.
type QiniuOptions struct {
	Bucket      string
	Credentials qiniu.Credentials
	// DownloadHost is the origin files are read back from, normally the
	// CDN domain bound to the bucket ("https://cdn.example.com").
	DownloadHost string
	// Service endpoints; empty values select the public defaults.
	RSHost  string
	RSFHost string
	UpHost  string
	Timeout time.Duration
}

// QiniuStore is a Store backed by a Qiniu Kodo bucket. Kodo's native object
// hash is the etag computed by package etag, so listings can be compared
// with local hashes directly.
type QiniuStore struct {
	name   string
	opts   QiniuOptions
	client *resty.Client
	now    func() time.Time
}

// NewQiniuStore creates a Qiniu store.
func NewQiniuStore(name string, opts QiniuOptions) (*QiniuStore, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("qiniu store %q: bucket is required", name)
	}
	if !opts.Credentials.Valid() {
		return nil, fmt.Errorf("qiniu store %q: access key and secret key are required", name)
	}
	if opts.DownloadHost == "" {
		return nil, fmt.Errorf("qiniu store %q: download host is required", name)
	}
	if opts.RSHost == "" {
		opts.RSHost = qiniu.DefaultRSHost
	}
	if opts.RSFHost == "" {
		opts.RSFHost = qiniu.DefaultRSFHost
	}
	if opts.UpHost == "" {
		opts.UpHost = qiniu.DefaultUpHost
	}
	opts.DownloadHost = strings.TrimRight(opts.DownloadHost, "/")

	return &QiniuStore{
		name:   name,
		opts:   opts,
		client: qiniu.NewClient(opts.Timeout),
		now:    time.Now,
	}, nil
}

type qiniuListItem struct {
	Key  string `json:"key"`
	Hash string `json:"hash"`
}

type qiniuListResponse struct {
	Marker string          `json:"marker"`
	Items  []qiniuListItem `json:"items"`
}

// List pages through the bucket listing.
func (s *QiniuStore) List(ctx context.Context, prefix string) ([]deploy.FileRecord, error) {
	var records []deploy.FileRecord
	marker := ""
	for {
		page, err := s.listPage(ctx, prefix, marker, qiniuListLimit)
		if err != nil {
			return nil, deploy.NewOpError("list", prefix, err)
		}
		for _, item := range page.Items {
			records = append(records, deploy.FileRecord{Filename: item.Key, Hash: item.Hash})
		}
		if page.Marker == "" {
			return records, nil
		}
		marker = page.Marker
	}
}

func (s *QiniuStore) listPage(ctx context.Context, prefix, marker string, limit int) (*qiniuListResponse, error) {
	query := url.Values{}
	query.Set("bucket", s.opts.Bucket)
	query.Set("limit", fmt.Sprint(limit))
	if prefix != "" {
		query.Set("prefix", prefix)
	}
	if marker != "" {
		query.Set("marker", marker)
	}
	pathAndQuery := "/list?" + query.Encode()

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Authorization", s.opts.Credentials.Authorization(pathAndQuery, nil)).
		Get(s.opts.RSFHost + pathAndQuery)
	if err != nil {
		return nil, fmt.Errorf("list request: %w", err)
	}
	if err := qiniu.CheckResponse(resp); err != nil {
		return nil, err
	}

	var page qiniuListResponse
	if err := json.Unmarshal(resp.Body(), &page); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}
	return &page, nil
}

// Fetch reads key back through the download host. A unique query string
// keeps CDN edges from answering with a cached copy.
func (s *QiniuStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Cache-Control", "no-cache").
		SetQueryParam("t", strconv.FormatInt(s.now().UnixNano(), 10)).
		Get(s.opts.DownloadHost + "/" + escapeKey(key))
	if err != nil {
		return nil, deploy.NewOpError("fetch", key, fmt.Errorf("download request: %w", err))
	}

	switch resp.StatusCode() {
	case http.StatusOK, http.StatusNotModified:
		return resp.Body(), nil
	case http.StatusNotFound:
		return nil, deploy.NewOpError("fetch", key, deploy.ErrNotFound)
	default:
		return nil, deploy.NewOpError("fetch", key, qiniu.CheckResponse(resp))
	}
}

type qiniuUploadResponse struct {
	Key  string `json:"key"`
	Hash string `json:"hash"`
}

// Upload sends the content as a form upload, overwriting any existing object.
func (s *QiniuStore) Upload(ctx context.Context, key string, r io.Reader, size int64) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", deploy.NewOpError("upload", key, fmt.Errorf("failed to read content: %w", err))
	}
	if int64(len(data)) != size {
		return "", deploy.NewOpError("upload", key, fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data)))
	}

	token, err := s.opts.Credentials.UploadToken(s.opts.Bucket, key, s.now().Add(uploadTokenTTL))
	if err != nil {
		return "", deploy.NewOpError("upload", key, err)
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetMultipartFormData(map[string]string{
			"token": token,
			"key":   key,
		}).
		SetMultipartField("file", path.Base(key), contentType(key, data), bytes.NewReader(data)).
		Post(s.opts.UpHost)
	if err != nil {
		return "", deploy.NewOpError("upload", key, fmt.Errorf("upload request: %w", err))
	}
	if err := qiniu.CheckResponse(resp); err != nil {
		return "", deploy.NewOpError("upload", key, err)
	}

	var out qiniuUploadResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", deploy.NewOpError("upload", key, fmt.Errorf("decode upload response: %w", err))
	}
	if out.Hash == "" {
		// Custom return bodies may omit the hash; what was sent is what is stored.
		return etag.Sum(data), nil
	}
	return out.Hash, nil
}

type qiniuBatchResult struct {
	Code int `json:"code"`
	Data struct {
		Error string `json:"error"`
	} `json:"data"`
}

// BatchDelete deletes keys with batch requests of at most 1000 operations.
func (s *QiniuStore) BatchDelete(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += qiniuBatchLimit {
		end := min(start+qiniuBatchLimit, len(keys))
		if err := s.deleteBatch(ctx, keys[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *QiniuStore) deleteBatch(ctx context.Context, keys []string) error {
	form := url.Values{}
	for _, key := range keys {
		form.Add("op", "/delete/"+qiniu.EncodedEntry(s.opts.Bucket, key))
	}
	body := []byte(form.Encode())

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetHeader("Authorization", s.opts.Credentials.Authorization("/batch", body)).
		SetBody(body).
		Post(s.opts.RSHost + "/batch")
	if err != nil {
		return deploy.NewOpError("delete", "", fmt.Errorf("batch request: %w", err))
	}
	if resp.StatusCode() != qiniuStatusPartial {
		if err := qiniu.CheckResponse(resp); err != nil {
			return deploy.NewOpError("delete", "", err)
		}
	}

	var results []qiniuBatchResult
	if err := json.Unmarshal(resp.Body(), &results); err != nil {
		return deploy.NewOpError("delete", "", fmt.Errorf("decode batch response: %w", err))
	}
	for i, res := range results {
		if res.Code == http.StatusOK || res.Code == qiniuCodeNoSuchFile {
			continue
		}
		key := ""
		if i < len(keys) {
			key = keys[i]
		}
		return deploy.NewOpError("delete", key, &qiniu.Error{StatusCode: res.Code, Message: res.Data.Error})
	}
	return nil
}

// ValidateSetup lists a single object to check bucket access and credentials.
func (s *QiniuStore) ValidateSetup(ctx context.Context) error {
	if _, err := s.listPage(ctx, "", "", 1); err != nil {
		return fmt.Errorf("qiniu bucket %s not accessible: %w", s.opts.Bucket, err)
	}
	return nil
}

// escapeKey escapes each path segment of key for use in a URL.
func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

// Compile-time check that QiniuStore implements deploy.Store interface
var _ deploy.Store = (*QiniuStore)(nil)
