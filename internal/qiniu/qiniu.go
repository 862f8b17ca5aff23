// Package qiniu holds the request signing and response handling shared by
// the Qiniu Kodo store and the Qiniu fusion CDN client.
package qiniu

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Default service endpoints.
const (
	DefaultRSHost     = "https://rs.qiniuapi.com"
	DefaultRSFHost    = "https://rsf.qiniuapi.com"
	DefaultUpHost     = "https://up.qiniup.com"
	DefaultFusionHost = "https://fusion.qiniuapi.com"

	// DefaultTimeout bounds every HTTP request.
	DefaultTimeout = 60 * time.Second
)

// Credentials is a Qiniu access key pair.
type Credentials struct {
	AccessKey string
	SecretKey string
}

// Valid reports whether both keys are set.
func (c Credentials) Valid() bool {
	return c.AccessKey != "" && c.SecretKey != ""
}

// Sign returns "<access key>:<signature>" for data.
func (c Credentials) Sign(data []byte) string {
	mac := hmac.New(sha1.New, []byte(c.SecretKey))
	mac.Write(data)
	return c.AccessKey + ":" + base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

// Authorization returns the QBox Authorization header value for a request
// to pathAndQuery. formBody is signed only for form-encoded requests and
// must be nil otherwise.
func (c Credentials) Authorization(pathAndQuery string, formBody []byte) string {
	data := make([]byte, 0, len(pathAndQuery)+1+len(formBody))
	data = append(data, pathAndQuery...)
	data = append(data, '\n')
	data = append(data, formBody...)
	return "QBox " + c.Sign(data)
}

// putPolicy is the upload policy embedded in an upload token.
type putPolicy struct {
	Scope    string `json:"scope"`
	Deadline int64  `json:"deadline"`
}

// UploadToken returns a token allowing one upload to bucket:key until
// deadline. Scoping the token to the key permits overwriting it.
func (c Credentials) UploadToken(bucket, key string, deadline time.Time) (string, error) {
	policy, err := json.Marshal(putPolicy{Scope: bucket + ":" + key, Deadline: deadline.Unix()})
	if err != nil {
		return "", fmt.Errorf("encoding put policy: %w", err)
	}
	encoded := base64.URLEncoding.EncodeToString(policy)
	return c.Sign([]byte(encoded)) + ":" + encoded, nil
}

// EncodedEntry returns the URL-safe encoding of bucket:key used in
// resource management operations.
func EncodedEntry(bucket, key string) string {
	return base64.URLEncoding.EncodeToString([]byte(bucket + ":" + key))
}

// NewClient returns a resty client configured for Qiniu APIs.
func NewClient(timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "cdnsync")
}

// Error is a failed Qiniu API response.
type Error struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *Error) Error() string {
	if e.RequestID == "" {
		return fmt.Sprintf("qiniu: http %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("qiniu: http %d: %s (reqid %s)", e.StatusCode, e.Message, e.RequestID)
}

// CheckResponse returns nil for 2xx responses and an *Error otherwise.
func CheckResponse(resp *resty.Response) error {
	if resp.StatusCode() >= http.StatusOK && resp.StatusCode() < http.StatusMultipleChoices {
		return nil
	}
	return responseError(resp)
}

func responseError(resp *resty.Response) *Error {
	e := &Error{
		StatusCode: resp.StatusCode(),
		RequestID:  resp.Header().Get("X-Reqid"),
	}

	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Error != "" {
		e.Message = body.Error
	} else if text := strings.TrimSpace(string(resp.Body())); text != "" {
		e.Message = text
	} else {
		e.Message = http.StatusText(resp.StatusCode())
	}
	return e
}
