package cdn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdnsync/internal/config"
	"cdnsync/internal/deploy"
	"cdnsync/internal/qiniu"
)

var testCreds = qiniu.Credentials{AccessKey: "ak", SecretKey: "sk"}

type fusionCall struct {
	Path string
	URLs []string
}

func newFusionServer(t *testing.T, reply string) (*httptest.Server, *[]fusionCall) {
	t.Helper()
	var calls []fusionCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, testCreds.Authorization(r.URL.Path, nil), r.Header.Get("Authorization"))

		var body fusionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		calls = append(calls, fusionCall{Path: r.URL.Path, URLs: body.URLs})
		w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestQiniuCDN_RefreshAndPrefetch(t *testing.T) {
	srv, calls := newFusionServer(t, `{"code":200,"error":"success","requestId":"r1"}`)
	c, err := NewQiniuCDN(testCreds, srv.URL+"/", time.Second)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Refresh(ctx, []string{"https://cdn.example.com/a.js"}))
	require.NoError(t, c.Prefetch(ctx, []string{"https://cdn.example.com/a.js", "https://cdn.example.com/b.js"}))

	assert.Equal(t, []fusionCall{
		{Path: "/v2/tune/refresh", URLs: []string{"https://cdn.example.com/a.js"}},
		{Path: "/v2/tune/prefetch", URLs: []string{"https://cdn.example.com/a.js", "https://cdn.example.com/b.js"}},
	}, *calls)
}

func TestQiniuCDN_EmptyBatchIsNoop(t *testing.T) {
	srv, calls := newFusionServer(t, `{"code":200}`)
	c, err := NewQiniuCDN(testCreds, srv.URL, time.Second)
	require.NoError(t, err)

	require.NoError(t, c.Refresh(context.Background(), nil))
	assert.Empty(t, *calls)
}

func TestQiniuCDN_Errors(t *testing.T) {
	t.Run("api code", func(t *testing.T) {
		srv, _ := newFusionServer(t, `{"code":400031,"error":"invalid url","requestId":"r2"}`)
		c, err := NewQiniuCDN(testCreds, srv.URL, time.Second)
		require.NoError(t, err)

		err = c.Refresh(context.Background(), []string{"bad"})
		require.Error(t, err)

		var qerr *qiniu.Error
		require.ErrorAs(t, err, &qerr)
		assert.Equal(t, 400031, qerr.StatusCode)
		assert.Equal(t, "invalid url", qerr.Message)

		var opErr *deploy.OpError
		require.ErrorAs(t, err, &opErr)
		assert.Equal(t, "refresh", opErr.Op)
	})

	t.Run("http status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"bad token"}`))
		}))
		defer srv.Close()
		c, err := NewQiniuCDN(testCreds, srv.URL, time.Second)
		require.NoError(t, err)

		err = c.Prefetch(context.Background(), []string{"https://cdn.example.com/a.js"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad token")
	})
}

func TestNewQiniuCDN_RequiresCredentials(t *testing.T) {
	_, err := NewQiniuCDN(qiniu.Credentials{}, "", time.Second)
	assert.Error(t, err)
}

func TestNewCDNFromConfig(t *testing.T) {
	creds := config.Credentials{AccessKey: "ak", SecretKey: "sk"}

	tests := []struct {
		name    string
		cfg     config.CDNConfig
		creds   config.Credentials
		wantErr bool
	}{
		{name: "none", cfg: config.CDNConfig{Type: "none"}},
		{name: "unset", cfg: config.CDNConfig{}},
		{name: "qiniu", cfg: config.CDNConfig{Type: "qiniu"}, creds: creds},
		{name: "qiniu without credentials", cfg: config.CDNConfig{Type: "qiniu"}, wantErr: true},
		{name: "unknown", cfg: config.CDNConfig{Type: "akamai"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewCDNFromConfig(tt.cfg, tt.creds, deploy.NewNopLogger())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, got)
		})
	}
}

func TestLogCDN(t *testing.T) {
	c := NewLogCDN(deploy.NewNopLogger())
	assert.NoError(t, c.Refresh(context.Background(), []string{"u"}))
	assert.NoError(t, c.Prefetch(context.Background(), []string{"u"}))
}
