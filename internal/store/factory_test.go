package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdnsync/internal/config"
)

func TestNewStoreFromConfig(t *testing.T) {
	creds := config.Credentials{AccessKey: "ak", SecretKey: "sk"}

	tests := []struct {
		name     string
		cfg      config.StoreConfig
		creds    config.Credentials
		wantErr  bool
		validate bool
	}{
		{
			name:     "memory store",
			cfg:      config.StoreConfig{Type: "memory", Name: "test-memory"},
			validate: true,
		},
		{
			name:     "filesystem store",
			cfg:      config.StoreConfig{Type: "filesystem", Name: "test-fs", FSRoot: filepath.Join(t.TempDir(), "bucket")},
			validate: true,
		},
		{
			name:    "filesystem store without root",
			cfg:     config.StoreConfig{Type: "filesystem", Name: "test-fs"},
			wantErr: true,
		},
		{
			name:  "qiniu store",
			cfg:   config.StoreConfig{Type: "qiniu", Name: "test-qiniu", Bucket: "assets"},
			creds: creds,
		},
		{
			name:    "qiniu store without credentials",
			cfg:     config.StoreConfig{Type: "qiniu", Name: "test-qiniu", Bucket: "assets"},
			wantErr: true,
		},
		{
			name:    "s3 store without bucket",
			cfg:     config.StoreConfig{Type: "s3", Name: "test-s3"},
			creds:   creds,
			wantErr: true,
		},
		{
			name:    "unknown store type",
			cfg:     config.StoreConfig{Type: "unknown", Name: "test-unknown"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewStoreFromConfig(context.Background(), tt.cfg, tt.creds, "https://cdn.example.com")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, got)

			if tt.validate {
				assert.NoError(t, got.ValidateSetup(context.Background()))
			}
		})
	}
}
