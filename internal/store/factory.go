package store

import (
	"context"
	"fmt"

	"cdnsync/internal/config"
	"cdnsync/internal/deploy"
	"cdnsync/internal/qiniu"
)

// NewStoreFromConfig creates a Store implementation based on the store config type.
// host is the CDN origin; the Qiniu store reads the version log back through it.
func NewStoreFromConfig(ctx context.Context, cfg config.StoreConfig, creds config.Credentials, host string) (deploy.Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(cfg.Name), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem store requires fs_root to be set")
		}
		return NewFileSystemStore(cfg.Name, cfg.FSRoot)
	case "qiniu":
		return NewQiniuStore(cfg.Name, QiniuOptions{
			Bucket:       cfg.Bucket,
			Credentials:  qiniu.Credentials{AccessKey: creds.AccessKey, SecretKey: creds.SecretKey},
			DownloadHost: host,
			RSHost:       cfg.QiniuRSHost,
			RSFHost:      cfg.QiniuRSFHost,
			UpHost:       cfg.QiniuUpHost,
		})
	case "s3":
		return NewS3Store(ctx, cfg.Name, S3Options{
			Bucket:         cfg.Bucket,
			Region:         cfg.S3Region,
			Endpoint:       cfg.S3Endpoint,
			AccessKey:      creds.AccessKey,
			SecretKey:      creds.SecretKey,
			ForcePathStyle: cfg.S3ForcePathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}
