package cdn

import (
	"fmt"

	"cdnsync/internal/config"
	"cdnsync/internal/deploy"
	"cdnsync/internal/qiniu"
)

// NewCDNFromConfig creates a CDN implementation based on the cdn config type.
func NewCDNFromConfig(cfg config.CDNConfig, creds config.Credentials, logger deploy.Logger) (deploy.CDN, error) {
	switch cfg.Type {
	case "", "none":
		return NewLogCDN(logger), nil
	case "qiniu":
		return NewQiniuCDN(qiniu.Credentials{AccessKey: creds.AccessKey, SecretKey: creds.SecretKey}, cfg.FusionHost, 0)
	default:
		return nil, fmt.Errorf("unknown cdn type: %s", cfg.Type)
	}
}
