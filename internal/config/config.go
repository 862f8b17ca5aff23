package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// DefaultLogKey is the name of the version log, relative to the prefix.
const DefaultLogKey = ".cdnsync.json"

// Config represents the main configuration for cdnsync.
type Config struct {
	BaseDir  string `toml:"base_dir"`
	LogDir   string `toml:"log_dir"`
	LogLevel string `toml:"log_level"` // "debug", "info" (default), "warn" or "error"

	// Source is the local build output directory to deploy.
	Source string `toml:"source"`
	// Host is the CDN origin serving the bucket, e.g. "https://cdn.example.com".
	Host string `toml:"host"`
	// Prefix is prepended to every file name to form its object key.
	Prefix string `toml:"prefix"`
	// LogKey overrides the key of the version log. It defaults to
	// Prefix + DefaultLogKey.
	LogKey      string   `toml:"log_key,omitempty"`
	Concurrency int      `toml:"concurrency"`
	Exclude     []string `toml:"exclude"`
	Refresh     bool     `toml:"refresh"`
	Prefetch    bool     `toml:"prefetch"`

	Retention RetentionConfig `toml:"retention"`
	Store     StoreConfig     `toml:"store"`
	CDN       CDNConfig       `toml:"cdn"`
	Database  DatabaseConfig  `toml:"database"`

	// Credentials are read from the environment only.
	Credentials Credentials `toml:"-"`
}

// RetentionConfig bounds how much deployment history is kept. Both fields
// are optional; with neither set nothing is ever deleted.
type RetentionConfig struct {
	Versions *int   `toml:"versions,omitempty"`
	MaxAge   string `toml:"max_age,omitempty"` // Go duration or whole days, e.g. "720h" or "30d"
}

// StoreConfig represents configuration for the remote object store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StoreConfig struct {
	Type   string `toml:"type"` // "qiniu", "s3", "filesystem" or "memory"
	Name   string `toml:"name"`
	Bucket string `toml:"bucket,omitempty"`

	// Qiniu-specific fields; empty hosts select the public endpoints.
	QiniuRSHost  string `toml:"qiniu_rs_host,omitempty"`
	QiniuRSFHost string `toml:"qiniu_rsf_host,omitempty"`
	QiniuUpHost  string `toml:"qiniu_up_host,omitempty"`

	// S3-specific fields
	S3Region         string `toml:"s3_region,omitempty"`
	S3Endpoint       string `toml:"s3_endpoint,omitempty"`
	S3ForcePathStyle bool   `toml:"s3_force_path_style,omitempty"`

	// FileSystem-specific fields
	FSRoot string `toml:"fs_root,omitempty"`
}

// CDNConfig represents configuration for the CDN cache control API.
type CDNConfig struct {
	Type       string `toml:"type"`                  // "qiniu" or "none"
	FusionHost string `toml:"fusion_host,omitempty"` // only used for type=qiniu
}

// DatabaseConfig represents configuration for the local state database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// Credentials holds the API keys for the store and the CDN.
type Credentials struct {
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
}

// NewConfig creates a new Config with the provided values and default paths.
func NewConfig(baseDir, source, host string) *Config {
	return &Config{
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		LogLevel: "info",
		Source:   source,
		Host:     host,
		Store: StoreConfig{
			Type:   "filesystem",
			Name:   "local",
			FSRoot: filepath.Join(baseDir, "bucket"),
		},
		CDN: CDNConfig{Type: "none"},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
	}
}

// ResolvedLogKey returns the key of the version log.
func (c *Config) ResolvedLogKey() string {
	if c.LogKey != "" {
		return c.LogKey
	}
	return c.Prefix + DefaultLogKey
}

// ParseMaxAge parses the retention max_age, returning nil when unset.
func (r RetentionConfig) ParseMaxAge() (*time.Duration, error) {
	if r.MaxAge == "" {
		return nil, nil
	}
	d, err := parseAge(r.MaxAge)
	if err != nil {
		return nil, fmt.Errorf("invalid retention max_age %q: %w", r.MaxAge, err)
	}
	return &d, nil
}

// parseAge accepts a Go duration or a whole number of days ("30d").
func parseAge(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// Validate checks the configuration for errors that must stop a run
// before any I/O happens.
func (c *Config) Validate() error {
	var errs []error

	if c.Host == "" {
		errs = append(errs, errors.New("host is required"))
	} else if u, err := url.Parse(c.Host); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("host %q must be an absolute http or https URL", c.Host))
	}

	if c.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency))
	}

	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}

	if v := c.Retention.Versions; v != nil && *v < 0 {
		errs = append(errs, fmt.Errorf("retention versions must not be negative, got %d", *v))
	}
	if age, err := c.Retention.ParseMaxAge(); err != nil {
		errs = append(errs, err)
	} else if age != nil && *age < 0 {
		errs = append(errs, fmt.Errorf("retention max_age must not be negative, got %s", c.Retention.MaxAge))
	}

	switch c.Store.Type {
	case "qiniu", "s3":
		if c.Store.Bucket == "" {
			errs = append(errs, fmt.Errorf("%s store requires bucket to be set", c.Store.Type))
		}
	case "filesystem":
		if c.Store.FSRoot == "" {
			errs = append(errs, errors.New("filesystem store requires fs_root to be set"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown store type: %q", c.Store.Type))
	}

	switch c.CDN.Type {
	case "", "none", "qiniu":
	default:
		errs = append(errs, fmt.Errorf("unknown cdn type: %q", c.CDN.Type))
	}

	return errors.Join(errs...)
}

// LoadCredentials fills Credentials from CDNSYNC_ACCESS_KEY and CDNSYNC_SECRET_KEY.
func (c *Config) LoadCredentials() error {
	if err := env.ParseWithOptions(&c.Credentials, env.Options{Prefix: "CDNSYNC_"}); err != nil {
		return fmt.Errorf("reading credentials from environment: %w", err)
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Init writes cfg to a new config file at path. It refuses to overwrite
// an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
