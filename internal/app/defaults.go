package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Defaults are the application paths used when the config does not say
// otherwise.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
}

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - CDNSYNC_CONFIG_PATH: config file location (default: ~/.config/cdnsync.toml)
//   - CDNSYNC_HOME: base directory for cdnsync data (default: ~/.local/share/cdnsync)
func GetDefaults() (*Defaults, error) {
	configPath, err := fromEnvOrHome("CDNSYNC_CONFIG_PATH", ".config", "cdnsync.toml")
	if err != nil {
		return nil, err
	}
	baseDir, err := fromEnvOrHome("CDNSYNC_HOME", ".local", "share", "cdnsync")
	if err != nil {
		return nil, err
	}

	return &Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
	}, nil
}

// fromEnvOrHome returns the value of the environment variable key, or the
// path elems joined below the user's home directory.
func fromEnvOrHome(key string, elems ...string) (string, error) {
	if path := os.Getenv(key); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, elems...)...), nil
}
