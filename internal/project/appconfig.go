package project

import (
	"os"
	"path/filepath"

	"github.com/piwi3910/SheetNest/internal/model"
)

// DefaultConfigDir returns the default directory for application configuration.
// On all platforms this is ~/.sheetnest/
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".sheetnest")
}

// DefaultConfigPath returns the default path for the application config file.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// DefaultCacheDir returns the directory used for the persistent result cache
// when the config enables it without naming a directory.
func DefaultCacheDir() string {
	return filepath.Join(DefaultConfigDir(), "cache")
}

// SaveAppConfig persists an AppConfig to the given path as JSON, or YAML when
// the path ends in .yaml or .yml.
// It creates any missing parent directories automatically.
func SaveAppConfig(path string, config model.AppConfig) error {
	return writeFile(path, config)
}

// LoadAppConfig reads an AppConfig from the given path.
// If the file does not exist, it returns DefaultAppConfig with no error.
// Fields absent from the file keep their default values.
func LoadAppConfig(path string) (model.AppConfig, error) {
	config := model.DefaultAppConfig()
	if _, err := readFile(path, &config); err != nil {
		return model.AppConfig{}, err
	}
	// Ensure RecentFiles is never nil
	if config.RecentFiles == nil {
		config.RecentFiles = []string{}
	}
	return config, nil
}
