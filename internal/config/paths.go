package config

import (
	"context"
	"path/filepath"
	"strings"

	gfconfig "github.com/fulmenhq/gofulmen/config"

	"github.com/coinlens/coinlens/internal/appid"
)

// configNameForPaths resolves the directory name for XDG paths from the
// embedded app identity, falling back to "coinlens" if not set.
func configNameForPaths() string {
	identity, err := appid.Get(context.Background())
	if err == nil && identity != nil && strings.TrimSpace(identity.ConfigName) != "" {
		return identity.ConfigName
	}
	return "coinlens"
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(configNameForPaths())
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultCacheDir returns the XDG-compliant cache directory for the app.
func DefaultCacheDir() string {
	return gfconfig.GetAppCacheDir(configNameForPaths())
}
