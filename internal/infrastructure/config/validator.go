package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	MinTimeout         = 1 * time.Second
	MaxRequestTimeout  = 5 * time.Minute
	MaxDownloadTimeout = 2 * time.Hour
)

// ConfigValidator validates configuration values
type ConfigValidator struct{}

// NewConfigValidator creates a new configuration validator
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{}
}

// ValidateAPIEndpoint validates an API endpoint URL
func (v *ConfigValidator) ValidateAPIEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("API endpoint cannot be empty")
	}

	// Parse URL
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	// Check scheme
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %s (must be http or https)", u.Scheme)
	}

	// Check host
	if u.Host == "" {
		return fmt.Errorf("URL must include host")
	}

	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("API endpoint must not carry a query or fragment")
	}

	return nil
}

// ValidateCacheDir checks that path is a directory or can be created as one
func (v *ConfigValidator) ValidateCacheDir(path string) error {
	if path == "" {
		return fmt.Errorf("cache directory cannot be empty")
	}

	expandedPath := expandPath(path)

	info, err := os.Stat(expandedPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Walk up to the nearest existing ancestor
			dir := filepath.Dir(expandedPath)
			for dir != filepath.Dir(dir) {
				if parent, err := os.Stat(dir); err == nil {
					if !parent.IsDir() {
						return fmt.Errorf("cache path is below a file: %s", dir)
					}
					return nil
				}
				dir = filepath.Dir(dir)
			}
			return nil
		}
		return fmt.Errorf("failed to check cache directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("cache path exists but is not a directory: %s", path)
	}

	return nil
}

// ValidateTimeout checks that a timeout lies between MinTimeout and limit
func (v *ConfigValidator) ValidateTimeout(timeout, limit time.Duration) error {
	if timeout < MinTimeout {
		return fmt.Errorf("timeout too short (minimum %s)", MinTimeout)
	}

	if timeout > limit {
		return fmt.Errorf("timeout too long (maximum %s)", limit)
	}

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if path == "" {
		return path
	}

	// Expand ~ to home directory
	if path == "~" || strings.HasPrefix(path, "~/") {
		if homeDir, err := os.UserHomeDir(); err == nil {
			path = strings.Replace(path, "~", homeDir, 1)
		}
	}

	// Expand environment variables
	return os.ExpandEnv(path)
}
