package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"runserver.dev/cli/internal/application/ports"
)

// ConfigurationService handles configuration management
type ConfigurationService struct {
	configRepo ports.ConfigurationRepository
	logger     ports.LoggingGateway
}

// NewConfigurationService creates a new configuration service
func NewConfigurationService(configRepo ports.ConfigurationRepository, logger ports.LoggingGateway) *ConfigurationService {
	return &ConfigurationService{
		configRepo: configRepo,
		logger:     logger,
	}
}

// LoadConfiguration loads the current configuration
func (s *ConfigurationService) LoadConfiguration(ctx context.Context) (*ports.Configuration, error) {
	config, err := s.configRepo.Load()
	if err != nil {
		s.logger.LogError(err, "Failed to load configuration", map[string]interface{}{
			"config_path": s.configRepo.GetConfigPath(),
		})
		return nil, err
	}
	return config, nil
}

// SaveConfiguration validates, backs up and saves the configuration
func (s *ConfigurationService) SaveConfiguration(ctx context.Context, config *ports.Configuration) error {
	// Validate configuration before saving
	if err := s.configRepo.Validate(config); err != nil {
		s.logger.LogError(err, "Configuration validation failed", nil)
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	// Create backup before saving
	if err := s.configRepo.BackupConfig(); err != nil {
		s.logger.LogError(err, "Failed to create configuration backup", nil)
		// Continue with save even if backup fails
	}

	// Save configuration
	if err := s.configRepo.Save(config); err != nil {
		s.logger.LogError(err, "Failed to save configuration", nil)
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	s.logger.Log(ports.LogLevelInfo, "Configuration saved successfully", map[string]interface{}{
		"config_path": s.configRepo.GetConfigPath(),
	})

	return nil
}

// SetValue updates one setting by its JSON key and saves the configuration
func (s *ConfigurationService) SetValue(ctx context.Context, key, value string) (*ports.Configuration, error) {
	config, err := s.LoadConfiguration(ctx)
	if err != nil {
		// A broken or invalid file can still be repaired one key at a time
		config = s.configRepo.LoadDefault()
	}

	setter, ok := configSetters[key]
	if !ok {
		return nil, fmt.Errorf("unknown configuration key %q (known keys: %s)", key, strings.Join(ConfigurationKeys(), ", "))
	}
	if err := setter(config, value); err != nil {
		return nil, fmt.Errorf("invalid value for %s: %w", key, err)
	}

	if err := s.SaveConfiguration(ctx, config); err != nil {
		return nil, err
	}
	return config, nil
}

// GetDefaultConfiguration returns the default configuration
func (s *ConfigurationService) GetDefaultConfiguration(ctx context.Context) *ports.Configuration {
	return s.configRepo.LoadDefault()
}

// GetConfigurationPath returns the path to the configuration file
func (s *ConfigurationService) GetConfigurationPath(ctx context.Context) string {
	return s.configRepo.GetConfigPath()
}

// ConfigurationKeys returns the keys accepted by SetValue
func ConfigurationKeys() []string {
	keys := make([]string, 0, len(configSetters))
	for k := range configSetters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var configSetters = map[string]func(*ports.Configuration, string) error{
	"api_endpoint": func(c *ports.Configuration, v string) error { c.APIEndpoint = v; return nil },
	"cache_dir":    func(c *ports.Configuration, v string) error { c.CacheDir = v; return nil },
	"user_agent":   func(c *ports.Configuration, v string) error { c.UserAgent = v; return nil },
	"metrics_file": func(c *ports.Configuration, v string) error { c.MetricsFile = v; return nil },
	"java_home":    func(c *ports.Configuration, v string) error { c.JavaHome = v; return nil },
	"debug": func(c *ports.Configuration, v string) error {
		b, err := strconv.ParseBool(v)
		c.Debug = b
		return err
	},
	"request_timeout":    intSetter(func(c *ports.Configuration) *int { return &c.RequestTimeout }),
	"download_timeout":   intSetter(func(c *ports.Configuration) *int { return &c.DownloadTimeout }),
	"retry_attempts":     intSetter(func(c *ports.Configuration) *int { return &c.RetryAttempts }),
	"retry_delay":        intSetter(func(c *ports.Configuration) *int { return &c.RetryDelay }),
	"max_retry_delay":    intSetter(func(c *ports.Configuration) *int { return &c.MaxRetryDelay }),
	"lock_poll_interval": intSetter(func(c *ports.Configuration) *int { return &c.LockPollInterval }),
}

func intSetter(field func(*ports.Configuration) *int) func(*ports.Configuration, string) error {
	return func(c *ports.Configuration, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}
