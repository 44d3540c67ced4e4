package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"runserver.dev/cli/internal/application/ports"
)

func baseConfiguration() *ports.Configuration {
	return &ports.Configuration{
		APIEndpoint:      "https://builds.example.com/v1",
		RequestTimeout:   30,
		DownloadTimeout:  600,
		RetryAttempts:    3,
		RetryDelay:       1000,
		MaxRetryDelay:    30000,
		LockPollInterval: 100,
	}
}

func TestConfigurationService_SetValue(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name          string
		key           string
		value         string
		check         func(*testing.T, *ports.Configuration)
		expectedError string
	}{
		{
			name:  "string setting",
			key:   "api_endpoint",
			value: "http://localhost:8080",
			check: func(t *testing.T, c *ports.Configuration) {
				assert.Equal(t, "http://localhost:8080", c.APIEndpoint)
			},
		},
		{
			name:  "integer setting",
			key:   "retry_attempts",
			value: "7",
			check: func(t *testing.T, c *ports.Configuration) {
				assert.Equal(t, 7, c.RetryAttempts)
			},
		},
		{
			name:  "boolean setting",
			key:   "debug",
			value: "true",
			check: func(t *testing.T, c *ports.Configuration) {
				assert.True(t, c.Debug)
			},
		},
		{
			name:          "unknown key",
			key:           "api_key",
			value:         "secret",
			expectedError: "unknown configuration key",
		},
		{
			name:          "non-numeric integer",
			key:           "request_timeout",
			value:         "soon",
			expectedError: "invalid value for request_timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &MockConfigRepository{}
			repo.On("Load").Return(baseConfiguration(), nil)
			repo.On("GetConfigPath").Return("/tmp/config.json").Maybe()
			repo.On("Validate", mock.Anything).Return(nil).Maybe()
			repo.On("BackupConfig").Return(nil).Maybe()
			repo.On("Save", mock.Anything).Return(nil).Maybe()

			config, err := NewConfigurationService(repo, nopLogger{}).SetValue(ctx, tt.key, tt.value)
			if tt.expectedError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
				repo.AssertNotCalled(t, "Save", mock.Anything)
				return
			}

			require.NoError(t, err)
			tt.check(t, config)
			repo.AssertCalled(t, "Save", config)
		})
	}
}

func TestConfigurationService_SetValueRepairsBrokenFile(t *testing.T) {
	repo := &MockConfigRepository{}
	repo.On("Load").Return(nil, errors.New("invalid character '}' in config file"))
	repo.On("LoadDefault").Return(baseConfiguration())
	repo.On("GetConfigPath").Return("/tmp/config.json")
	repo.On("Validate", mock.Anything).Return(nil)
	repo.On("BackupConfig").Return(nil)
	repo.On("Save", mock.Anything).Return(nil)

	config, err := NewConfigurationService(repo, nopLogger{}).SetValue(context.Background(), "cache_dir", "/var/cache/runserver")
	require.NoError(t, err)
	assert.Equal(t, "/var/cache/runserver", config.CacheDir)
	repo.AssertExpectations(t)
}

func TestConfigurationService_SaveConfiguration(t *testing.T) {
	t.Run("validation failure prevents saving", func(t *testing.T) {
		repo := &MockConfigRepository{}
		repo.On("Validate", mock.Anything).Return(errors.New("request timeout must be at least 1s"))

		err := NewConfigurationService(repo, nopLogger{}).SaveConfiguration(context.Background(), baseConfiguration())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration validation failed")
		repo.AssertNotCalled(t, "Save", mock.Anything)
	})

	t.Run("backup failure does not block saving", func(t *testing.T) {
		repo := &MockConfigRepository{}
		repo.On("Validate", mock.Anything).Return(nil)
		repo.On("BackupConfig").Return(errors.New("read-only"))
		repo.On("Save", mock.Anything).Return(nil)
		repo.On("GetConfigPath").Return("/tmp/config.json")

		require.NoError(t, NewConfigurationService(repo, nopLogger{}).SaveConfiguration(context.Background(), baseConfiguration()))
		repo.AssertExpectations(t)
	})
}

func TestConfigurationKeys(t *testing.T) {
	keys := ConfigurationKeys()
	assert.IsIncreasing(t, keys)
	assert.Contains(t, keys, "api_endpoint")
	assert.Contains(t, keys, "lock_poll_interval")
	assert.NotContains(t, keys, "api_key")
}
