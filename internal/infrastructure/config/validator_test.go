package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidator_ValidateAPIEndpoint(t *testing.T) {
	validator := NewConfigValidator()

	tests := []struct {
		name     string
		endpoint string
		wantErr  bool
		errMsg   string
	}{
		{
			name:     "valid_https_endpoint",
			endpoint: "https://builds.example.org",
			wantErr:  false,
		},
		{
			name:     "valid_http_localhost",
			endpoint: "http://localhost:5194",
			wantErr:  false,
		},
		{
			name:     "valid_endpoint_with_path",
			endpoint: "https://builds.example.org/api/v2",
			wantErr:  false,
		},
		{
			name:     "empty_endpoint",
			endpoint: "",
			wantErr:  true,
			errMsg:   "API endpoint cannot be empty",
		},
		{
			name:     "invalid_scheme",
			endpoint: "ftp://builds.example.org",
			wantErr:  true,
			errMsg:   "unsupported URL scheme",
		},
		{
			name:     "missing_scheme",
			endpoint: "builds.example.org",
			wantErr:  true,
			errMsg:   "unsupported URL scheme",
		},
		{
			name:     "missing_host",
			endpoint: "https://",
			wantErr:  true,
			errMsg:   "URL must include host",
		},
		{
			name:     "control_characters",
			endpoint: "https://builds.example.org/\x7f",
			wantErr:  true,
			errMsg:   "invalid URL format",
		},
		{
			name:     "query_string",
			endpoint: "https://builds.example.org/?channel=beta",
			wantErr:  true,
			errMsg:   "query or fragment",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateAPIEndpoint(tt.endpoint)

			if tt.wantErr {
				assert.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigValidator_ValidateCacheDir(t *testing.T) {
	validator := NewConfigValidator()
	root := t.TempDir()

	file := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	assert.NoError(t, validator.ValidateCacheDir(root))
	assert.NoError(t, validator.ValidateCacheDir(filepath.Join(root, "not", "yet", "created")))
	assert.Error(t, validator.ValidateCacheDir(""))
	assert.ErrorContains(t, validator.ValidateCacheDir(file), "not a directory")
	assert.ErrorContains(t, validator.ValidateCacheDir(filepath.Join(file, "cache")), "below a file")
}

func TestConfigValidator_ValidateTimeout(t *testing.T) {
	validator := NewConfigValidator()

	tests := []struct {
		name    string
		timeout time.Duration
		wantErr bool
	}{
		{"minimum", time.Second, false},
		{"typical", 30 * time.Second, false},
		{"at_limit", MaxRequestTimeout, false},
		{"zero", 0, true},
		{"sub_second", 500 * time.Millisecond, true},
		{"over_limit", MaxRequestTimeout + time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateTimeout(tt.timeout, MaxRequestTimeout)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("RUNSERVER_TEST_ROOT", "/srv/cache")

	assert.Equal(t, filepath.Join(home, "cache"), expandPath("~/cache"))
	assert.Equal(t, "/srv/cache/runserver", expandPath("$RUNSERVER_TEST_ROOT/runserver"))
	assert.Equal(t, "", expandPath(""))
}
