package di

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runserver.dev/cli/internal/application/ports"
)

func newTestContainer(t *testing.T) *Container {
	t.Helper()
	for _, name := range []string{
		"RUNSERVER_API_URL", "RUNSERVER_CACHE_DIR", "RUNSERVER_USER_AGENT", "RUNSERVER_METRICS_FILE",
		"RUNSERVER_JAVA_HOME", "RUNSERVER_DEBUG", "RUNSERVER_REQUEST_TIMEOUT", "RUNSERVER_DOWNLOAD_TIMEOUT",
		"RUNSERVER_RETRY_ATTEMPTS", "RUNSERVER_RETRY_DELAY",
	} {
		t.Setenv(name, "")
	}

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	content := `{"api_endpoint":"http://localhost:5149","cache_dir":"` + filepath.ToSlash(filepath.Join(dir, "cache")) + `"}`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	container, err := NewContainerWithConfigPath(configPath)
	require.NoError(t, err)
	return container
}

func TestNewContainer_WiresComponents(t *testing.T) {
	container := newTestContainer(t)

	assert.Equal(t, "http://localhost:5149", container.Config.APIEndpoint)
	assert.NotNil(t, container.LaunchService)
	assert.NotNil(t, container.ConfigService)

	cliContainer := container.GetCLIContainer()
	assert.Same(t, container.LaunchService, cliContainer.LaunchService)
	assert.Same(t, container.Cache, cliContainer.Cache)
	assert.Equal(t, container.Config.CacheDir, container.Cache.Root())
}

func TestApplyAPIURLOverride(t *testing.T) {
	tests := []struct {
		name          string
		apiURL        string
		expectError   bool
		expectedError string
	}{
		{
			name:   "valid URL override",
			apiURL: "http://localhost:8080/v1",
		},
		{
			name:          "empty URL should fail",
			apiURL:        "",
			expectError:   true,
			expectedError: "API URL cannot be empty",
		},
		{
			name:   "HTTPS URL override",
			apiURL: "https://staging.builds.example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			container := newTestContainer(t)

			err := container.ApplyAPIURLOverride(tt.apiURL)
			if tt.expectError {
				require.Error(t, err)
				assert.Equal(t, tt.expectedError, err.Error())
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.apiURL, container.Config.APIEndpoint)
		})
	}
}

func TestApplyCacheDirOverride(t *testing.T) {
	container := newTestContainer(t)
	previous := container.LaunchService
	dir := filepath.Join(t.TempDir(), "other-cache")

	require.NoError(t, container.ApplyCacheDirOverride(dir))

	assert.Equal(t, dir, container.Cache.Root())
	assert.NotSame(t, previous, container.LaunchService)
	assert.Same(t, container.LaunchService, container.CLIContainer.LaunchService)

	assert.Error(t, container.ApplyCacheDirOverride(""))
}

func TestApplyDebugOverride(t *testing.T) {
	container := newTestContainer(t)
	assert.Equal(t, ports.LogLevelWarn, container.logging.GetLogLevel())

	container.ApplyDebugOverride(true)
	assert.Equal(t, ports.LogLevelDebug, container.logging.GetLogLevel())

	container.ApplyDebugOverride(false)
	assert.Equal(t, ports.LogLevelWarn, container.logging.GetLogLevel())
}

func TestFlushMetrics(t *testing.T) {
	container := newTestContainer(t)
	require.NoError(t, container.FlushMetrics(), "no metrics file configured")

	path := filepath.Join(t.TempDir(), "textfile", "runserver.prom")
	container.Config.MetricsFile = path
	container.Metrics.CacheHit("1.20.4")

	require.NoError(t, container.FlushMetrics())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `runserver_cache_hits_total{version="1.20.4"} 1`)
}

func TestLoggingGatewayAdapter_Levels(t *testing.T) {
	var buf bytes.Buffer
	adapter := &loggingGatewayAdapter{logger: log.New(&buf, "", 0), logLevel: ports.LogLevelWarn}

	adapter.Log(ports.LogLevelDebug, "hidden", nil)
	adapter.Log(ports.LogLevelInfo, "hidden too", nil)
	adapter.Log(ports.LogLevelWarn, "retrying", map[string]interface{}{"attempt": 1})
	adapter.Log(ports.LogLevelError, "gave up", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"WARN: retrying (fields: map[attempt:1])",
		"ERROR: gave up",
	}, lines)
}
