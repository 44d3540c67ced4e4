package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runserver.dev/cli/internal/application/ports"
	"runserver.dev/cli/internal/core/build"
	"runserver.dev/cli/internal/core/domain"
	"runserver.dev/cli/internal/infrastructure/retry"
)

// MockLogger implements the LoggingGateway interface for testing
type MockLogger struct {
	mu       sync.Mutex
	messages []string
}

func (m *MockLogger) Log(level ports.LogLevel, message string, fields map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, message)
}
func (m *MockLogger) LogError(err error, message string, fields map[string]interface{}) {}
func (m *MockLogger) SetLogLevel(level ports.LogLevel)                                  {}
func (m *MockLogger) GetLogLevel() ports.LogLevel                                       { return ports.LogLevelInfo }

func (m *MockLogger) count(message string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.messages {
		if msg == message {
			n++
		}
	}
	return n
}

func TestUpdateEndpoint(t *testing.T) {
	tests := []struct {
		name          string
		initialURL    string
		newURL        string
		expectError   bool
		expectedError string
	}{
		{
			name:        "valid URL update",
			initialURL:  "https://builds.example.org/api/v2",
			newURL:      "http://localhost:5149",
			expectError: false,
		},
		{
			name:          "empty URL should fail",
			initialURL:    "https://builds.example.org/api/v2",
			newURL:        "",
			expectError:   true,
			expectedError: "endpoint cannot be empty",
		},
		{
			name:        "update to HTTPS URL",
			initialURL:  "http://localhost:5149",
			newURL:      "https://staging.builds.example.org",
			expectError: false,
		},
		{
			name:        "relative URL should fail",
			initialURL:  "http://localhost:5149",
			newURL:      "builds",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateway := NewBuildAPIGateway(tt.initialURL, &MockLogger{}, nil)
			assert.Equal(t, tt.initialURL, gateway.getEndpoint())

			err := gateway.UpdateEndpoint(tt.newURL)

			if tt.expectError {
				require.Error(t, err)
				if tt.expectedError != "" {
					assert.Equal(t, tt.expectedError, err.Error())
				}
				assert.Equal(t, tt.initialURL, gateway.getEndpoint())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.newURL, gateway.getEndpoint())
		})
	}
}

func TestUpdateEndpointConcurrency(t *testing.T) {
	gateway := NewBuildAPIGateway("https://builds.example.org", &MockLogger{}, nil)

	numUpdates := 10
	var wg sync.WaitGroup
	wg.Add(numUpdates)

	results := make(chan string, numUpdates)

	for i := 0; i < numUpdates; i++ {
		go func(index int) {
			defer wg.Done()
			url := fmt.Sprintf("http://localhost:%d", 5000+index)
			if err := gateway.UpdateEndpoint(url); err != nil {
				t.Errorf("UpdateEndpoint() error in goroutine %d: %v", index, err)
			}
			results <- gateway.getEndpoint()
		}(i)
	}

	wg.Wait()
	close(results)

	count := 0
	for endpoint := range results {
		assert.Contains(t, endpoint, "http://localhost:")
		count++
	}
	assert.Equal(t, numUpdates, count)
}

func TestUpdateEndpointLogging(t *testing.T) {
	logger := &MockLogger{}
	gateway := NewBuildAPIGateway("https://builds.example.org", logger, nil)

	require.NoError(t, gateway.UpdateEndpoint("http://localhost:5149"))
	assert.Equal(t, 1, logger.count("Updating API endpoint"))
}

func newBuildServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *BuildAPIGateway) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server, NewTestAPIGateway(server.URL, &MockLogger{})
}

func TestListBuilds_SortsAndDropsInvalid(t *testing.T) {
	_, gateway := newBuildServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/builds", r.URL.Path)
		assert.Equal(t, "1.18.2", r.URL.Query().Get("version"))
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		json.NewEncoder(w).Encode(BuildListDto{Version: "1.18.2", Builds: []int{66, 12, 0, 388, -1}})
	})

	builds, err := gateway.ListBuilds(context.Background(), "1.18.2")
	require.NoError(t, err)
	assert.Equal(t, []int{12, 66, 388}, builds)

	latest, err := gateway.LatestBuild(context.Background(), "1.18.2")
	require.NoError(t, err)
	assert.Equal(t, 388, latest)
}

func TestListBuilds_UnknownVersion(t *testing.T) {
	var calls int32
	_, gateway := newBuildServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"error":"version not found"}`, http.StatusNotFound)
	})

	_, err := gateway.ListBuilds(context.Background(), "0.0.1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrResolution)
	assert.ErrorIs(t, err, ErrUnknownVersion)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "404 must not be retried")
}

func TestLatestBuild_EmptyList(t *testing.T) {
	_, gateway := newBuildServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(BuildListDto{Version: "1.21", Builds: nil})
	})

	_, err := gateway.LatestBuild(context.Background(), "1.21")
	assert.ErrorIs(t, err, domain.ErrResolution)
	assert.ErrorIs(t, err, ErrUnknownVersion)
}

func TestListBuilds_RetriesServerErrors(t *testing.T) {
	var calls int32
	_, gateway := newBuildServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(BuildListDto{Version: "1.20.4", Builds: []int{1, 2}})
	})

	builds, err := gateway.ListBuilds(context.Background(), "1.20.4")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, builds)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestListBuilds_GivesUpAfterBudget(t *testing.T) {
	var calls int32
	_, gateway := newBuildServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := gateway.ListBuilds(context.Background(), "1.20.4")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrResolution)

	var statusErr *retry.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, int32(gateway.RetryPolicy().MaxAttempts), atomic.LoadInt32(&calls))
}

func TestResolveBuild(t *testing.T) {
	var calls int32
	_, gateway := newBuildServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(BuildListDto{Version: "1.18.2", Builds: []int{3, 41, 40}})
	})

	specific, err := build.Specific(17)
	require.NoError(t, err)

	n, err := gateway.ResolveBuild(context.Background(), "1.18.2", specific)
	require.NoError(t, err)
	assert.Equal(t, 17, n)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls), "specific builds need no API call")

	n, err = gateway.ResolveBuild(context.Background(), "1.18.2", build.Latest())
	require.NoError(t, err)
	assert.Equal(t, 41, n)

	_, err = gateway.ResolveBuild(context.Background(), "1.18.2", build.Latest())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "latest is re-resolved every time")
}

func TestBuildInfo_ResolvesRelativeURL(t *testing.T) {
	server, gateway := newBuildServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/build", r.URL.Path)
		assert.Equal(t, "1.16.3", r.URL.Query().Get("version"))
		assert.Equal(t, "7", r.URL.Query().Get("build"))
		json.NewEncoder(w).Encode(BuildInfoDto{
			Version: "1.16.3",
			Build:   7,
			Name:    "server-1.16.3-7.jar",
			URL:     "files/server-1.16.3-7.jar",
			SHA256:  "  ABCDEF  ",
		})
	})

	info, err := gateway.BuildInfo(context.Background(), "1.16.3", 7)
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/files/server-1.16.3-7.jar", info.URL)
	assert.Equal(t, "abcdef", info.SHA256)
	assert.Equal(t, 7, info.Build)
}

func TestBuildInfo_UnknownBuild(t *testing.T) {
	_, gateway := newBuildServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := gateway.BuildInfo(context.Background(), "1.16.3", 9999)
	assert.ErrorIs(t, err, domain.ErrResolution)
	assert.ErrorIs(t, err, ErrUnknownBuild)
}

func TestBuildInfo_MalformedJSON(t *testing.T) {
	_, gateway := newBuildServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	})

	_, err := gateway.BuildInfo(context.Background(), "1.16.3", 1)
	assert.ErrorIs(t, err, domain.ErrResolution)
}

func TestDownload_ReportsProgress(t *testing.T) {
	payload := bytes.Repeat([]byte("jar"), 10_000)
	server, gateway := newBuildServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprint(len(payload)))
		w.Write(payload)
	})

	var buf bytes.Buffer
	var lastDone, lastTotal int64
	n, err := gateway.Download(context.Background(), &ports.BuildInfo{URL: server.URL + "/a.jar"}, &buf, func(done, total int64) {
		lastDone, lastTotal = done, total
	})

	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	assert.Equal(t, payload, buf.Bytes())
	assert.Equal(t, int64(len(payload)), lastDone)
	assert.Equal(t, int64(len(payload)), lastTotal)
}

func TestDownload_StatusError(t *testing.T) {
	server, gateway := newBuildServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	var buf bytes.Buffer
	_, err := gateway.Download(context.Background(), &ports.BuildInfo{URL: server.URL + "/a.jar"}, &buf, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDownload)
	assert.True(t, retry.IsTransient(err))
	assert.Zero(t, buf.Len())
}

func TestDownload_MissingURL(t *testing.T) {
	gateway := NewTestAPIGateway("http://localhost:1", &MockLogger{})
	_, err := gateway.Download(context.Background(), &ports.BuildInfo{}, &bytes.Buffer{}, nil)
	assert.ErrorIs(t, err, domain.ErrDownload)
}
