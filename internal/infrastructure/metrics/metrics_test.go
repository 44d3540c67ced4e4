package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runserver.dev/cli/internal/application/ports"
)

var (
	_ ports.MetricsRecorder = (*Recorder)(nil)
	_ ports.MetricsRecorder = Nop{}
)

func TestRecorder_CountsCacheActivity(t *testing.T) {
	r := NewRecorder()

	r.CacheMiss("1.18.2")
	r.DownloadCompleted("1.18.2", 2048, 1500*time.Millisecond)
	r.CacheHit("1.18.2")
	r.CacheHit("1.18.2")
	r.CacheHit("1.16.5")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.cacheHits.WithLabelValues("1.18.2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cacheHits.WithLabelValues("1.16.5")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cacheMisses.WithLabelValues("1.18.2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.downloads.WithLabelValues("1.18.2")))
	assert.Equal(t, 2048.0, testutil.ToFloat64(r.downloadBytes))
}

func TestRecorder_APIRequestCodes(t *testing.T) {
	r := NewRecorder()

	r.APIRequest("list_builds", 200, 20*time.Millisecond)
	r.APIRequest("list_builds", 503, 20*time.Millisecond)
	r.APIRequest("list_builds", 0, time.Second)
	r.APIRetry("list_builds")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.apiRequests.WithLabelValues("list_builds", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.apiRequests.WithLabelValues("list_builds", "503")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.apiRequests.WithLabelValues("list_builds", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.apiRetries.WithLabelValues("list_builds")))
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.CacheHit("1.20.4")

	path := filepath.Join(t.TempDir(), "textfile", "runserver.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `runserver_cache_hits_total{version="1.20.4"} 1`))
}
