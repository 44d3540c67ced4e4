package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"runserver.dev/cli/internal/application/ports"
	"runserver.dev/cli/internal/core/build"
	"runserver.dev/cli/internal/core/domain"
	"runserver.dev/cli/internal/infrastructure/metrics"
	"runserver.dev/cli/internal/infrastructure/retry"
)

const (
	DefaultUserAgent       = "runserver-cli/1.0"
	DefaultRequestTimeout  = 30 * time.Second
	DefaultDownloadTimeout = 10 * time.Minute

	maxErrorBody = 512
)

// ErrUnknownVersion is returned when the API has no builds for a version
var ErrUnknownVersion = errors.New("unknown version")

// ErrUnknownBuild is returned when the API does not know a build of a version
var ErrUnknownBuild = errors.New("unknown build")

// BuildAPIGateway implements ports.BuildAPI over HTTP
type BuildAPIGateway struct {
	endpoint       string
	userAgent      string
	httpClient     *http.Client
	downloadClient *http.Client
	retryPolicy    retry.Policy
	logger         ports.LoggingGateway
	metrics        ports.MetricsRecorder
	mutex          sync.RWMutex
}

// NewBuildAPIGateway creates a new API gateway
func NewBuildAPIGateway(endpoint string, logger ports.LoggingGateway, recorder ports.MetricsRecorder) *BuildAPIGateway {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &BuildAPIGateway{
		endpoint:  strings.TrimRight(endpoint, "/"),
		userAgent: DefaultUserAgent,
		httpClient: &http.Client{
			Timeout: DefaultRequestTimeout,
		},
		downloadClient: &http.Client{
			Timeout: DefaultDownloadTimeout, // Longer timeout for large downloads
		},
		retryPolicy: retry.DefaultPolicy(),
		logger:      logger,
		metrics:     recorder,
	}
}

// NewTestAPIGateway creates a new API gateway with test-friendly settings
func NewTestAPIGateway(endpoint string, logger ports.LoggingGateway) *BuildAPIGateway {
	g := NewBuildAPIGateway(endpoint, logger, nil)
	g.httpClient.Timeout = 5 * time.Second
	g.downloadClient.Timeout = 5 * time.Second
	g.retryPolicy = retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   5 * time.Millisecond,
		MaxDelay:    20 * time.Millisecond,
		Multiplier:  2.0,
	}
	return g
}

// SetRetryPolicy replaces the retry policy
func (g *BuildAPIGateway) SetRetryPolicy(policy retry.Policy) {
	g.retryPolicy = policy
}

// RetryPolicy returns the active retry policy
func (g *BuildAPIGateway) RetryPolicy() retry.Policy {
	return g.retryPolicy
}

// SetTimeouts sets the metadata request and download timeouts. Zero keeps the current value.
func (g *BuildAPIGateway) SetTimeouts(request, download time.Duration) {
	if request > 0 {
		g.httpClient.Timeout = request
	}
	if download > 0 {
		g.downloadClient.Timeout = download
	}
}

// SetUserAgent sets the User-Agent header for every request
func (g *BuildAPIGateway) SetUserAgent(userAgent string) {
	if userAgent != "" {
		g.userAgent = userAgent
	}
}

// UpdateEndpoint safely updates the API endpoint at runtime
func (g *BuildAPIGateway) UpdateEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.logger.Log(ports.LogLevelDebug, "Updating API endpoint", map[string]interface{}{
		"old_endpoint": g.endpoint,
		"new_endpoint": endpoint,
	})

	g.endpoint = strings.TrimRight(endpoint, "/")
	return nil
}

// getEndpoint safely reads the current endpoint
func (g *BuildAPIGateway) getEndpoint() string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.endpoint
}

// ListBuilds returns the build numbers the API knows for a version, ascending
func (g *BuildAPIGateway) ListBuilds(ctx context.Context, version string) ([]int, error) {
	query := url.Values{"version": {version}}

	var dto BuildListDto
	err := g.getJSON(ctx, "list_builds", "/builds", query, &dto)
	if err != nil {
		var statusErr *retry.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, domain.ResolutionError("list builds", fmt.Errorf("%w %q", ErrUnknownVersion, version))
		}
		return nil, domain.ResolutionError("list builds", err)
	}

	builds := make([]int, 0, len(dto.Builds))
	for _, b := range dto.Builds {
		if b > 0 {
			builds = append(builds, b)
		}
	}
	sort.Ints(builds)

	g.logger.Log(ports.LogLevelDebug, "Listed builds", map[string]interface{}{
		"version": version,
		"count":   len(builds),
	})

	return builds, nil
}

// LatestBuild returns the highest build number of a version
func (g *BuildAPIGateway) LatestBuild(ctx context.Context, version string) (int, error) {
	builds, err := g.ListBuilds(ctx, version)
	if err != nil {
		return 0, err
	}
	if len(builds) == 0 {
		return 0, domain.ResolutionError("resolve latest build", fmt.Errorf("%w %q: no builds published", ErrUnknownVersion, version))
	}
	return builds[len(builds)-1], nil
}

// ResolveBuild returns the selected build number. Specific builds are returned
// without a network call; Latest is re-resolved on every call.
func (g *BuildAPIGateway) ResolveBuild(ctx context.Context, version string, selector build.Selector) (int, error) {
	switch selector.Kind() {
	case build.KindSpecific:
		n, _ := selector.Number()
		return n, nil
	case build.KindLatest:
		return g.LatestBuild(ctx, version)
	default:
		return 0, domain.ResolutionError("resolve build", fmt.Errorf("unsupported build selector %q", selector))
	}
}

// BuildInfo returns the download location and checksum of a build
func (g *BuildAPIGateway) BuildInfo(ctx context.Context, version string, build int) (*ports.BuildInfo, error) {
	query := url.Values{
		"version": {version},
		"build":   {strconv.Itoa(build)},
	}

	var dto BuildInfoDto
	err := g.getJSON(ctx, "build_info", "/build", query, &dto)
	if err != nil {
		var statusErr *retry.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, domain.ResolutionError("fetch build info", fmt.Errorf("%w %d of version %q", ErrUnknownBuild, build, version))
		}
		return nil, domain.ResolutionError("fetch build info", err)
	}

	if dto.URL == "" {
		return nil, domain.ResolutionError("fetch build info", fmt.Errorf("build %d of version %q has no download url", build, version))
	}

	downloadURL, err := g.resolveURL(dto.URL)
	if err != nil {
		return nil, domain.ResolutionError("fetch build info", err)
	}

	return &ports.BuildInfo{
		Version: version,
		Build:   build,
		Name:    dto.Name,
		URL:     downloadURL,
		SHA256:  strings.ToLower(strings.TrimSpace(dto.SHA256)),
		Size:    dto.Size,
	}, nil
}

// Download streams the artifact into dst. It does not retry: dst may already
// hold a partial body, so callers retry the whole transfer.
func (g *BuildAPIGateway) Download(ctx context.Context, info *ports.BuildInfo, dst io.Writer, progress ports.ProgressFunc) (int64, error) {
	if info == nil || info.URL == "" {
		return 0, domain.DownloadError("download", fmt.Errorf("no download url"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.URL, nil)
	if err != nil {
		return 0, domain.DownloadError("download", fmt.Errorf("failed to create download request: %w", err))
	}
	req.Header.Set("User-Agent", g.userAgent)

	g.logHTTPRequest(req, nil)

	start := time.Now()
	resp, err := g.downloadClient.Do(req)
	if err != nil {
		g.metrics.APIRequest("download", 0, time.Since(start))
		return 0, domain.DownloadError("download", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := readErrorBody(resp.Body)
		g.logHTTPResponse(resp, body, time.Since(start))
		g.metrics.APIRequest("download", resp.StatusCode, time.Since(start))
		return 0, domain.DownloadError("download", &retry.StatusError{
			Method:     req.Method,
			URL:        info.URL,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		})
	}

	total := resp.ContentLength
	if total <= 0 && info.Size > 0 {
		total = info.Size
	}
	if total <= 0 {
		total = -1
	}

	writer := dst
	if progress != nil {
		progress(0, total)
		writer = &progressWriter{dst: dst, total: total, report: progress}
	}

	n, err := io.Copy(writer, resp.Body)
	g.metrics.APIRequest("download", resp.StatusCode, time.Since(start))
	if err != nil {
		return n, domain.DownloadError("download", fmt.Errorf("transfer interrupted after %d bytes: %w", n, err))
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		return n, domain.DownloadError("download", fmt.Errorf("short body: got %d of %d bytes: %w", n, resp.ContentLength, io.ErrUnexpectedEOF))
	}

	g.logger.Log(ports.LogLevelDebug, "Download complete", map[string]interface{}{
		"url":        info.URL,
		"bytes":      n,
		"latency_ms": time.Since(start).Milliseconds(),
	})

	return n, nil
}

// getJSON performs a GET with retry and decodes the body into out
func (g *BuildAPIGateway) getJSON(ctx context.Context, operation, path string, query url.Values, out interface{}) error {
	endpoint := g.getEndpoint()
	target := endpoint + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	notify := func(attempt int, err error, delay time.Duration) {
		g.metrics.APIRetry(operation)
		g.logger.Log(ports.LogLevelWarn, "Retrying request", map[string]interface{}{
			"operation": operation,
			"attempt":   attempt + 1,
			"delay":     delay.String(),
			"error":     err.Error(),
		})
	}

	err := g.retryPolicy.Do(ctx, notify, func(int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		g.setRequestHeaders(req)

		g.logHTTPRequest(req, nil)

		start := time.Now()
		resp, err := g.httpClient.Do(req)
		latency := time.Since(start)
		if err != nil {
			g.metrics.APIRequest(operation, 0, latency)
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		g.metrics.APIRequest(operation, resp.StatusCode, latency)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		g.logHTTPResponse(resp, body, latency)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &retry.StatusError{
				Method:     req.Method,
				URL:        target,
				StatusCode: resp.StatusCode,
				Body:       truncate(string(body), maxErrorBody),
			}
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to parse response from %s: %w", target, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return nil
}

// resolveURL makes a download URL absolute against the endpoint
func (g *BuildAPIGateway) resolveURL(raw string) (string, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid download url %q: %w", raw, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}

	base, err := url.Parse(g.getEndpoint() + "/")
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

// setRequestHeaders sets common request headers
func (g *BuildAPIGateway) setRequestHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", g.userAgent)
}

// isDebugEnabled checks if debug logging is enabled
func (g *BuildAPIGateway) isDebugEnabled() bool {
	if g.logger != nil && g.logger.GetLogLevel() == ports.LogLevelDebug {
		return true
	}
	return os.Getenv("RUNSERVER_DEBUG") == "true"
}

// logHTTPRequest logs HTTP request details for debugging
func (g *BuildAPIGateway) logHTTPRequest(req *http.Request, body []byte) {
	if !g.isDebugEnabled() {
		return
	}

	g.logger.Log(ports.LogLevelDebug, "HTTP Request", map[string]interface{}{
		"method":    req.Method,
		"url":       req.URL.String(),
		"headers":   req.Header,
		"body_size": len(body),
	})
}

// logHTTPResponse logs HTTP response details for debugging
func (g *BuildAPIGateway) logHTTPResponse(resp *http.Response, body []byte, latency time.Duration) {
	if !g.isDebugEnabled() {
		return
	}

	g.logger.Log(ports.LogLevelDebug, "HTTP Response", map[string]interface{}{
		"status_code":  resp.StatusCode,
		"status":       resp.Status,
		"body_size":    len(body),
		"body_preview": truncate(string(body), 1000),
		"latency_ms":   latency.Milliseconds(),
	})
}

func readErrorBody(r io.Reader) []byte {
	body, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return body
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "... (truncated)"
}

type progressWriter struct {
	dst    io.Writer
	done   int64
	total  int64
	report ports.ProgressFunc
}

func (w *progressWriter) Write(p []byte) (int, error) {
	n, err := w.dst.Write(p)
	w.done += int64(n)
	w.report(w.done, w.total)
	return n, err
}

// BuildListDto is the response of GET /builds
type BuildListDto struct {
	Version string `json:"version"`
	Builds  []int  `json:"builds"`
}

// BuildInfoDto is the response of GET /build
type BuildInfoDto struct {
	Version string `json:"version"`
	Build   int    `json:"build"`
	Name    string `json:"name"`
	URL     string `json:"url"`
	SHA256  string `json:"sha256,omitempty"`
	Size    int64  `json:"size,omitempty"`
}
