// Package cache stores downloaded server artifacts on disk, keyed by
// (version, build). An artifact file at its final path is always complete:
// downloads go to a temp file in the same directory and are published with a
// single rename. Misses are serialised per key across processes with an OS
// advisory lock and within a process with a singleflight group.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"runserver.dev/cli/internal/application/ports"
	"runserver.dev/cli/internal/core/domain"
	"runserver.dev/cli/internal/core/version"
	"runserver.dev/cli/internal/infrastructure/metrics"
	"runserver.dev/cli/internal/infrastructure/retry"
)

const (
	artifactPrefix = "server-"
	artifactExt    = ".jar"
	sidecarExt     = ".json"
	lockExt        = ".lock"
	tempExt        = ".part"

	// StaleTempAge is the age after which Prune treats a temp file as abandoned
	StaleTempAge = time.Hour
)

// ErrChecksumMismatch is returned when a download does not match the API checksum
var ErrChecksumMismatch = errors.New("checksum mismatch")

// ErrEmptyArtifact is returned when a download completes with no content
var ErrEmptyArtifact = errors.New("downloaded artifact is empty")

// Entry describes one cached artifact. It is also the sidecar file format.
type Entry struct {
	Version      string    `json:"version"`
	Build        int       `json:"build"`
	Path         string    `json:"-"`
	Name         string    `json:"name,omitempty"`
	SourceURL    string    `json:"source_url,omitempty"`
	SHA256       string    `json:"sha256"`
	Size         int64     `json:"size"`
	DownloadedAt time.Time `json:"downloaded_at"`
	Validated    bool      `json:"validated"`
}

// PruneResult reports what Prune removed
type PruneResult struct {
	Removed      []Entry
	TempsRemoved int
}

// ArtifactCache implements ports.ArtifactStore on a local directory
type ArtifactCache struct {
	root        string
	api         ports.BuildAPI
	locker      *Locker
	retryPolicy retry.Policy
	logger      ports.LoggingGateway
	metrics     ports.MetricsRecorder
	group       singleflight.Group
	now         func() time.Time

	flightsMu sync.Mutex
	flights   map[string]*flight
	flightSeq uint64
}

// NewArtifactCache creates a cache rooted at root that downloads through api
func NewArtifactCache(root string, api ports.BuildAPI, logger ports.LoggingGateway, recorder ports.MetricsRecorder) *ArtifactCache {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &ArtifactCache{
		root:        root,
		api:         api,
		locker:      NewLocker(DefaultLockPollInterval),
		retryPolicy: retry.DefaultPolicy(),
		logger:      logger,
		metrics:     recorder,
		now:         time.Now,
		flights:     make(map[string]*flight),
	}
}

// DefaultRoot returns the per-user cache directory
func DefaultRoot() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine user cache directory: %w", err)
	}
	return filepath.Join(dir, "runserver"), nil
}

// SetRetryPolicy sets the policy used for artifact transfers
func (c *ArtifactCache) SetRetryPolicy(policy retry.Policy) {
	c.retryPolicy = policy
}

// SetLockPollInterval sets how often a waiting process retries the key lock
func (c *ArtifactCache) SetLockPollInterval(interval time.Duration) {
	c.locker = NewLocker(interval)
}

// Root returns the cache root directory
func (c *ArtifactCache) Root() string {
	return c.root
}

// ArtifactPath returns the final on-disk path of a cache key
func (c *ArtifactCache) ArtifactPath(ver string, build int) string {
	b := strconv.Itoa(build)
	return filepath.Join(c.root, ver, b, artifactPrefix+ver+"-"+b+artifactExt)
}

// Lookup returns the artifact path if the key is already cached
func (c *ArtifactCache) Lookup(ver string, build int) (string, bool, error) {
	if err := validateKey(ver, build); err != nil {
		return "", false, err
	}
	path := c.ArtifactPath(ver, build)
	ok, err := isRegularFile(path)
	if err != nil {
		return "", false, domain.FilesystemError("check cache", err)
	}
	return path, ok, nil
}

// Resolve returns the path of the cached artifact, downloading it first on a
// miss. Hits take no lock and make no network call.
func (c *ArtifactCache) Resolve(ctx context.Context, ver string, build int, progress ports.ProgressFunc) (string, error) {
	path, ok, err := c.Lookup(ver, build)
	if err != nil {
		return "", err
	}
	if ok {
		c.metrics.CacheHit(ver)
		c.log(ports.LogLevelDebug, "Cache hit", map[string]interface{}{
			"version": ver,
			"build":   build,
			"path":    path,
		})
		return path, nil
	}

	c.metrics.CacheMiss(ver)
	c.log(ports.LogLevelDebug, "Cache miss", map[string]interface{}{
		"version": ver,
		"build":   build,
	})

	// Waiters share one download but each stops waiting on its own ctx
	f, leave := c.join(ctx, ver+"/"+strconv.Itoa(build), progress)
	defer leave()

	ch := c.group.DoChan(f.key, func() (interface{}, error) {
		return nil, c.fill(f.ctx, ver, build, path, f.report)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return path, nil
	case <-ctx.Done():
		return "", domain.DownloadError("download artifact", ctx.Err())
	}
}

// fill downloads the artifact under the key lock unless another process
// published it while this one waited
func (c *ArtifactCache) fill(ctx context.Context, ver string, build int, path string, progress ports.ProgressFunc) error {
	unlock, err := c.locker.Acquire(ctx, path+lockExt)
	if err != nil {
		return domain.FilesystemError("lock cache entry", err)
	}
	defer unlock()

	ok, err := isRegularFile(path)
	if err != nil {
		return domain.FilesystemError("check cache", err)
	}
	if ok {
		c.log(ports.LogLevelDebug, "Artifact published by another process", map[string]interface{}{
			"version": ver,
			"build":   build,
		})
		return nil
	}

	info, err := c.api.BuildInfo(ctx, ver, build)
	if err != nil {
		return err
	}

	start := c.now()
	var size int64
	notify := func(attempt int, err error, delay time.Duration) {
		c.metrics.APIRetry("download")
		c.log(ports.LogLevelWarn, "Retrying download", map[string]interface{}{
			"version": ver,
			"build":   build,
			"attempt": attempt + 1,
			"delay":   delay.String(),
			"error":   err.Error(),
		})
	}
	err = c.retryPolicy.Do(ctx, notify, func(int) error {
		n, err := c.download(ctx, info, path, progress)
		size = n
		return err
	})
	if err != nil {
		c.metrics.DownloadFailed(ver)
		if _, ok := domain.KindOf(err); !ok {
			err = domain.DownloadError("download artifact", err)
		}
		return err
	}

	elapsed := c.now().Sub(start)
	c.metrics.DownloadCompleted(ver, size, elapsed)
	c.log(ports.LogLevelInfo, "Artifact cached", map[string]interface{}{
		"version":    ver,
		"build":      build,
		"bytes":      size,
		"path":       path,
		"elapsed_ms": elapsed.Milliseconds(),
	})
	return nil
}

// download performs one transfer attempt. Nothing is left behind on failure.
func (c *ArtifactCache) download(ctx context.Context, info *ports.BuildInfo, path string, progress ports.ProgressFunc) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, domain.FilesystemError("create cache directory", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*"+tempExt)
	if err != nil {
		return 0, domain.FilesystemError("create temp file", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	hash := sha256.New()
	n, err := c.api.Download(ctx, info, io.MultiWriter(tmp, hash), progress)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, domain.DownloadError("download artifact", ErrEmptyArtifact)
	}

	sum := hex.EncodeToString(hash.Sum(nil))
	if info.SHA256 != "" && !strings.EqualFold(sum, info.SHA256) {
		return n, domain.DownloadError("verify artifact", fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, info.SHA256, sum))
	}

	if err := tmp.Chmod(0644); err != nil {
		return n, domain.FilesystemError("publish artifact", err)
	}
	if err := tmp.Sync(); err != nil {
		return n, domain.FilesystemError("publish artifact", err)
	}
	if err := tmp.Close(); err != nil {
		return n, domain.FilesystemError("publish artifact", err)
	}

	entry := Entry{
		Version:      info.Version,
		Build:        info.Build,
		Name:         info.Name,
		SourceURL:    info.URL,
		SHA256:       sum,
		Size:         n,
		DownloadedAt: c.now().UTC(),
		Validated:    info.SHA256 != "",
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return n, domain.FilesystemError("write cache metadata", err)
	}
	if err := writeFileAtomic(path+sidecarExt, data, 0644); err != nil {
		return n, domain.FilesystemError("write cache metadata", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return n, domain.FilesystemError("publish artifact", err)
	}
	return n, nil
}

// List returns every cached artifact ordered by version, then build
func (c *ArtifactCache) List() ([]Entry, error) {
	versions, err := os.ReadDir(c.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, domain.FilesystemError("list cache", err)
	}

	var entries []Entry
	for _, v := range versions {
		if !v.IsDir() || version.ValidateName(v.Name()) != nil {
			continue
		}
		builds, err := os.ReadDir(filepath.Join(c.root, v.Name()))
		if err != nil {
			return nil, domain.FilesystemError("list cache", err)
		}
		for _, b := range builds {
			n, err := strconv.Atoi(b.Name())
			if !b.IsDir() || err != nil || n <= 0 {
				continue
			}
			entry, ok, err := c.readEntry(v.Name(), n)
			if err != nil {
				return nil, err
			}
			if ok {
				entries = append(entries, entry)
			}
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if cmp := version.Parse(entries[i].Version).Compare(version.Parse(entries[j].Version)); cmp != 0 {
			return cmp < 0
		}
		return entries[i].Build < entries[j].Build
	})
	return entries, nil
}

func (c *ArtifactCache) readEntry(ver string, build int) (Entry, bool, error) {
	path := c.ArtifactPath(ver, build)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, false, nil
		}
		return Entry{}, false, domain.FilesystemError("read cache entry", err)
	}
	if !info.Mode().IsRegular() {
		return Entry{}, false, nil
	}

	entry := Entry{
		Version:      ver,
		Build:        build,
		Size:         info.Size(),
		DownloadedAt: info.ModTime().UTC(),
	}
	if data, err := os.ReadFile(path + sidecarExt); err == nil {
		// An unreadable sidecar only loses metadata
		_ = json.Unmarshal(data, &entry)
	}
	entry.Version = ver
	entry.Build = build
	entry.Path = path
	return entry, true, nil
}

// Remove deletes one cached artifact and its metadata under the key lock
func (c *ArtifactCache) Remove(ctx context.Context, ver string, build int) (bool, error) {
	if err := validateKey(ver, build); err != nil {
		return false, err
	}
	path := c.ArtifactPath(ver, build)

	ok, err := isRegularFile(path)
	if err != nil {
		return false, domain.FilesystemError("check cache", err)
	}
	if !ok {
		return false, nil
	}

	removed := false
	err = c.locker.WithLock(ctx, path+lockExt, func() error {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		if err := os.Remove(path + sidecarExt); err != nil && !os.IsNotExist(err) {
			return err
		}
		removed = true
		return nil
	})
	if err != nil {
		return false, domain.FilesystemError("remove cache entry", err)
	}

	c.log(ports.LogLevelInfo, "Removed cached artifact", map[string]interface{}{
		"version": ver,
		"build":   build,
	})
	return removed, nil
}

// Prune keeps the newest keepPerVersion builds of every version and removes
// temp files abandoned by interrupted downloads
func (c *ArtifactCache) Prune(ctx context.Context, keepPerVersion int) (*PruneResult, error) {
	if keepPerVersion < 0 {
		return nil, domain.ConfigurationErrorf("prune cache", "keep count must not be negative, got %d", keepPerVersion)
	}

	entries, err := c.List()
	if err != nil {
		return nil, err
	}

	byVersion := make(map[string][]Entry)
	var order []string
	for _, e := range entries {
		if _, seen := byVersion[e.Version]; !seen {
			order = append(order, e.Version)
		}
		byVersion[e.Version] = append(byVersion[e.Version], e)
	}

	result := &PruneResult{}
	for _, ver := range order {
		group := byVersion[ver]
		if len(group) <= keepPerVersion {
			continue
		}
		// group is sorted by build ascending
		for _, e := range group[:len(group)-keepPerVersion] {
			removed, err := c.Remove(ctx, e.Version, e.Build)
			if err != nil {
				return result, err
			}
			if removed {
				result.Removed = append(result.Removed, e)
			}
		}
	}

	temps, err := c.removeStaleTemps()
	result.TempsRemoved = temps
	if err != nil {
		return result, err
	}
	return result, nil
}

func (c *ArtifactCache) removeStaleTemps() (int, error) {
	cutoff := c.now().Add(-StaleTempAge)
	removed := 0

	err := filepath.WalkDir(c.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !isTempName(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return removed, domain.FilesystemError("prune temp files", err)
	}
	return removed, nil
}

func (c *ArtifactCache) log(level ports.LogLevel, message string, fields map[string]interface{}) {
	if c.logger != nil {
		c.logger.Log(level, message, fields)
	}
}

func validateKey(ver string, build int) error {
	if err := version.ValidateName(ver); err != nil {
		return domain.ConfigurationError("cache key", err)
	}
	if build <= 0 {
		return domain.ConfigurationErrorf("cache key", "build number must be positive, got %d", build)
	}
	return nil
}

func isTempName(name string) bool {
	return strings.HasPrefix(name, "."+artifactPrefix) && strings.HasSuffix(name, tempExt)
}

func isRegularFile(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp, err := os.CreateTemp(dir, "."+base+".*"+tempExt)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	_ = tmp.Sync()
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
