// Package rundir prepares the per-launch working directory and makes plugin
// artifacts visible to the server. One launch per run directory at a time:
// cleanup and copy are not safe against a concurrent launch in the same tree.
package rundir

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"runserver.dev/cli/internal/application/ports"
	"runserver.dev/cli/internal/core/domain"
	"runserver.dev/cli/internal/core/launch"
)

// PrepareRunDirectory creates runDir and runDir/plugins and returns the
// plugins directory. Existing content is left alone.
func PrepareRunDirectory(runDir string) (string, error) {
	if runDir == "" {
		return "", domain.ConfigurationErrorf("prepare run directory", "run directory is required")
	}

	pluginsDir := filepath.Join(runDir, launch.PluginsDirName)
	if err := os.MkdirAll(pluginsDir, 0755); err != nil {
		return "", domain.FilesystemError("prepare run directory", err)
	}
	return pluginsDir, nil
}

// CleanupLegacyArtifacts removes plugin copies left by an earlier legacy-copy
// launch. Only regular files whose name is exactly a reserved copy name are
// removed; user files in the same directory are never touched.
func CleanupLegacyArtifacts(pluginsDir string) ([]string, error) {
	entries, err := os.ReadDir(pluginsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, domain.FilesystemError("clean plugins directory", err)
	}

	var removed []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !launch.IsLegacyPluginName(entry.Name()) {
			continue
		}
		path := filepath.Join(pluginsDir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return removed, domain.FilesystemError("clean plugins directory", err)
		}
		removed = append(removed, path)
	}
	sort.Strings(removed)
	return removed, nil
}

// ApplyInjection makes plugins visible to the server and returns the server
// arguments the chosen mode needs. LegacyCopy is all-or-nothing: if any copy
// fails, copies made by this call are removed.
func ApplyInjection(mode launch.InjectionMode, plugins []string, pluginsDir string) ([]string, error) {
	switch mode {
	case launch.ModeCommandLineArgument:
		abs, err := absolutePaths(plugins)
		if err != nil {
			return nil, err
		}
		return launch.AddPluginArgs(abs), nil

	case launch.ModeLegacyCopy:
		var copied []string
		for i, plugin := range plugins {
			dst := filepath.Join(pluginsDir, launch.LegacyPluginName(i))
			if err := copyFile(plugin, dst); err != nil {
				for _, c := range copied {
					_ = os.Remove(c)
				}
				return nil, domain.FilesystemError("copy plugin", fmt.Errorf("%s: %w", plugin, err))
			}
			copied = append(copied, dst)
		}
		return nil, nil

	default:
		return nil, domain.ConfigurationErrorf("apply plugin injection", "unknown injection mode %q", mode)
	}
}

func absolutePaths(paths []string) ([]string, error) {
	abs := make([]string, 0, len(paths))
	for _, p := range paths {
		a, err := filepath.Abs(p)
		if err != nil {
			return nil, domain.FilesystemError("resolve plugin path", err)
		}
		abs = append(abs, a)
	}
	return abs, nil
}

// copyFile copies src to dst through a temp file in dst's directory, so dst
// is either absent or complete
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := io.Copy(tmp, in); err != nil {
		return err
	}
	if err := tmp.Chmod(0644); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, dst)
}

// Manager implements ports.RunDirectoryManager with the functions above
type Manager struct {
	logger ports.LoggingGateway
}

// NewManager creates a run directory manager
func NewManager(logger ports.LoggingGateway) *Manager {
	return &Manager{logger: logger}
}

func (m *Manager) Prepare(runDir string) (string, error) {
	return PrepareRunDirectory(runDir)
}

func (m *Manager) CleanupLegacy(pluginsDir string) ([]string, error) {
	removed, err := CleanupLegacyArtifacts(pluginsDir)
	if len(removed) > 0 && m.logger != nil {
		m.logger.Log(ports.LogLevelDebug, "Removed stale plugin copies", map[string]interface{}{
			"plugins_dir": pluginsDir,
			"count":       len(removed),
		})
	}
	return removed, err
}

func (m *Manager) ApplyInjection(mode launch.InjectionMode, plugins []string, pluginsDir string) ([]string, error) {
	return ApplyInjection(mode, plugins, pluginsDir)
}
