package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runserver.dev/cli/internal/core/domain"
)

func TestParseRunConfig_Full(t *testing.T) {
	data := []byte(`
version: "1.18.2"
build: 66
artifact: servers/custom.jar
legacy_plugin_loading: true
run_dir: run
plugins:
  - build/libs/plugin.jar
  - /opt/plugins/helper.jar
jvm_args: ["-Xmx2G"]
system_properties:
  com.example.debug: "true"
args: ["--port", "25570"]
env:
  SERVER_ENV: dev
java: java17
main_class: net.example.Main
`)

	base := filepath.Join("/work", "project")
	cfg, err := ParseRunConfig(data, base)
	require.NoError(t, err)

	n, ok := cfg.Build.Number()
	require.True(t, ok)
	assert.Equal(t, 66, n)
	assert.Equal(t, "1.18.2", cfg.Version)
	assert.Equal(t, filepath.Join(base, "servers", "custom.jar"), cfg.ArtifactOverride)
	require.NotNil(t, cfg.LegacyPluginLoading)
	assert.True(t, *cfg.LegacyPluginLoading)
	assert.Equal(t, filepath.Join(base, "run"), cfg.RunDirectory)
	assert.Equal(t, []string{filepath.Join(base, "build", "libs", "plugin.jar"), "/opt/plugins/helper.jar"}, cfg.Plugins)
	assert.Equal(t, []string{"-Xmx2G"}, cfg.JVMArgs)
	assert.Equal(t, map[string]string{"com.example.debug": "true"}, cfg.SystemProperties)
	assert.Equal(t, []string{"--port", "25570"}, cfg.ServerArgs)
	assert.Equal(t, map[string]string{"SERVER_ENV": "dev"}, cfg.Environment)
	assert.Equal(t, "java17", cfg.JavaExecutable)
	assert.Equal(t, "net.example.Main", cfg.MainClass)
}

func TestParseRunConfig_Defaults(t *testing.T) {
	cfg, err := ParseRunConfig([]byte("version: \"1.16.3\"\n"), "")
	require.NoError(t, err)
	assert.True(t, cfg.Build.IsLatest())
	assert.Nil(t, cfg.LegacyPluginLoading)
	assert.Empty(t, cfg.Plugins)

	empty, err := ParseRunConfig(nil, "")
	require.NoError(t, err)
	assert.Equal(t, "", empty.Version)
}

func TestParseRunConfig_BuildSelector(t *testing.T) {
	latest, err := ParseRunConfig([]byte("build: LATEST\n"), "")
	require.NoError(t, err)
	assert.True(t, latest.Build.IsLatest())

	_, err = ParseRunConfig([]byte("build: -3\n"), "")
	assert.Error(t, err)

	_, err = ParseRunConfig([]byte("build: [1, 2]\n"), "")
	assert.Error(t, err)
}

func TestParseRunConfig_UnknownField(t *testing.T) {
	_, err := ParseRunConfig([]byte("versoin: \"1.18\"\n"), "")
	assert.Error(t, err)
}

func TestLoadRunConfig_FileErrors(t *testing.T) {
	_, err := LoadRunConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	bad := filepath.Join(t.TempDir(), "runserver.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("version: [\n"), 0644))
	_, err = LoadRunConfig(bad)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestFindRunConfig(t *testing.T) {
	dir := t.TempDir()
	_, ok := FindRunConfig(dir)
	assert.False(t, ok)

	path := filepath.Join(dir, "runserver.yml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"1.20\"\n"), 0644))

	found, ok := FindRunConfig(dir)
	assert.True(t, ok)
	assert.Equal(t, path, found)

	cfg, err := LoadRunConfig(found)
	require.NoError(t, err)
	assert.Equal(t, "1.20", cfg.Version)
}
