package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"runserver.dev/cli/internal/core/build"
	"runserver.dev/cli/internal/core/domain"
)

// RunConfigFileNames are looked up in the working directory when no run
// configuration file is given explicitly
var RunConfigFileNames = []string{"runserver.yaml", "runserver.yml"}

// RunConfigFile is the YAML form of a launch configuration
type RunConfigFile struct {
	Version             string            `yaml:"version"`
	Build               yaml.Node         `yaml:"build"`
	Artifact            string            `yaml:"artifact"`
	LegacyPluginLoading *bool             `yaml:"legacy_plugin_loading"`
	RunDir              string            `yaml:"run_dir"`
	Plugins             []string          `yaml:"plugins"`
	JVMArgs             []string          `yaml:"jvm_args"`
	SystemProperties    map[string]string `yaml:"system_properties"`
	Args                []string          `yaml:"args"`
	Env                 map[string]string `yaml:"env"`
	Java                string            `yaml:"java"`
	MainClass           string            `yaml:"main_class"`
}

// FindRunConfig returns the first run configuration file present in dir
func FindRunConfig(dir string) (string, bool) {
	for _, name := range RunConfigFileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, true
		}
	}
	return "", false
}

// LoadRunConfig reads a YAML run configuration. Relative paths are resolved
// against the file's directory.
func LoadRunConfig(path string) (domain.RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.RunConfig{}, domain.ConfigurationError("read run configuration", err)
	}

	cfg, err := ParseRunConfig(data, filepath.Dir(path))
	if err != nil {
		return domain.RunConfig{}, domain.ConfigurationError("parse run configuration", fmt.Errorf("%s: %w", path, err))
	}
	return cfg, nil
}

// ParseRunConfig decodes YAML into a RunConfig, resolving relative paths against baseDir
func ParseRunConfig(data []byte, baseDir string) (domain.RunConfig, error) {
	var file RunConfigFile

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return domain.RunConfig{}, err
	}

	selector := build.Latest()
	if file.Build.Kind != 0 {
		if file.Build.Kind != yaml.ScalarNode {
			return domain.RunConfig{}, fmt.Errorf("line %d: build must be \"latest\" or a build number", file.Build.Line)
		}
		var err error
		selector, err = build.ParseSelector(file.Build.Value)
		if err != nil {
			return domain.RunConfig{}, fmt.Errorf("line %d: %w", file.Build.Line, err)
		}
	}

	cfg := domain.RunConfig{
		Version:             file.Version,
		Build:               selector,
		ArtifactOverride:    resolvePath(baseDir, file.Artifact),
		LegacyPluginLoading: file.LegacyPluginLoading,
		RunDirectory:        resolvePath(baseDir, file.RunDir),
		JVMArgs:             file.JVMArgs,
		SystemProperties:    file.SystemProperties,
		ServerArgs:          file.Args,
		Environment:         file.Env,
		JavaExecutable:      ResolveExecutable(baseDir, file.Java),
		MainClass:           file.MainClass,
	}
	for _, p := range file.Plugins {
		cfg.Plugins = append(cfg.Plugins, resolvePath(baseDir, p))
	}
	return cfg, nil
}

func resolvePath(baseDir, p string) string {
	if p == "" {
		return ""
	}
	p = expandPath(p)
	if filepath.IsAbs(p) || baseDir == "" {
		return p
	}
	return filepath.Join(baseDir, p)
}

// ResolveExecutable makes an executable path absolute against baseDir. Bare
// command names are left for PATH lookup.
func ResolveExecutable(baseDir, p string) string {
	if p == "" || filepath.Base(p) == p {
		return p
	}
	return resolvePath(baseDir, p)
}
