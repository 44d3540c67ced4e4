package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"runserver.dev/cli/internal/application/ports"
)

// DefaultAPIEndpoint is the build API used when nothing else is configured
const DefaultAPIEndpoint = "https://builds.runserver.dev/v1"

// CompositeConfigRepository implements the ConfigurationRepository interface
type CompositeConfigRepository struct {
	sources    []ConfigSource
	cache      *ConfigCache
	configPath string
	validator  *ConfigValidator
}

// ConfigSource defines the interface for configuration sources
type ConfigSource interface {
	Load() (*ports.Configuration, error)
	Priority() int
	Name() string
}

// ExplicitSource is implemented by sources that can set a setting to its zero
// value. The returned keys use the JSON names of the settings.
type ExplicitSource interface {
	ConfigSource
	LoadExplicit() (*ports.Configuration, map[string]bool, error)
}

// zeroableKeys are the settings whose zero value means something
var zeroableKeys = []string{"debug", "retry_attempts", "retry_delay"}

// ConfigCache provides caching for configuration
type ConfigCache struct {
	config    *ports.Configuration
	timestamp time.Time
	ttl       time.Duration
}

// NewCompositeConfigRepository creates a new configuration repository
func NewCompositeConfigRepository() *CompositeConfigRepository {
	// Check for config file from environment variable first
	configPath := os.Getenv("RUNSERVER_CONFIG_FILE")
	if configPath == "" {
		configPath = getDefaultConfigPath()
	}
	return NewCompositeConfigRepositoryWithPath(configPath)
}

// NewCompositeConfigRepositoryWithPath creates a repository reading the given config file
func NewCompositeConfigRepositoryWithPath(configPath string) *CompositeConfigRepository {
	repo := &CompositeConfigRepository{
		sources: make([]ConfigSource, 0),
		cache: &ConfigCache{
			ttl: 5 * time.Minute,
		},
		configPath: expandPath(configPath),
		validator:  NewConfigValidator(),
	}

	// Add default sources
	repo.AddSource(NewEnvironmentConfigSource())
	repo.AddSource(NewFileConfigSource(repo.configPath))

	return repo
}

// AddSource adds a configuration source
func (r *CompositeConfigRepository) AddSource(source ConfigSource) {
	r.sources = append(r.sources, source)
	r.cache.config = nil
}

// Load retrieves the current configuration
func (r *CompositeConfigRepository) Load() (*ports.Configuration, error) {
	// Check cache first
	if r.cache.config != nil && time.Since(r.cache.timestamp) < r.cache.ttl {
		clone := *r.cache.config
		return &clone, nil
	}

	// Start with default configuration
	config := r.LoadDefault()

	// Lower number = higher priority, so apply the highest number first and
	// let higher-priority sources overwrite it
	sortedSources := make([]ConfigSource, len(r.sources))
	copy(sortedSources, r.sources)
	sort.SliceStable(sortedSources, func(i, j int) bool {
		return sortedSources[i].Priority() > sortedSources[j].Priority()
	})

	for _, source := range sortedSources {
		var (
			sourceConfig *ports.Configuration
			explicit     map[string]bool
			err          error
		)
		if es, ok := source.(ExplicitSource); ok {
			sourceConfig, explicit, err = es.LoadExplicit()
		} else {
			sourceConfig, err = source.Load()
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load %s configuration: %w", source.Name(), err)
		}

		if sourceConfig != nil {
			config = r.mergeConfigurations(config, sourceConfig, explicit)
		}
	}

	config.CacheDir = expandPath(config.CacheDir)
	config.MetricsFile = expandPath(config.MetricsFile)
	config.JavaHome = expandPath(config.JavaHome)

	// Validate final configuration
	if err := r.Validate(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	// Cache the result
	cached := *config
	r.cache.config = &cached
	r.cache.timestamp = time.Now()

	return config, nil
}

// Save persists the configuration
func (r *CompositeConfigRepository) Save(config *ports.Configuration) error {
	if err := r.Validate(config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(r.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Marshal to JSON with indentation
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	tmp := r.configPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	if err := os.Rename(tmp, r.configPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	// Invalidate cache
	r.cache.config = nil

	return nil
}

// LoadDefault returns the default configuration
func (r *CompositeConfigRepository) LoadDefault() *ports.Configuration {
	return &ports.Configuration{
		APIEndpoint:      DefaultAPIEndpoint,
		CacheDir:         getDefaultCacheDir(),
		RequestTimeout:   30,
		DownloadTimeout:  600,
		RetryAttempts:    3,
		RetryDelay:       1000,
		MaxRetryDelay:    30000,
		LockPollInterval: 100,
		UserAgent:        "runserver-cli/1.0",
		Debug:            false,
	}
}

// Validate validates the configuration
func (r *CompositeConfigRepository) Validate(config *ports.Configuration) error {
	if config == nil {
		return fmt.Errorf("configuration cannot be nil")
	}

	if err := r.validator.ValidateAPIEndpoint(config.APIEndpoint); err != nil {
		return err
	}

	if err := r.validator.ValidateCacheDir(config.CacheDir); err != nil {
		return err
	}

	if err := r.validator.ValidateTimeout(config.RequestTimeoutDuration(), MaxRequestTimeout); err != nil {
		return fmt.Errorf("request timeout: %w", err)
	}

	if err := r.validator.ValidateTimeout(config.DownloadTimeoutDuration(), MaxDownloadTimeout); err != nil {
		return fmt.Errorf("download timeout: %w", err)
	}

	if config.RetryAttempts < 0 {
		return fmt.Errorf("retry attempts cannot be negative")
	}

	if config.RetryDelay < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}

	if config.MaxRetryDelay < config.RetryDelay {
		return fmt.Errorf("max retry delay cannot be less than retry delay")
	}

	if config.LockPollInterval <= 0 {
		return fmt.Errorf("lock poll interval must be greater than 0")
	}

	return nil
}

// GetConfigPath returns the path to the configuration file
func (r *CompositeConfigRepository) GetConfigPath() string {
	return r.configPath
}

// BackupConfig creates a backup of the current configuration
func (r *CompositeConfigRepository) BackupConfig() error {
	if _, err := os.Stat(r.configPath); os.IsNotExist(err) {
		return nil // No config file to backup
	}

	backupPath := r.configPath + ".backup." + time.Now().Format("20060102-150405")

	data, err := os.ReadFile(r.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file for backup: %w", err)
	}

	if err := os.WriteFile(backupPath, data, 0644); err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}

	return nil
}

// mergeConfigurations merges two configurations (source overwrites target).
// Zero values only overwrite when the key is in explicit.
func (r *CompositeConfigRepository) mergeConfigurations(target, source *ports.Configuration, explicit map[string]bool) *ports.Configuration {
	if source == nil {
		return target
	}
	if target == nil {
		return source
	}

	result := *target // Copy target

	// String fields - override if not empty
	if source.APIEndpoint != "" {
		result.APIEndpoint = source.APIEndpoint
	}
	if source.CacheDir != "" {
		result.CacheDir = source.CacheDir
	}
	if source.UserAgent != "" {
		result.UserAgent = source.UserAgent
	}
	if source.MetricsFile != "" {
		result.MetricsFile = source.MetricsFile
	}
	if source.JavaHome != "" {
		result.JavaHome = source.JavaHome
	}

	// Integer fields - override if not zero
	if source.RequestTimeout != 0 {
		result.RequestTimeout = source.RequestTimeout
	}
	if source.DownloadTimeout != 0 {
		result.DownloadTimeout = source.DownloadTimeout
	}
	if source.RetryAttempts != 0 || explicit["retry_attempts"] {
		result.RetryAttempts = source.RetryAttempts
	}
	if source.RetryDelay != 0 || explicit["retry_delay"] {
		result.RetryDelay = source.RetryDelay
	}
	if source.MaxRetryDelay != 0 {
		result.MaxRetryDelay = source.MaxRetryDelay
	}
	if source.LockPollInterval != 0 {
		result.LockPollInterval = source.LockPollInterval
	}

	if source.Debug || explicit["debug"] {
		result.Debug = source.Debug
	}

	return &result
}

// FileConfigSource loads configuration from a JSON file
type FileConfigSource struct {
	filePath string
}

// NewFileConfigSource creates a new file configuration source
func NewFileConfigSource(filePath string) *FileConfigSource {
	return &FileConfigSource{
		filePath: filePath,
	}
}

// Load loads configuration from file
func (f *FileConfigSource) Load() (*ports.Configuration, error) {
	config, _, err := f.LoadExplicit()
	return config, err
}

// LoadExplicit loads the file and reports which zeroable keys it sets
func (f *FileConfigSource) LoadExplicit() (*ports.Configuration, map[string]bool, error) {
	if _, err := os.Stat(f.filePath); os.IsNotExist(err) {
		return nil, nil, nil // File doesn't exist, return nil config
	}

	data, err := os.ReadFile(f.filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config ports.Configuration
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file %s: %w", f.filePath, err)
	}

	var present map[string]json.RawMessage
	if err := json.Unmarshal(data, &present); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file %s: %w", f.filePath, err)
	}
	explicit := make(map[string]bool)
	for _, key := range zeroableKeys {
		if _, ok := present[key]; ok {
			explicit[key] = true
		}
	}

	return &config, explicit, nil
}

// Priority returns the priority of this source (lower number = higher priority)
func (f *FileConfigSource) Priority() int {
	return 100 // Low priority
}

// Name returns the name of this source
func (f *FileConfigSource) Name() string {
	return "file"
}

// EnvironmentConfigSource loads configuration from environment variables
type EnvironmentConfigSource struct{}

// NewEnvironmentConfigSource creates a new environment configuration source
func NewEnvironmentConfigSource() *EnvironmentConfigSource {
	return &EnvironmentConfigSource{}
}

// Load loads configuration from environment variables
func (e *EnvironmentConfigSource) Load() (*ports.Configuration, error) {
	config, _, err := e.LoadExplicit()
	return config, err
}

// LoadExplicit loads environment variables and reports which zeroable keys
// they set. Unparsable values are ignored.
func (e *EnvironmentConfigSource) LoadExplicit() (*ports.Configuration, map[string]bool, error) {
	config := &ports.Configuration{}
	explicit := make(map[string]bool)

	if val := os.Getenv("RUNSERVER_API_URL"); val != "" {
		config.APIEndpoint = val
	}
	if val := os.Getenv("RUNSERVER_CACHE_DIR"); val != "" {
		config.CacheDir = val
	}
	if val := os.Getenv("RUNSERVER_USER_AGENT"); val != "" {
		config.UserAgent = val
	}
	if val := os.Getenv("RUNSERVER_METRICS_FILE"); val != "" {
		config.MetricsFile = val
	}
	if val := os.Getenv("RUNSERVER_JAVA_HOME"); val != "" {
		config.JavaHome = val
	}
	if val := os.Getenv("RUNSERVER_DEBUG"); val != "" {
		if debug, err := strconv.ParseBool(val); err == nil {
			config.Debug = debug
			explicit["debug"] = true
		}
	}

	if val := os.Getenv("RUNSERVER_REQUEST_TIMEOUT"); val != "" {
		if timeout, err := strconv.Atoi(val); err == nil && timeout > 0 {
			config.RequestTimeout = timeout
		}
	}
	if val := os.Getenv("RUNSERVER_DOWNLOAD_TIMEOUT"); val != "" {
		if timeout, err := strconv.Atoi(val); err == nil && timeout > 0 {
			config.DownloadTimeout = timeout
		}
	}
	if val := os.Getenv("RUNSERVER_RETRY_ATTEMPTS"); val != "" {
		if attempts, err := strconv.Atoi(val); err == nil && attempts >= 0 {
			config.RetryAttempts = attempts
			explicit["retry_attempts"] = true
		}
	}
	if val := os.Getenv("RUNSERVER_RETRY_DELAY"); val != "" {
		if delay, err := strconv.Atoi(val); err == nil && delay >= 0 {
			config.RetryDelay = delay
			explicit["retry_delay"] = true
		}
	}

	return config, explicit, nil
}

// Priority returns the priority of this source (lower number = higher priority)
func (e *EnvironmentConfigSource) Priority() int {
	return 10 // High priority
}

// Name returns the name of this source
func (e *EnvironmentConfigSource) Name() string {
	return "environment"
}

// getDefaultConfigPath returns the default configuration file path
func getDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory
		return ".runserver-config.json"
	}

	return filepath.Join(homeDir, ".config", "runserver", "config.json")
}

// getDefaultCacheDir returns the per-user artifact cache directory
func getDefaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "runserver-cache")
	}
	return filepath.Join(dir, "runserver")
}
