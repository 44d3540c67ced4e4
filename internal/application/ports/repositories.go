package ports

import "time"

// ConfigurationRepository defines the interface for configuration persistence
type ConfigurationRepository interface {
	// Load retrieves the current configuration
	Load() (*Configuration, error)

	// Save persists the configuration
	Save(config *Configuration) error

	// LoadDefault returns the default configuration
	LoadDefault() *Configuration

	// Validate validates the configuration
	Validate(config *Configuration) error

	// GetConfigPath returns the path to the configuration file
	GetConfigPath() string

	// BackupConfig creates a backup of the current configuration
	BackupConfig() error
}

// Configuration is the user-level configuration shared by every launch
type Configuration struct {
	APIEndpoint      string `json:"api_endpoint"`
	CacheDir         string `json:"cache_dir,omitempty"`
	RequestTimeout   int    `json:"request_timeout"`  // seconds
	DownloadTimeout  int    `json:"download_timeout"` // seconds
	RetryAttempts    int    `json:"retry_attempts"`
	RetryDelay       int    `json:"retry_delay"`     // milliseconds
	MaxRetryDelay    int    `json:"max_retry_delay"` // milliseconds
	LockPollInterval int    `json:"lock_poll_interval"`
	UserAgent        string `json:"user_agent,omitempty"`
	Debug            bool   `json:"debug"`
	MetricsFile      string `json:"metrics_file,omitempty"`
	JavaHome         string `json:"java_home,omitempty"`
}

// RequestTimeoutDuration returns RequestTimeout as a duration
func (c *Configuration) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// DownloadTimeoutDuration returns DownloadTimeout as a duration
func (c *Configuration) DownloadTimeoutDuration() time.Duration {
	return time.Duration(c.DownloadTimeout) * time.Second
}

// RetryDelayDuration returns RetryDelay as a duration
func (c *Configuration) RetryDelayDuration() time.Duration {
	return time.Duration(c.RetryDelay) * time.Millisecond
}

// MaxRetryDelayDuration returns MaxRetryDelay as a duration
func (c *Configuration) MaxRetryDelayDuration() time.Duration {
	return time.Duration(c.MaxRetryDelay) * time.Millisecond
}

// LockPollIntervalDuration returns LockPollInterval (milliseconds) as a duration
func (c *Configuration) LockPollIntervalDuration() time.Duration {
	return time.Duration(c.LockPollInterval) * time.Millisecond
}
