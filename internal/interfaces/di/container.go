package di

import (
	"context"
	"fmt"
	"log"
	"os"

	"runserver.dev/cli/internal/application/ports"
	"runserver.dev/cli/internal/application/services"
	"runserver.dev/cli/internal/infrastructure/api"
	"runserver.dev/cli/internal/infrastructure/cache"
	"runserver.dev/cli/internal/infrastructure/config"
	"runserver.dev/cli/internal/infrastructure/metrics"
	"runserver.dev/cli/internal/infrastructure/process"
	"runserver.dev/cli/internal/infrastructure/retry"
	"runserver.dev/cli/internal/infrastructure/rundir"
	"runserver.dev/cli/internal/interfaces/cli"
)

// Container holds all application dependencies
type Container struct {
	// Configuration
	ConfigRepo    *config.CompositeConfigRepository
	ConfigService *services.ConfigurationService
	Config        *ports.Configuration

	// Infrastructure
	Metrics    *metrics.Recorder
	APIGateway *api.BuildAPIGateway
	Cache      *cache.ArtifactCache
	RunDirs    *rundir.Manager
	Executor   *process.Executor

	// Application services
	Planner       *services.LaunchPlanner
	LaunchService *services.LaunchService

	// CLI
	CLIContainer *cli.CLIContainer

	// Logger
	Logger  *log.Logger
	logging *loggingGatewayAdapter
}

// NewContainer creates and configures the dependency injection container
func NewContainer() (*Container, error) {
	return newContainer(config.NewCompositeConfigRepository())
}

// NewContainerWithConfigPath creates a container reading the given config file
func NewContainerWithConfigPath(path string) (*Container, error) {
	return newContainer(config.NewCompositeConfigRepositoryWithPath(path))
}

func newContainer(repo *config.CompositeConfigRepository) (*Container, error) {
	logger := log.New(os.Stderr, "[runserver] ", log.LstdFlags)
	container := &Container{
		ConfigRepo:   repo,
		Logger:       logger,
		logging:      &loggingGatewayAdapter{logger: logger, logLevel: ports.LogLevelWarn},
		Metrics:      metrics.NewRecorder(),
		CLIContainer: &cli.CLIContainer{},
	}
	container.CLIContainer.MainContainer = container

	if err := container.initializeComponents(); err != nil {
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return container, nil
}

// initializeComponents builds every component from the loaded configuration
func (c *Container) initializeComponents() error {
	// 1. Load configuration
	appConfig, err := c.ConfigRepo.Load()
	if err != nil {
		c.Logger.Printf("Warning: Failed to load configuration, using defaults: %v", err)
		appConfig = c.ConfigRepo.LoadDefault()
	}
	c.Config = appConfig

	if appConfig.Debug {
		c.logging.SetLogLevel(ports.LogLevelDebug)
	}

	// 2. Initialize infrastructure components
	policy := retry.Policy{
		MaxAttempts: appConfig.RetryAttempts,
		BaseDelay:   appConfig.RetryDelayDuration(),
		MaxDelay:    appConfig.MaxRetryDelayDuration(),
		Multiplier:  2.0,
	}

	c.APIGateway = api.NewBuildAPIGateway(appConfig.APIEndpoint, c.logging, c.Metrics)
	c.APIGateway.SetRetryPolicy(policy)
	c.APIGateway.SetTimeouts(appConfig.RequestTimeoutDuration(), appConfig.DownloadTimeoutDuration())
	if appConfig.UserAgent != "" {
		c.APIGateway.SetUserAgent(appConfig.UserAgent)
	}

	c.RunDirs = rundir.NewManager(c.logging)
	c.Executor = process.NewExecutor(c.logging)
	c.Executor.SetJavaHome(appConfig.JavaHome)

	if err := c.buildCache(appConfig.CacheDir, policy); err != nil {
		return err
	}

	// 3. Initialize application services
	c.ConfigService = services.NewConfigurationService(c.ConfigRepo, c.logging)
	c.wireServices()

	return nil
}

func (c *Container) buildCache(root string, policy retry.Policy) error {
	if root == "" {
		defaultRoot, err := cache.DefaultRoot()
		if err != nil {
			return fmt.Errorf("failed to determine cache directory: %w", err)
		}
		root = defaultRoot
	}

	c.Cache = cache.NewArtifactCache(root, c.APIGateway, c.logging, c.Metrics)
	c.Cache.SetRetryPolicy(policy)
	if c.Config.LockPollInterval > 0 {
		c.Cache.SetLockPollInterval(c.Config.LockPollIntervalDuration())
	}
	return nil
}

// wireServices rebuilds the services that depend on replaceable components
func (c *Container) wireServices() {
	c.Planner = services.NewLaunchPlanner(c.APIGateway, c.Cache, c.RunDirs, c.logging)
	c.Planner.SetMainClassReader(c.Executor)
	c.LaunchService = services.NewLaunchService(c.Planner, c.Executor, c.logging)

	c.CLIContainer.ConfigService = c.ConfigService
	c.CLIContainer.LaunchService = c.LaunchService
	c.CLIContainer.Cache = c.Cache
	c.CLIContainer.ConfigRepo = c.ConfigRepo
	c.CLIContainer.Config = c.Config
	c.CLIContainer.Logger = c.logging
}

// GetCLIContainer returns the CLI container for command execution
func (c *Container) GetCLIContainer() *cli.CLIContainer {
	return c.CLIContainer
}

// ApplyConfigFileOverride reloads every component from another config file
func (c *Container) ApplyConfigFileOverride(path string) error {
	if path == "" {
		return fmt.Errorf("config file path cannot be empty")
	}

	c.ConfigRepo = config.NewCompositeConfigRepositoryWithPath(path)
	if _, err := c.ConfigRepo.Load(); err != nil {
		return fmt.Errorf("failed to load configuration from %s: %w", path, err)
	}
	return c.initializeComponents()
}

// ApplyAPIURLOverride updates the API endpoint at runtime
func (c *Container) ApplyAPIURLOverride(apiURL string) error {
	if apiURL == "" {
		return fmt.Errorf("API URL cannot be empty")
	}

	if err := c.APIGateway.UpdateEndpoint(apiURL); err != nil {
		return fmt.Errorf("failed to update API gateway endpoint: %w", err)
	}
	c.Config.APIEndpoint = apiURL

	c.logging.Log(ports.LogLevelDebug, "Applied API URL override", map[string]interface{}{
		"api_url": apiURL,
	})
	return nil
}

// ApplyCacheDirOverride points the artifact cache at another directory
func (c *Container) ApplyCacheDirOverride(dir string) error {
	if dir == "" {
		return fmt.Errorf("cache directory cannot be empty")
	}
	if err := config.NewConfigValidator().ValidateCacheDir(dir); err != nil {
		return err
	}

	c.Config.CacheDir = dir
	if err := c.buildCache(dir, c.APIGateway.RetryPolicy()); err != nil {
		return err
	}
	c.wireServices()
	return nil
}

// ApplyDebugOverride switches debug logging on or off
func (c *Container) ApplyDebugOverride(debug bool) {
	c.Config.Debug = debug
	if debug {
		c.logging.SetLogLevel(ports.LogLevelDebug)
		return
	}
	c.logging.SetLogLevel(ports.LogLevelWarn)
}

// FlushMetrics writes collected metrics when a metrics file is configured
func (c *Container) FlushMetrics() error {
	if c.Config == nil || c.Config.MetricsFile == "" {
		return nil
	}
	return c.Metrics.WriteTextfile(c.Config.MetricsFile)
}

// Shutdown gracefully shuts down all components
func (c *Container) Shutdown(ctx context.Context) error {
	if err := c.FlushMetrics(); err != nil {
		c.Logger.Printf("Error writing metrics: %v", err)
		return err
	}
	return nil
}

// GetVersion returns version information
func (c *Container) GetVersion() map[string]string {
	return map[string]string{
		"version":    cli.Version,
		"build_time": cli.BuildTime,
	}
}

// loggingGatewayAdapter adapts the standard logger to the LoggingGateway interface
type loggingGatewayAdapter struct {
	logger   *log.Logger
	logLevel ports.LogLevel
}

func (l *loggingGatewayAdapter) LogError(err error, message string, fields map[string]interface{}) {
	if fields != nil {
		l.logger.Printf("ERROR: %s: %v (fields: %v)", message, err, fields)
	} else {
		l.logger.Printf("ERROR: %s: %v", message, err)
	}
}

// Log writes a message when level is at or above the current log level
func (l *loggingGatewayAdapter) Log(level ports.LogLevel, message string, fields map[string]interface{}) {
	if !l.shouldLog(level) {
		return
	}

	levelStr := "INFO"
	switch level {
	case ports.LogLevelError:
		levelStr = "ERROR"
	case ports.LogLevelWarn:
		levelStr = "WARN"
	case ports.LogLevelDebug:
		levelStr = "DEBUG"
	}

	if fields != nil {
		l.logger.Printf("%s: %s (fields: %v)", levelStr, message, fields)
	} else {
		l.logger.Printf("%s: %s", levelStr, message)
	}
}

// SetLogLevel sets the logging level
func (l *loggingGatewayAdapter) SetLogLevel(level ports.LogLevel) {
	l.logLevel = level
}

// GetLogLevel returns the current logging level
func (l *loggingGatewayAdapter) GetLogLevel() ports.LogLevel {
	return l.logLevel
}

func (l *loggingGatewayAdapter) shouldLog(level ports.LogLevel) bool {
	return level.Severity() >= l.logLevel.Severity()
}
