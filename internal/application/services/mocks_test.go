package services

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"runserver.dev/cli/internal/application/ports"
	"runserver.dev/cli/internal/core/build"
	"runserver.dev/cli/internal/core/launch"
)

// Mock implementations

type MockBuildAPI struct {
	mock.Mock
}

func (m *MockBuildAPI) ListBuilds(ctx context.Context, version string) ([]int, error) {
	args := m.Called(ctx, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int), args.Error(1)
}

func (m *MockBuildAPI) ResolveBuild(ctx context.Context, version string, selector build.Selector) (int, error) {
	args := m.Called(ctx, version, selector)
	return args.Int(0), args.Error(1)
}

func (m *MockBuildAPI) BuildInfo(ctx context.Context, version string, number int) (*ports.BuildInfo, error) {
	args := m.Called(ctx, version, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.BuildInfo), args.Error(1)
}

func (m *MockBuildAPI) Download(ctx context.Context, info *ports.BuildInfo, dst io.Writer, progress ports.ProgressFunc) (int64, error) {
	args := m.Called(ctx, info, dst, progress)
	return args.Get(0).(int64), args.Error(1)
}

type MockArtifactStore struct {
	mock.Mock
}

func (m *MockArtifactStore) Resolve(ctx context.Context, version string, number int, progress ports.ProgressFunc) (string, error) {
	args := m.Called(ctx, version, number, progress)
	return args.String(0), args.Error(1)
}

func (m *MockArtifactStore) Lookup(version string, number int) (string, bool, error) {
	args := m.Called(version, number)
	return args.String(0), args.Bool(1), args.Error(2)
}

type MockProcessRunner struct {
	mock.Mock
}

func (m *MockProcessRunner) Run(ctx context.Context, plan launch.Plan) (int, error) {
	args := m.Called(ctx, plan)
	return args.Int(0), args.Error(1)
}

func (m *MockProcessRunner) CommandLine(plan launch.Plan) ([]string, error) {
	args := m.Called(plan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type MockConfigRepository struct {
	mock.Mock
}

func (m *MockConfigRepository) Load() (*ports.Configuration, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.Configuration), args.Error(1)
}

func (m *MockConfigRepository) Save(config *ports.Configuration) error {
	return m.Called(config).Error(0)
}

func (m *MockConfigRepository) LoadDefault() *ports.Configuration {
	return m.Called().Get(0).(*ports.Configuration)
}

func (m *MockConfigRepository) Validate(config *ports.Configuration) error {
	return m.Called(config).Error(0)
}

func (m *MockConfigRepository) GetConfigPath() string {
	return m.Called().String(0)
}

func (m *MockConfigRepository) BackupConfig() error {
	return m.Called().Error(0)
}

type nopLogger struct{}

func (nopLogger) Log(ports.LogLevel, string, map[string]interface{}) {}
func (nopLogger) LogError(error, string, map[string]interface{})     {}
func (nopLogger) SetLogLevel(ports.LogLevel)                         {}
func (nopLogger) GetLogLevel() ports.LogLevel                        { return ports.LogLevelInfo }
