package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies launch failures by the stage that produced them
type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration"
	KindResolution    ErrorKind = "resolution"
	KindDownload      ErrorKind = "download"
	KindFilesystem    ErrorKind = "filesystem"
)

// Sentinels for errors.Is checks against a LaunchError's kind
var (
	ErrConfiguration = errors.New("configuration error")
	ErrResolution    = errors.New("resolution error")
	ErrDownload      = errors.New("download error")
	ErrFilesystem    = errors.New("filesystem error")
)

// LaunchError is returned by every stage that can abort a launch
type LaunchError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *LaunchError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s failed: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s failed: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind
func (e *LaunchError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindConfiguration:
		return ErrConfiguration
	case KindResolution:
		return ErrResolution
	case KindDownload:
		return ErrDownload
	case KindFilesystem:
		return ErrFilesystem
	default:
		return nil
	}
}

// ConfigurationError reports invalid or contradictory input
func ConfigurationError(op string, err error) error {
	return &LaunchError{Kind: KindConfiguration, Op: op, Err: err}
}

// ConfigurationErrorf is ConfigurationError with a formatted cause
func ConfigurationErrorf(op, format string, args ...any) error {
	return ConfigurationError(op, fmt.Errorf(format, args...))
}

// ResolutionError reports an unreachable API or an unknown version/build
func ResolutionError(op string, err error) error {
	return &LaunchError{Kind: KindResolution, Op: op, Err: err}
}

// DownloadError reports a transfer or integrity-check failure
func DownloadError(op string, err error) error {
	return &LaunchError{Kind: KindDownload, Op: op, Err: err}
}

// FilesystemError reports a directory, copy or cleanup failure
func FilesystemError(op string, err error) error {
	return &LaunchError{Kind: KindFilesystem, Op: op, Err: err}
}

// KindOf returns the kind of the first LaunchError in err's chain
func KindOf(err error) (ErrorKind, bool) {
	var launchErr *LaunchError
	if errors.As(err, &launchErr) {
		return launchErr.Kind, true
	}
	return "", false
}
