package process

import (
	"fmt"
	"maps"
	"path/filepath"
	"strings"
)

// Command is a fully resolved process invocation
type Command struct {
	executable string
	args       []string
	workingDir string
	env        map[string]string
}

// NewCommand creates a Command. A relative working directory is made absolute.
func NewCommand(executable string, args []string, workingDir string, env map[string]string) (Command, error) {
	if executable == "" {
		return Command{}, fmt.Errorf("executable cannot be empty")
	}

	if workingDir != "" && !filepath.IsAbs(workingDir) {
		absDir, err := filepath.Abs(workingDir)
		if err == nil {
			workingDir = absDir
		}
	}

	envCopy := make(map[string]string, len(env))
	maps.Copy(envCopy, env)

	return Command{
		executable: executable,
		args:       append([]string(nil), args...), // Copy slice
		workingDir: workingDir,
		env:        envCopy,
	}, nil
}

// Executable returns the command executable
func (c Command) Executable() string {
	return c.executable
}

// Args returns a copy of the command arguments
func (c Command) Args() []string {
	return append([]string(nil), c.args...)
}

// WorkingDir returns the working directory for the command
func (c Command) WorkingDir() string {
	return c.workingDir
}

// Env returns a copy of the extra environment variables
func (c Command) Env() map[string]string {
	return maps.Clone(c.env)
}

// String returns a string representation of the command
func (c Command) String() string {
	if len(c.args) == 0 {
		return c.executable
	}
	return fmt.Sprintf("%s %s", c.executable, strings.Join(c.args, " "))
}

// FullCommandLine returns the complete command line including executable and args
func (c Command) FullCommandLine() []string {
	result := make([]string, 0, len(c.args)+1)
	result = append(result, c.executable)
	result = append(result, c.args...)
	return result
}
