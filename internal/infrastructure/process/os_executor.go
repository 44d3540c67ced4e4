package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"time"

	"runserver.dev/cli/internal/application/ports"
	"runserver.dev/cli/internal/core/domain"
	"runserver.dev/cli/internal/core/launch"
)

// ShutdownGracePeriod is how long a cancelled server may take to stop after
// being interrupted before it is killed
const ShutdownGracePeriod = 30 * time.Second

// Executor implements ports.ProcessRunner by running the server with java.
// The server inherits the invoking process's stdio.
type Executor struct {
	javaHome string
	env      []string
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer
	logger   ports.LoggingGateway
}

// NewExecutor creates an executor wired to the current process's stdio
func NewExecutor(logger ports.LoggingGateway) *Executor {
	return &Executor{
		javaHome: os.Getenv("JAVA_HOME"),
		env:      os.Environ(),
		stdin:    os.Stdin,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		logger:   logger,
	}
}

// SetJavaHome overrides $JAVA_HOME for locating java
func (e *Executor) SetJavaHome(javaHome string) {
	if javaHome != "" {
		e.javaHome = javaHome
	}
}

// SetStdio replaces the streams handed to the server
func (e *Executor) SetStdio(stdin io.Reader, stdout, stderr io.Writer) {
	e.stdin = stdin
	e.stdout = stdout
	e.stderr = stderr
}

// Command builds the invocation for a plan:
// java <jvm args> -D<k>=<v>... -cp <artifact> <main class> <server args>
func (e *Executor) Command(plan launch.Plan) (Command, error) {
	if plan.ArtifactPath == "" {
		return Command{}, domain.ConfigurationErrorf("build command", "no server artifact in plan")
	}

	mainClass := plan.MainClass
	if mainClass == "" {
		var err error
		mainClass, err = ReadMainClass(plan.ArtifactPath)
		if err != nil {
			return Command{}, domain.FilesystemError("build command", fmt.Errorf("%w (set the main class explicitly)", err))
		}
	}

	args := make([]string, 0, len(plan.JVMArgs)+len(plan.SystemProperties)+len(plan.Args)+3)
	args = append(args, plan.JVMArgs...)
	args = append(args, plan.SystemPropertyArgs()...)
	args = append(args, "-cp", plan.ArtifactPath, mainClass)
	args = append(args, plan.Args...)

	return NewCommand(e.javaExecutable(plan), args, plan.WorkingDirectory, plan.Environment)
}

// MainClass implements ports.MainClassReader
func (e *Executor) MainClass(artifactPath string) (string, error) {
	return ReadMainClass(artifactPath)
}

// CommandLine returns the command line Run would execute
func (e *Executor) CommandLine(plan launch.Plan) ([]string, error) {
	cmd, err := e.Command(plan)
	if err != nil {
		return nil, err
	}
	return cmd.FullCommandLine(), nil
}

// Run starts the server, waits for it and returns its exit code. A non-zero
// exit is not an error; failing to start is.
func (e *Executor) Run(ctx context.Context, plan launch.Plan) (int, error) {
	cmd, err := e.Command(plan)
	if err != nil {
		return -1, err
	}

	execCmd := exec.CommandContext(ctx, cmd.Executable(), cmd.Args()...)
	execCmd.Dir = cmd.WorkingDir()
	execCmd.Env = e.buildEnvironment(cmd.Env())
	execCmd.Stdin = e.stdin
	execCmd.Stdout = e.stdout
	execCmd.Stderr = e.stderr
	execCmd.Cancel = func() error { return interrupt(execCmd.Process) }
	execCmd.WaitDelay = ShutdownGracePeriod

	if e.logger != nil {
		e.logger.Log(ports.LogLevelDebug, "Starting server process", map[string]interface{}{
			"command":     cmd.String(),
			"working_dir": cmd.WorkingDir(),
		})
	}

	if err := execCmd.Start(); err != nil {
		return -1, fmt.Errorf("failed to start process: %w", err)
	}

	err = execCmd.Wait()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &exitErr):
		return exitErr.ExitCode(), nil
	default:
		return -1, fmt.Errorf("failed to wait for process: %w", err)
	}
}

func interrupt(p *os.Process) error {
	if runtime.GOOS == "windows" {
		return p.Kill()
	}
	return p.Signal(os.Interrupt)
}

func (e *Executor) javaExecutable(plan launch.Plan) string {
	if plan.JavaExecutable != "" {
		return plan.JavaExecutable
	}
	if e.javaHome != "" {
		name := "java"
		if runtime.GOOS == "windows" {
			name = "java.exe"
		}
		return filepath.Join(e.javaHome, "bin", name)
	}
	return "java"
}

// buildEnvironment combines the base environment with plan variables. Later
// entries win, so plan values override inherited ones.
func (e *Executor) buildEnvironment(extra map[string]string) []string {
	env := slices.Clone(e.env)

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}
