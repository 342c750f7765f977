package shell

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/open-edge-platform/release-packager/internal/utils/logger"
)

// ErrExecutionFailed is matched by every failure returned from Run.
var ErrExecutionFailed = errors.New("toolchain execution failed")

// Result is the captured outcome of one external process.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ExecError describes a process that could not be started or exited non-zero.
type ExecError struct {
	Dir      string
	Command  string
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *ExecError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: command %q", ErrExecutionFailed, CommandLine(e.Command, e.Args))
	if e.Err != nil {
		fmt.Fprintf(&b, " could not run: %v", e.Err)
	} else {
		fmt.Fprintf(&b, " exited with code %d", e.ExitCode)
	}
	if out := strings.TrimSpace(e.Stderr); out != "" {
		fmt.Fprintf(&b, ": %s", out)
	} else if out := strings.TrimSpace(e.Stdout); out != "" {
		fmt.Fprintf(&b, ": %s", out)
	}
	return b.String()
}

func (e *ExecError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrExecutionFailed, e.Err}
	}
	return []error{ErrExecutionFailed}
}

// Executor runs one argv-style command. Implementations report start
// failures as errors and process exit codes through Result.
type Executor interface {
	Execute(dir string, env []string, name string, args []string) (*Result, error)
}

type osExecutor struct{}

func (osExecutor) Execute(dir string, env []string, name string, args []string) (*Result, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if err != nil {
		return res, err
	}
	return res, nil
}

// Default is the executor used by Run; tests swap it for a MockExecutor.
var Default Executor = osExecutor{}

// Run executes name with args in dir and returns its captured output.
// A non-zero exit code is reported as an *ExecError.
func Run(dir string, name string, args ...string) (*Result, error) {
	return RunWithEnv(dir, nil, name, args...)
}

// RunWithEnv is Run with extra KEY=VALUE environment entries appended to
// the current process environment.
func RunWithEnv(dir string, env []string, name string, args ...string) (*Result, error) {
	log := logger.Logger()
	line := CommandLine(name, args)
	if dir != "" {
		log.Debugf("Exec in %s: [%s]", dir, line)
	} else {
		log.Debugf("Exec: [%s]", line)
	}

	res, err := Default.Execute(dir, env, name, args)
	if err != nil {
		execErr := &ExecError{Dir: dir, Command: name, Args: args, ExitCode: -1, Err: err}
		if res != nil {
			execErr.Stdout, execErr.Stderr = res.Stdout, res.Stderr
		}
		log.Errorf("Failed to start %s: %v", name, err)
		return res, execErr
	}

	if out := strings.TrimSpace(res.Stdout); out != "" {
		log.Debugf("%s", out)
	}
	if res.ExitCode != 0 {
		if errOut := strings.TrimSpace(res.Stderr); errOut != "" {
			log.Infof("%s", errOut)
		}
		return res, &ExecError{
			Dir:      dir,
			Command:  name,
			Args:     args,
			ExitCode: res.ExitCode,
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
		}
	}
	return res, nil
}

// CommandLine renders an argv list for logs and mock matching.
func CommandLine(name string, args []string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}

// IsExecutable reports whether path names an existing regular file that
// the current user may execute.
func IsExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
