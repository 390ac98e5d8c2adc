// Package proc is the boundary to external build tools. Tasks never
// spawn processes themselves; they hand a resolved command to a
// Runner and get back an exit status with captured output, which
// keeps every task testable against a fake.
package proc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Command is a fully resolved invocation of an external binary.
type Command struct {
	Argv []string          // binary and arguments
	Env  map[string]string // extra environment, merged over the parent's
	Dir  string            // working directory ("" = inherit)
}

// String renders the command line for logs. Environment values are
// deliberately omitted since they may carry secrets.
func (c Command) String() string {
	return strings.Join(c.Argv, " ")
}

// Result carries the outcome of a finished process.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Runner executes commands. A nonzero exit is reported through
// Result, not through the error: the error return is reserved for
// failures to run the command at all.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// StepLog receives the command trace and mirrored output of one
// build step, typically a task's log buffer.
type StepLog interface {
	Logf(format string, args ...any)
	LogWriter() io.Writer
}

// RunStep executes cmd through r, logging the command line and
// mirroring captured output into log. A nonzero exit code becomes an
// error carrying the captured stderr, unless listed in okExit.
func RunStep(ctx context.Context, r Runner, log StepLog, cmd Command, okExit ...int) (Result, error) {
	log.Logf("exec: %s", cmd)
	res, err := r.Run(ctx, cmd)
	if len(res.Stdout) > 0 {
		log.LogWriter().Write(res.Stdout)
	}
	if len(res.Stderr) > 0 {
		log.LogWriter().Write(res.Stderr)
	}
	if err != nil {
		return res, err
	}
	if res.ExitCode == 0 {
		return res, nil
	}
	for _, code := range okExit {
		if res.ExitCode == code {
			return res, nil
		}
	}
	return res, fmt.Errorf("%s exited with code %d: %s", cmd, res.ExitCode, res.Stderr)
}

// Local runs commands on the host with os/exec.
type Local struct {
	// Mirror, when set, receives a copy of all process output as it
	// is produced (typically the owning task's log buffer).
	Mirror io.Writer
}

// Run executes cmd, capturing stdout and stderr.
func (l *Local) Run(ctx context.Context, cmd Command) (Result, error) {
	if len(cmd.Argv) == 0 {
		return Result{}, fmt.Errorf("proc: empty command")
	}

	c := exec.CommandContext(ctx, cmd.Argv[0], cmd.Argv[1:]...)
	c.Dir = cmd.Dir
	c.Env = mergedEnv(cmd.Env)

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	if l.Mirror != nil {
		c.Stdout = io.MultiWriter(&stdout, l.Mirror)
		c.Stderr = io.MultiWriter(&stderr, l.Mirror)
	}

	err := c.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	default:
		return res, fmt.Errorf("proc: running %s: %w", cmd.Argv[0], err)
	}
}

func mergedEnv(extra map[string]string) []string {
	if len(extra) == 0 {
		return nil // inherit as-is
	}
	env := os.Environ()
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}
