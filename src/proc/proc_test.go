package proc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
)

type stepLogBuffer struct{ buf bytes.Buffer }

func (l *stepLogBuffer) Logf(format string, args ...any) {
	fmt.Fprintf(&l.buf, format+"\n", args...)
}

func (l *stepLogBuffer) LogWriter() io.Writer { return &l.buf }

type scriptedRunner struct {
	res Result
	err error
}

func (r *scriptedRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	return r.res, r.err
}

func TestLocalRunCapturesOutput(t *testing.T) {
	var mirror bytes.Buffer
	l := &Local{Mirror: &mirror}

	res, err := l.Run(context.Background(), Command{Argv: []string{"sh", "-c", "echo out; echo err >&2"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d", res.ExitCode)
	}
	if got := strings.TrimSpace(string(res.Stdout)); got != "out" {
		t.Errorf("Stdout = %q", got)
	}
	if got := strings.TrimSpace(string(res.Stderr)); got != "err" {
		t.Errorf("Stderr = %q", got)
	}
	if !strings.Contains(mirror.String(), "out") || !strings.Contains(mirror.String(), "err") {
		t.Errorf("mirror missing output: %q", mirror.String())
	}
}

func TestLocalRunNonzeroExitIsNotAnError(t *testing.T) {
	l := &Local{}
	res, err := l.Run(context.Background(), Command{Argv: []string{"sh", "-c", "exit 3"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
}

func TestLocalRunMissingBinary(t *testing.T) {
	l := &Local{}
	if _, err := l.Run(context.Background(), Command{Argv: []string{"definitely-not-a-binary-xyz"}}); err == nil {
		t.Error("expected error for missing binary")
	}
}

func TestLocalRunEmptyCommand(t *testing.T) {
	l := &Local{}
	if _, err := l.Run(context.Background(), Command{}); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestRunStepMirrorsOutput(t *testing.T) {
	log := &stepLogBuffer{}
	r := &scriptedRunner{res: Result{Stdout: []byte("built\n"), Stderr: []byte("warning\n")}}

	res, err := RunStep(context.Background(), r, log, Command{Argv: []string{"cargo", "build"}})
	if err != nil {
		t.Fatalf("RunStep: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d", res.ExitCode)
	}
	out := log.buf.String()
	for _, want := range []string{"exec: cargo build", "built", "warning"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
}

func TestRunStepNonzeroExit(t *testing.T) {
	log := &stepLogBuffer{}
	r := &scriptedRunner{res: Result{ExitCode: 2, Stderr: []byte("boom")}}

	_, err := RunStep(context.Background(), r, log, Command{Argv: []string{"helm", "package"}})
	if err == nil {
		t.Fatal("expected error for nonzero exit")
	}
	if !strings.Contains(err.Error(), "exited with code 2") || !strings.Contains(err.Error(), "boom") {
		t.Errorf("err = %v", err)
	}
}

func TestRunStepToleratedExitCode(t *testing.T) {
	log := &stepLogBuffer{}
	r := &scriptedRunner{res: Result{ExitCode: 5}}

	res, err := RunStep(context.Background(), r, log, Command{Argv: []string{"pytest"}}, 5)
	if err != nil {
		t.Fatalf("RunStep: %v", err)
	}
	if res.ExitCode != 5 {
		t.Errorf("ExitCode = %d, want 5", res.ExitCode)
	}
}

func TestCommandStringOmitsEnv(t *testing.T) {
	c := Command{Argv: []string{"cargo", "publish"}, Env: map[string]string{"TOKEN": "secret"}}
	if s := c.String(); strings.Contains(s, "secret") {
		t.Errorf("String() leaks env: %q", s)
	}
}
