package command

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// Result captures the outcome of one external command invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes external tools. Implementations must honour ctx cancellation.
type Runner interface {
	// Run executes name with args. When onLine is non-nil it is called for each
	// stdout line as the process produces it; Stdout still holds the full output.
	Run(ctx context.Context, name string, args []string, onLine func(line string)) (Result, error)
}

// ExecRunner executes commands via os/exec.
type ExecRunner struct{}

// NewExecRunner returns the production runner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes one command and captures stdout/stderr and exit code.
func (r *ExecRunner) Run(ctx context.Context, name string, args []string, onLine func(line string)) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stderr = &stderr

	var wg sync.WaitGroup
	if onLine == nil {
		cmd.Stdout = &stdout
	} else {
		pipe, err := cmd.StdoutPipe()
		if err != nil {
			return Result{ExitCode: -1}, fmt.Errorf("%s: stdout pipe: %w", name, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			scanLines(io.TeeReader(pipe, &stdout), onLine)
		}()
	}

	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("%s: start: %w", name, err)
	}
	wg.Wait()
	err := cmd.Wait()

	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, &Error{Name: name, Result: result, Err: err}
	}
	return result, nil
}

// scanLines splits on both \n and \r so tools that redraw progress in place
// still deliver each update.
func scanLines(r io.Reader, onLine func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(splitCRLF)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			onLine(line)
		}
	}
	// drain so the process never blocks on a full pipe
	_, _ = io.Copy(io.Discard, r)
}

func splitCRLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// Error reports a failed command together with its captured output.
type Error struct {
	Name   string
	Result Result
	Err    error
}

func (e *Error) Error() string {
	detail := strings.TrimSpace(e.Result.Stderr)
	if detail == "" {
		detail = strings.TrimSpace(e.Result.Stdout)
	}
	if len(detail) > 512 {
		detail = detail[len(detail)-512:]
	}
	if detail == "" {
		return fmt.Sprintf("%s: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Name, e.Err, detail)
}

func (e *Error) Unwrap() error { return e.Err }

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, name string, args []string, onLine func(line string)) (Result, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, name string, args []string, onLine func(line string)) (Result, error) {
	return f(ctx, name, args, onLine)
}
