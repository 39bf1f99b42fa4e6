package engine

// This file contains the subprocess invoker that runs a single test
// case through `go test -run`.

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/rs/zerolog"

	"github.com/testpilot/testpilot/model"
)

// maxErrorOutput bounds the captured failure output kept on a result.
const maxErrorOutput = 4096

// GoTestInvoker executes one test case as a `go test` subprocess in the
// package directory the case was discovered in.
type GoTestInvoker struct {
	logger zerolog.Logger
	// Timeout per test invocation; 0 disables. A timed-out test is
	// marked errored and the batch proceeds.
	Timeout time.Duration
}

// NewGoTestInvoker returns an invoker with the given per-test timeout.
func NewGoTestInvoker(logger zerolog.Logger, timeout time.Duration) *GoTestInvoker {
	return &GoTestInvoker{logger: logger, Timeout: timeout}
}

func (g *GoTestInvoker) command(tc model.TestCase) []string {
	return []string{"go", "test", "-count=1", "-run", "^" + tc.Name + "$", "."}
}

// ReproCommand renders a copy-pastable command line reproducing the
// test invocation.
func (g *GoTestInvoker) ReproCommand(tc model.TestCase) string {
	return "cd " + shellescape.Quote(filepath.Dir(tc.File)) + " && " + shellescape.QuoteCommand(g.command(tc))
}

// Invoke runs the test and classifies the outcome: exit 0 is a pass, a
// non-zero test exit is a failure, anything else (missing toolchain,
// timeout) is an error.
func (g *GoTestInvoker) Invoke(ctx context.Context, tc model.TestCase) (model.Status, string) {
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	args := g.command(tc)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = filepath.Dir(tc.File)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	g.logger.Debug().Str("test", tc.ID).Str("dir", cmd.Dir).Msg("Invoking test")

	err := cmd.Run()
	if err == nil {
		return model.StatusPassed, ""
	}

	if ctx.Err() == context.DeadlineExceeded {
		return model.StatusErrored, "test timed out after " + g.Timeout.String()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Test failures are expected to return non-zero exit codes.
		return model.StatusFailed, truncate(output.String(), maxErrorOutput)
	}
	return model.StatusErrored, err.Error()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Keep the tail: go test prints the failure last.
	return "..." + s[len(s)-n:]
}
