// Package toolchain drives the C build-and-test loop inside a staged
// workspace: make compiles with coverage instrumentation, the Unity binary
// runs under a deadline, and the raw output is classified into a closed
// outcome set.
package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"utforge/internal/logging"
	"utforge/internal/stage"
)

// RunStatus is the closed set of toolchain outcomes.
type RunStatus string

const (
	StatusCompileFailed RunStatus = "compile_failed"
	StatusCrashed       RunStatus = "crashed"
	StatusTimedOut      RunStatus = "timed_out"
	StatusCompleted     RunStatus = "completed"
)

// TestResult is one Unity test verdict.
type TestResult struct {
	Name    string
	Passed  bool
	Message string // failure message, empty on pass
}

// RunOutcome is everything one toolchain run produced. PerTest holds every
// verdict line the binary printed; on a crash it carries the tests that
// finished before the signal.
type RunOutcome struct {
	Status      RunStatus
	ExitCode    int
	Stdout      string
	Stderr      string
	PerTest     []TestResult
	Diagnostics string
	Duration    time.Duration
}

// Runner executes the build-and-test sequence in workspaces.
type Runner struct {
	makePath  string
	timeout   time.Duration
	maxOutput int64
}

// NewRunner creates a runner. timeout bounds the whole sequence; maxOutput
// caps captured bytes per stream.
func NewRunner(makePath string, timeout time.Duration, maxOutput int64) *Runner {
	if makePath == "" {
		makePath = "make"
	}
	if maxOutput <= 0 {
		maxOutput = 1 << 20
	}
	return &Runner{makePath: makePath, timeout: timeout, maxOutput: maxOutput}
}

// Run compiles and executes the staged tests. The error return is for
// infrastructure failures only (make missing, workspace gone); every
// toolchain-level failure is a status on the outcome.
func (r *Runner) Run(ctx context.Context, ws *stage.Workspace) (*RunOutcome, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	started := time.Now()
	outcome := &RunOutcome{Status: StatusCompleted}

	build := r.step(ctx, ws.Dir, "all")
	if build.startErr != nil {
		return nil, fmt.Errorf("toolchain: starting %s: %w", r.makePath, build.startErr)
	}
	if ctx.Err() == context.DeadlineExceeded {
		outcome.Status = StatusTimedOut
		outcome.Diagnostics = fmt.Sprintf("build exceeded %s deadline", r.timeout)
		outcome.Stderr = build.stderr
		outcome.Duration = time.Since(started)
		logging.Toolchain("build timed out in %s", ws.Dir)
		return outcome, nil
	}
	if build.exitCode != 0 {
		outcome.Status = StatusCompileFailed
		outcome.ExitCode = build.exitCode
		outcome.Stdout = build.stdout
		outcome.Stderr = build.stderr
		outcome.Diagnostics = compileDiagnostics(build.stderr)
		outcome.Duration = time.Since(started)
		logging.Toolchain("compile failed in %s (exit %d)", ws.Dir, build.exitCode)
		return outcome, nil
	}

	run := r.step(ctx, ws.Dir, "test")
	if run.startErr != nil {
		return nil, fmt.Errorf("toolchain: starting %s: %w", r.makePath, run.startErr)
	}
	outcome.ExitCode = run.exitCode
	outcome.Stdout = run.stdout
	outcome.Stderr = run.stderr
	outcome.Duration = time.Since(started)

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		outcome.Status = StatusTimedOut
		outcome.Diagnostics = fmt.Sprintf("test run exceeded %s deadline", r.timeout)
		logging.Toolchain("test run timed out in %s", ws.Dir)
	case run.signal != "":
		outcome.Status = StatusCrashed
		outcome.Diagnostics = "test binary terminated by signal " + run.signal
		// Verdicts printed before the signal are still good data.
		outcome.PerTest = ParseUnityOutput(run.stdout)
		logging.Toolchain("test binary crashed in %s: %s (%d verdicts before crash)",
			ws.Dir, run.signal, len(outcome.PerTest))
	case crashMarker(run.stdout, run.stderr) != "":
		// make absorbs the child's signal, so crashes surface as text.
		outcome.Status = StatusCrashed
		outcome.Diagnostics = "test binary crashed: " + crashMarker(run.stdout, run.stderr)
		outcome.PerTest = ParseUnityOutput(run.stdout)
		logging.Toolchain("test binary crashed in %s (%d verdicts before crash)",
			ws.Dir, len(outcome.PerTest))
	default:
		outcome.PerTest = ParseUnityOutput(run.stdout)
		logging.Toolchain("run completed in %s: %d test results (exit %d)",
			ws.Dir, len(outcome.PerTest), run.exitCode)
	}
	return outcome, nil
}

type stepResult struct {
	stdout   string
	stderr   string
	exitCode int
	signal   string
	startErr error
}

// step runs one make target in its own process group and captures bounded
// output. Deadline kills take down the whole group, not just make.
func (r *Runner) step(ctx context.Context, dir, target string) stepResult {
	cmd := exec.CommandContext(ctx, r.makePath, target)
	cmd.Dir = dir
	setupProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = 5 * time.Second

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdoutBuf, max: r.maxOutput}
	cmd.Stderr = &limitedWriter{w: &stderrBuf, max: r.maxOutput}

	err := cmd.Run()

	res := stepResult{stdout: stdoutBuf.String(), stderr: stderrBuf.String()}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.exitCode = exitErr.ExitCode()
			res.signal = signalDescription(exitErr.ProcessState)
		} else if ctx.Err() == nil {
			res.startErr = err
		} else {
			res.exitCode = -1
		}
	}
	return res
}

// crashMarker scans output for runtime-failure text that make swallowed.
func crashMarker(stdout, stderr string) string {
	combined := stdout + "\n" + stderr
	for _, marker := range []string{"Segmentation fault", "Bus error", "core dumped", "Aborted", "Floating point exception"} {
		if strings.Contains(combined, marker) {
			return marker
		}
	}
	return ""
}

// compileDiagnostics trims compiler output to the error lines.
func compileDiagnostics(stderr string) string {
	var lines []string
	for _, line := range strings.Split(stderr, "\n") {
		if strings.Contains(line, "error:") || strings.Contains(line, "undefined reference") {
			lines = append(lines, strings.TrimSpace(line))
		}
	}
	if len(lines) == 0 {
		return strings.TrimSpace(stderr)
	}
	return strings.Join(lines, "\n")
}

// limitedWriter caps total bytes written, silently discarding the rest.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.written >= lw.max {
		lw.truncated = true
		return n, nil
	}
	if remaining := lw.max - lw.written; int64(n) > remaining {
		lw.truncated = true
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err
	}
	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
