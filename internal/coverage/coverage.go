// Package coverage turns gcov output into a numeric report. Coverage is
// advisory: every failure path degrades to a zero-coverage report with
// issues attached, never an error that could sink an otherwise good run.
package coverage

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"utforge/internal/csrc"
	"utforge/internal/logging"
	"utforge/internal/stage"
)

// Report is the aggregated coverage result for one run.
type Report struct {
	Overall     float64            // percent, line-weighted across sources under test
	PerFunction map[string]float64 // percent by function name
	RawOutput   string
	Issues      []string
}

// Aggregator invokes gcov inside workspaces.
type Aggregator struct {
	gcovPath string
	timeout  time.Duration
}

// NewAggregator creates an aggregator. timeout bounds the gcov invocation
// alone; gcov reads counter files, it does not re-run tests.
func NewAggregator(gcovPath string, timeout time.Duration) *Aggregator {
	if gcovPath == "" {
		gcovPath = "gcov"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Aggregator{gcovPath: gcovPath, timeout: timeout}
}

// Collect runs gcov over the workspace sources and parses the result. funcs
// seeds PerFunction so functions the tests never reached report 0 instead of
// going missing.
func (a *Aggregator) Collect(ctx context.Context, ws *stage.Workspace, funcs []csrc.CFunction) Report {
	report := Report{PerFunction: make(map[string]float64)}
	for _, f := range funcs {
		report.PerFunction[f.Name] = 0
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	output, err := a.runGcov(ctx, ws)
	if err != nil {
		report.Issues = append(report.Issues, "gcov failed: "+err.Error())
		annotated := readGcovFiles(ws.Dir)
		if annotated == "" {
			logging.Pipeline("coverage unavailable in %s: %v", ws.Dir, err)
			return report
		}
		report.Issues = append(report.Issues, "computed from pre-existing .gcov files")
		report.RawOutput = annotated
		report.Overall = parseAnnotated(annotated)
		return report
	}

	report.RawOutput = output
	parseInto(&report, output)
	if report.Overall == 0 && !strings.Contains(output, "Lines executed") && !strings.Contains(output, "lines...") {
		report.Issues = append(report.Issues, "no coverage data in gcov output")
	}
	logging.Pipeline("coverage for %s: %.2f%% overall, %d functions", ws.Dir, report.Overall, len(report.PerFunction))
	return report
}

func (a *Aggregator) runGcov(ctx context.Context, ws *stage.Workspace) (string, error) {
	args := append([]string{"-f"}, sourcesUnderTest(ws.Sources)...)
	cmd := exec.CommandContext(ctx, a.gcovPath, args...)
	cmd.Dir = ws.Dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return out.String(), nil
}

// sourcesUnderTest drops the staged test artifacts: measuring the runner's
// own lines would inflate the number that matters.
func sourcesUnderTest(sources []string) []string {
	var out []string
	for _, s := range sources {
		if s == "test_runner.c" || s == "test_suite.c" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// readGcovFiles concatenates any .gcov files already in the workspace, the
// fallback when invoking gcov itself failed.
func readGcovFiles(dir string) string {
	matches, err := filepath.Glob(filepath.Join(dir, "*.gcov"))
	if err != nil {
		return ""
	}
	var b strings.Builder
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			continue
		}
		b.Write(data)
		b.WriteString("\n")
	}
	return b.String()
}
