package coverage

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"utforge/internal/csrc"
	"utforge/internal/stage"
)

const gcovOutput = `Function 'add'
Lines executed:100.00% of 2
Function 'divide'
Lines executed:50.00% of 4
File 'math_utils.c'
Lines executed:75.00% of 8
Creating 'math_utils.c.gcov'
File 'test_runner.c'
Lines executed:100.00% of 20
Creating 'test_runner.c.gcov'
`

func TestParseGcovStanzas(t *testing.T) {
	report := Report{PerFunction: make(map[string]float64)}
	parseInto(&report, gcovOutput)

	if got := report.PerFunction["add"]; got != 100 {
		t.Errorf("add = %v, want 100", got)
	}
	if got := report.PerFunction["divide"]; got != 50 {
		t.Errorf("divide = %v, want 50", got)
	}
	// test_runner.c must not count toward overall.
	if math.Abs(report.Overall-75) > 0.01 {
		t.Errorf("overall = %v, want 75", report.Overall)
	}
}

func TestParseMultiFileWeighting(t *testing.T) {
	report := Report{PerFunction: make(map[string]float64)}
	parseInto(&report, `File 'a.c'
Lines executed:100.00% of 10
File 'b.c'
Lines executed:0.00% of 30
`)
	// 10 of 40 lines covered.
	if math.Abs(report.Overall-25) > 0.01 {
		t.Errorf("overall = %v, want 25", report.Overall)
	}
}

func TestParseLcovSummary(t *testing.T) {
	report := Report{PerFunction: make(map[string]float64)}
	parseInto(&report, "  lines......: 85.0% (17 of 20 lines)\n  functions..: 100.0% (4 of 4 functions)\n")
	if report.Overall != 85 {
		t.Errorf("overall = %v, want 85", report.Overall)
	}
}

func TestParseAnnotated(t *testing.T) {
	text := `        -:    0:Source:math_utils.c
        -:    1:#include "math_utils.h"
        5:    2:int add(int a, int b) {
        5:    3:    return a + b;
    #####:    4:int never_called(void) {
    #####:    5:    return 0;
        -:    6:}
`
	got := parseAnnotated(text)
	if math.Abs(got-50) > 0.01 {
		t.Errorf("annotated coverage = %v, want 50", got)
	}
}

func TestCollectGcovMissing(t *testing.T) {
	ws := &stage.Workspace{Dir: t.TempDir(), Sources: []string{"math_utils.c", "test_runner.c"}}
	a := NewAggregator("/nonexistent/gcov-binary", time.Second)

	funcs := []csrc.CFunction{{Name: "add", File: "math_utils.c"}}
	report := a.Collect(context.Background(), ws, funcs)

	if report.Overall != 0 {
		t.Errorf("overall = %v, want 0", report.Overall)
	}
	if len(report.Issues) == 0 {
		t.Errorf("expected issues when gcov is unavailable")
	}
	if v, ok := report.PerFunction["add"]; !ok || v != 0 {
		t.Errorf("scanned function must be seeded at 0: %+v", report.PerFunction)
	}
}

func TestCollectFallsBackToGcovFiles(t *testing.T) {
	dir := t.TempDir()
	annotated := `        -:    1:int x;
        3:    2:int used(void) { return 1; }
    #####:    3:int unused(void) { return 0; }
`
	if err := os.WriteFile(filepath.Join(dir, "math_utils.c.gcov"), []byte(annotated), 0644); err != nil {
		t.Fatal(err)
	}

	ws := &stage.Workspace{Dir: dir, Sources: []string{"math_utils.c"}}
	a := NewAggregator("/nonexistent/gcov-binary", time.Second)
	report := a.Collect(context.Background(), ws, nil)

	if math.Abs(report.Overall-50) > 0.01 {
		t.Errorf("overall = %v, want 50 from annotated fallback", report.Overall)
	}
}
