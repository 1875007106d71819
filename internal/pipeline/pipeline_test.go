package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"utforge/internal/coverage"
	"utforge/internal/extract"
	"utforge/internal/perception"
	"utforge/internal/report"
	"utforge/internal/stage"
	"utforge/internal/store"
	"utforge/internal/toolchain"
)

func TestMain(m *testing.M) {
	// The genai dependency chain starts an opencensus stats worker at init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// MockLLMClient implements perception.LLMClient with injectable behavior.
type MockLLMClient struct {
	CompleteFunc           func(ctx context.Context, prompt string) (string, error)
	CompleteWithSystemFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

func (m *MockLLMClient) Complete(ctx context.Context, prompt string) (string, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt)
	}
	return "", nil
}

func (m *MockLLMClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if m.CompleteWithSystemFunc != nil {
		return m.CompleteWithSystemFunc(ctx, systemPrompt, userPrompt)
	}
	return "", nil
}

var _ perception.LLMClient = (*MockLLMClient)(nil)

const modelReply = `Here are the tests.

| Test Case ID | Unit Test Function Name | Description | Input Data | Expected Output / Behavior | Type (Positive / Negative) |
|---|---|---|---|---|---|
| 1 | test_add_basic | adds small ints | 1, 2 | 3 | Positive |
| 2 | test_add_negative | adds negatives | -1, -2 | -3 | Negative |

` + "```c" + `
#include "unity.h"
#include "math_utils.h"

void setUp(void) {}
void tearDown(void) {}

void test_add_basic(void) {
    TEST_ASSERT_EQUAL_INT(3, add(1, 2));
}

void test_add_negative(void) {
    TEST_ASSERT_EQUAL_INT(-3, add(-1, -2));
}
` + "```" + `

{"table_rows": [
  {"Unit Test Function Name": "test_add_basic", "Description": "adds small ints", "Type (Positive / Negative)": "Positive"},
  {"Unit Test Function Name": "test_add_negative", "Description": "adds negatives", "Type (Positive / Negative)": "Negative"}
]}`

func testSources() []stage.SourceFile {
	return []stage.SourceFile{
		{Filename: "math_utils.c", Content: "#include \"math_utils.h\"\nint add(int a, int b) {\n    return a + b;\n}\n"},
		{Filename: "math_utils.h", Content: "int add(int a, int b);\n"},
	}
}

// stubToolchain builds a runner whose make is a shell script, so pipeline
// tests need no C compiler.
func stubToolchain(t *testing.T, script string) *toolchain.Runner {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-script make stub is unix-only")
	}
	dir := t.TempDir()
	makePath := filepath.Join(dir, "make")
	if err := os.WriteFile(makePath, []byte("#!/bin/sh\n"+script), 0755); err != nil {
		t.Fatal(err)
	}
	return toolchain.NewRunner(makePath, 30*time.Second, 1<<20)
}

func newTestPipeline(t *testing.T, client perception.LLMClient, runner *toolchain.Runner, history *store.Store) *Pipeline {
	t.Helper()
	stager := stage.NewStager(t.TempDir(), false)
	cov := coverage.NewAggregator("/nonexistent/gcov", time.Second)
	return New(client, stager, runner, cov, history, 2)
}

func TestGenerateEndToEnd(t *testing.T) {
	client := &MockLLMClient{
		CompleteWithSystemFunc: func(ctx context.Context, system, user string) (string, error) {
			if !strings.Contains(user, "int add(int a, int b)") {
				t.Errorf("prompt does not embed the source under test")
			}
			if !strings.Contains(user, "- add (math_utils.c:") {
				t.Errorf("prompt does not list scanned functions:\n%s", user)
			}
			return modelReply, nil
		},
	}
	runner := stubToolchain(t, `
case "$1" in
  all) exit 0 ;;
  test)
    echo "test_runner.c:10:test_add_basic:PASS"
    echo "test_runner.c:14:test_add_negative:FAIL: Expected -3 Was 0"
    echo "2 Tests 1 Failures 0 Ignored"
    exit 1 ;;
esac
`)

	st, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	p := newTestPipeline(t, client, runner, st)
	rep, err := p.Generate(context.Background(), Request{Sources: testSources()})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if rep.Stage != report.StageComplete {
		t.Errorf("stage = %q, want complete", rep.Stage)
	}
	if rep.RequestID == "" {
		t.Errorf("request ID not assigned")
	}
	if rep.Passed() != 1 || rep.Failed() != 1 {
		t.Errorf("passed=%d failed=%d, want 1/1", rep.Passed(), rep.Failed())
	}
	if len(rep.TestCases) != 2 {
		t.Fatalf("cases = %+v", rep.TestCases)
	}
	if rep.TestCases[0].Description != "adds small ints" {
		t.Errorf("table metadata lost: %+v", rep.TestCases[0])
	}
	if !strings.Contains(rep.TestCases[0].TestCode, "TEST_ASSERT_EQUAL_INT(3, add(1, 2))") {
		t.Errorf("fence code not attributed: %q", rep.TestCases[0].TestCode)
	}

	runs, err := st.Recent(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != rep.RequestID {
		t.Errorf("history = %+v", runs)
	}
}

func TestGenerateModelFailure(t *testing.T) {
	client := &MockLLMClient{
		CompleteWithSystemFunc: func(ctx context.Context, system, user string) (string, error) {
			return "", &perception.ProviderError{Provider: "gemini", Err: fmt.Errorf("quota exceeded")}
		},
	}
	p := newTestPipeline(t, client, stubToolchain(t, "exit 0"), nil)

	rep, err := p.Generate(context.Background(), Request{Sources: testSources()})
	if err == nil {
		t.Fatal("expected an error")
	}
	var perr *perception.ProviderError
	if !errors.As(err, &perr) {
		t.Errorf("err = %v, want ProviderError", err)
	}
	if rep == nil || rep.Stage != report.StageGeneration {
		t.Errorf("report = %+v", rep)
	}
}

func TestGenerateUnparseableReply(t *testing.T) {
	client := &MockLLMClient{
		CompleteWithSystemFunc: func(ctx context.Context, system, user string) (string, error) {
			return "I could not find any functions worth testing in this code.", nil
		},
	}
	p := newTestPipeline(t, client, stubToolchain(t, "exit 0"), nil)

	rep, err := p.Generate(context.Background(), Request{Sources: testSources()})
	if !errors.Is(err, extract.ErrNoExtractableTestCases) {
		t.Fatalf("err = %v, want ErrNoExtractableTestCases", err)
	}
	if rep == nil || rep.Stage != report.StageParsing {
		t.Errorf("report = %+v", rep)
	}
}

func TestGenerateCompileFailure(t *testing.T) {
	client := &MockLLMClient{
		CompleteWithSystemFunc: func(ctx context.Context, system, user string) (string, error) {
			return modelReply, nil
		},
	}
	runner := stubToolchain(t, `
case "$1" in
  all) echo "test_runner.c:3:1: error: unknown type name 'sizet'" >&2; exit 2 ;;
esac
`)
	p := newTestPipeline(t, client, runner, nil)

	rep, err := p.Generate(context.Background(), Request{Sources: testSources()})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if rep.Stage != report.StageCompilation {
		t.Errorf("stage = %q, want compilation", rep.Stage)
	}
	if rep.Run == nil || rep.Run.Status != toolchain.StatusCompileFailed {
		t.Errorf("run = %+v", rep.Run)
	}
	if rep.Passed() != 0 {
		t.Errorf("no tests can pass without a binary")
	}
}

func TestGenerateCrashedRunKeepsPartialResults(t *testing.T) {
	client := &MockLLMClient{
		CompleteWithSystemFunc: func(ctx context.Context, system, user string) (string, error) {
			return modelReply, nil
		},
	}
	runner := stubToolchain(t, `
case "$1" in
  all) exit 0 ;;
  test)
    echo "test_runner.c:10:test_add_basic:PASS"
    kill -SEGV $$ ;;
esac
`)
	p := newTestPipeline(t, client, runner, nil)

	rep, err := p.Generate(context.Background(), Request{Sources: testSources()})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if rep.Stage != report.StageExecution {
		t.Errorf("stage = %q, want execution", rep.Stage)
	}
	if rep.Run == nil || rep.Run.Status != toolchain.StatusCrashed {
		t.Fatalf("run = %+v", rep.Run)
	}
	if rep.Passed() != 1 || rep.Failed() != 1 {
		t.Errorf("passed=%d failed=%d, want 1/1: %+v", rep.Passed(), rep.Failed(), rep.TestCases)
	}
	if !strings.Contains(rep.TestCases[1].Message, "signal") {
		t.Errorf("in-flight test message = %q", rep.TestCases[1].Message)
	}

	// Coverage is still attempted; with no data it degrades to seeded
	// zeros plus an explanation rather than a silent empty report.
	if _, ok := rep.Coverage.PerFunction["add"]; !ok {
		t.Errorf("per-function seeding missing: %+v", rep.Coverage.PerFunction)
	}
	if len(rep.Coverage.Issues) == 0 {
		t.Errorf("coverage degradation not explained")
	}
}

func TestGenerateNoSources(t *testing.T) {
	p := newTestPipeline(t, &MockLLMClient{}, stubToolchain(t, "exit 0"), nil)
	if _, err := p.Generate(context.Background(), Request{}); err == nil {
		t.Fatal("expected an error for an empty request")
	}
}

func TestBuildPromptMirrorsContract(t *testing.T) {
	system, user := BuildPrompt(testSources(), nil, "focus on overflow behavior")
	if system == "" {
		t.Error("system prompt empty")
	}
	for _, want := range []string{"table_rows", "test_script_c", "makefile_content", "focus on overflow behavior", "--coverage -O0 -g"} {
		if !strings.Contains(user, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
