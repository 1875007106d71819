package toolchain

import (
	"testing"
)

func TestParseUnityOutput(t *testing.T) {
	output := `make: entering directory
test_runner.c:12:test_add_basic:PASS
test_runner.c:20:test_add_negative:FAIL: Expected -3 Was 3
test_runner.c:28:test_add_overflow:IGNORE: platform dependent
random noise line
test_runner.c:35:test_extra_case:PASS

-----------------------
4 Tests 1 Failures 1 Ignored
FAIL
`
	results := ParseUnityOutput(output)
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4: %+v", len(results), results)
	}

	tests := []struct {
		name    string
		passed  bool
		message string
	}{
		{"test_add_basic", true, ""},
		{"test_add_negative", false, "Expected -3 Was 3"},
		{"test_add_overflow", false, "ignored: platform dependent"},
		{"test_extra_case", true, ""},
	}
	for i, want := range tests {
		got := results[i]
		if got.Name != want.name || got.Passed != want.passed || got.Message != want.message {
			t.Errorf("result %d = %+v, want %+v", i, got, want)
		}
	}
}

func TestParseUnityOutputEmpty(t *testing.T) {
	for _, output := range []string{"", "no unity lines here\nat all\n"} {
		if results := ParseUnityOutput(output); len(results) != 0 {
			t.Errorf("ParseUnityOutput(%q) = %+v, want none", output, results)
		}
	}
}

func TestParseUnityOutputMessageWithColons(t *testing.T) {
	results := ParseUnityOutput("t.c:5:test_x:FAIL: Expected 'a:b' Was 'c:d'")
	if len(results) != 1 {
		t.Fatalf("results = %+v", results)
	}
	if results[0].Message != "Expected 'a:b' Was 'c:d'" {
		t.Errorf("message = %q", results[0].Message)
	}
}

func TestParseUnitySummary(t *testing.T) {
	s := ParseUnitySummary("noise\n12 Tests 2 Failures 1 Ignored\nFAIL\n")
	if !s.Found || s.Tests != 12 || s.Failures != 2 || s.Ignored != 1 {
		t.Errorf("summary = %+v", s)
	}

	if s := ParseUnitySummary("binary died before summary"); s.Found {
		t.Errorf("summary should be absent: %+v", s)
	}
}
