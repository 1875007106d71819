package csrc

import (
	"sort"
	"testing"
)

const sampleSource = `#include <stdio.h>
#include <stdlib.h>

static int counter = 0;

int add(int a, int b) {
    return a + b;
}

/* pointer return */
char *dup_string(const char *s) {
    return strdup(s);
}

static void reset(void) {
    counter = 0;
}

int main(void) {
    printf("%d\n", add(1, 2));
    return 0;
}
`

func TestScanFunctions(t *testing.T) {
	s := NewScanner()
	funcs := s.ScanFunctions(map[string]string{"sample.c": sampleSource})

	names := make([]string, 0, len(funcs))
	for _, f := range funcs {
		if f.File != "sample.c" {
			t.Errorf("file = %q, want sample.c", f.File)
		}
		if f.StartLine <= 0 || f.EndLine < f.StartLine {
			t.Errorf("%s has bad line span %d..%d", f.Name, f.StartLine, f.EndLine)
		}
		names = append(names, f.Name)
	}
	sort.Strings(names)

	want := []string{"add", "dup_string", "main", "reset"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names = %v, want %v", names, want)
			break
		}
	}
}

func TestScanFunctionsSkipsNonC(t *testing.T) {
	s := NewScanner()
	funcs := s.ScanFunctions(map[string]string{
		"README.md": "int fake(void) { return 0; }",
		"notes.txt": "int other(void) { return 0; }",
	})
	if len(funcs) != 0 {
		t.Errorf("non-C files must be skipped, got %+v", funcs)
	}
}

func TestScanFunctionsGarbageInput(t *testing.T) {
	s := NewScanner()
	// Tree-sitter recovers aggressively; the guarantee is no failure and no
	// invented names, not a particular partial result.
	funcs := s.ScanFunctions(map[string]string{"broken.c": "int incomplete(void { ???"})
	for _, f := range funcs {
		if f.Name == "" {
			t.Errorf("empty function name in %+v", f)
		}
	}
}

func TestScanFunctionsEmpty(t *testing.T) {
	s := NewScanner()
	if funcs := s.ScanFunctions(nil); len(funcs) != 0 {
		t.Errorf("got %+v, want none", funcs)
	}
}
