package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// fenceRole classifies what a code fence most likely contains.
type fenceRole int

const (
	fenceTestScript fenceRole = iota
	fenceRunner
	fenceBuildScript
	fenceOther
)

var testFuncRe = regexp.MustCompile(`(?m)^\s*void\s+(test_\w+)\s*\(\s*(?:void)?\s*\)`)

// classifyFence decides a fence's role from its body. A fence with a main
// that registers tests is the runner; Makefile syntax is the build script;
// anything defining Unity-style test functions is a test script.
func classifyFence(body, lang string) fenceRole {
	switch lang {
	case "makefile", "make", "mk":
		return fenceBuildScript
	case "json", "yaml", "text", "md", "markdown":
		return fenceOther
	}

	if looksLikeMakefile(body) {
		return fenceBuildScript
	}

	hasMain := strings.Contains(body, "int main")
	hasRunTest := strings.Contains(body, "RUN_TEST(") || strings.Contains(body, "UNITY_BEGIN")
	hasTests := testFuncRe.MatchString(body)

	switch {
	case hasMain && hasRunTest && !hasTests:
		return fenceRunner
	case hasTests:
		return fenceTestScript
	case hasMain && hasRunTest:
		// Combined script+runner in one fence; treat as test script so the
		// bodies are recoverable, the runner synthesizer covers the rest.
		return fenceTestScript
	default:
		return fenceOther
	}
}

// looksLikeMakefile checks the first few meaningful lines for Makefile
// variable assignments or rule targets.
func looksLikeMakefile(body string) bool {
	lines := strings.Split(body, "\n")
	seen := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if strings.HasPrefix(line, "\t") {
			return seen > 0 // a recipe line after a target
		}
		if makefileLineRe.MatchString(line) {
			return true
		}
		seen++
		if seen > 5 {
			return false
		}
	}
	return false
}

var makefileLineRe = regexp.MustCompile(`^[A-Za-z_][\w.]*\s*[:+?]?=|^[\w.\-/ ]+:\s*[^=]*$`)

// testFunc is one test function recovered from C source text.
type testFunc struct {
	Name   string
	Source string
}

// extractTestFunctions recovers complete test function definitions from C
// source via brace balancing from each Unity-style signature.
func extractTestFunctions(code string) []testFunc {
	var funcs []testFunc
	for _, loc := range testFuncRe.FindAllStringSubmatchIndex(code, -1) {
		name := code[loc[2]:loc[3]]
		open := strings.IndexByte(code[loc[1]:], '{')
		if open == -1 {
			continue
		}
		// Only whitespace may sit between the signature and the brace,
		// otherwise this was a prototype declaration.
		if strings.TrimSpace(code[loc[1]:loc[1]+open]) != "" {
			continue
		}
		start := loc[1] + open
		end, ok := matchCBrace(code, start)
		if !ok {
			continue // truncated function body
		}
		funcs = append(funcs, testFunc{
			Name:   name,
			Source: strings.TrimSpace(code[loc[0]:end]),
		})
	}
	return funcs
}

// matchCBrace balances braces in C source, skipping string/char literals and
// both comment styles.
func matchCBrace(code string, start int) (int, bool) {
	depth := 0
	i := start
	for i < len(code) {
		switch c := code[i]; c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		case '"', '\'':
			quote := c
			i++
			for i < len(code) && code[i] != quote {
				if code[i] == '\\' {
					i++
				}
				i++
			}
		case '/':
			if i+1 < len(code) {
				switch code[i+1] {
				case '/':
					nl := strings.IndexByte(code[i:], '\n')
					if nl == -1 {
						return 0, false
					}
					i += nl
				case '*':
					close := strings.Index(code[i+2:], "*/")
					if close == -1 {
						return 0, false
					}
					i += 2 + close + 1
				}
			}
		}
		i++
	}
	return 0, false
}

// parseFenceCandidate recovers what it can from one code fence. Fences carry
// no metadata; test bodies are attributed to function names by the Unity
// naming convention, and a body with no recognizable name is synthesized
// under a sequential placeholder and flagged low-confidence. seq supplies
// the placeholder counter across fences of one response.
func parseFenceCandidate(body, lang string, seq *int) candidateResult {
	var res candidateResult

	body = strings.TrimSpace(body)
	if body == "" {
		return res
	}

	switch classifyFence(body, lang) {
	case fenceBuildScript:
		res.build = body
		return res
	case fenceRunner:
		res.runner = body
		return res
	case fenceOther:
		return res
	}

	res.script = body

	funcs := extractTestFunctions(body)
	if len(funcs) == 0 {
		// Code present but no recognizable test function: keep the body
		// under a placeholder so it is not silently discarded.
		*seq++
		res.records = append(res.records, TestCaseRecord{
			FunctionName:  fmt.Sprintf("extracted_case_%d", *seq),
			TestCode:      body,
			Category:      CategoryUnknown,
			LowConfidence: true,
		})
		res.issues = append(res.issues, ParseIssue{Stage: "codefence", Detail: "no test function name recoverable, synthesized placeholder"})
		return res
	}

	for _, fn := range funcs {
		res.records = append(res.records, TestCaseRecord{
			FunctionName: fn.Name,
			TestCode:     fn.Source,
			Category:     CategoryUnknown,
		})
	}
	return res
}
