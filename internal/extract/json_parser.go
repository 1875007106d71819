package extract

import (
	"encoding/json"
	"fmt"
	"strings"
)

// candidateResult is what a single envelope parser recovered. Parsers may
// partially succeed: records, scripts, and issues are all independent.
type candidateResult struct {
	records []TestCaseRecord
	runner  string // test runner source, if the envelope carried one
	build   string // build script (Makefile) text, if carried
	script  string // full test-script source, attribution source for code-less records
	areas   []string
	issues  []ParseIssue
}

// parseJSONCandidate parses a balanced JSON block. Two schemas are accepted:
// the flat one ("test_cases" + "test_runner_script" + "makefile_content")
// and the table-mirror one ("table_rows" + "test_script_c" + "test_runner_c").
// Unknown fields are ignored; a record missing its function name is dropped
// with an issue rather than failing the block.
func parseJSONCandidate(text string) candidateResult {
	var res candidateResult

	// The model frequently leaves stray backticks around the final block.
	text = strings.TrimSpace(text)
	text = strings.Trim(text, "`")

	var payload map[string]any
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		res.issues = append(res.issues, ParseIssue{Stage: "json", Detail: fmt.Sprintf("block is not valid JSON: %v", err)})
		return res
	}

	// Script payloads are honored independently of test-case extraction.
	res.script = firstString(payload, "test_script_c", "test_script")
	res.runner = firstString(payload, "test_runner_script", "test_runner_c", "test_runner")
	res.build = firstString(payload, "makefile_content", "build_script")

	if summary, ok := payload["test_summary"].(map[string]any); ok {
		res.areas = stringSlice(summary["coverage_areas"])
	}

	for i, item := range anySlice(payload["test_cases"]) {
		row, ok := item.(map[string]any)
		if !ok {
			res.issues = append(res.issues, ParseIssue{Stage: "json", Detail: fmt.Sprintf("test_cases[%d] is not an object", i)})
			continue
		}
		rec := TestCaseRecord{
			FunctionName:   firstString(row, "function_name", "name", "test_function"),
			Description:    firstString(row, "description"),
			InputData:      firstString(row, "input_data", "input"),
			ExpectedOutput: firstString(row, "expected_output", "expected_result", "expected"),
			Category:       normalizeCategory(firstString(row, "category", "type")),
			TestCode:       firstString(row, "test_code", "code"),
		}
		if rec.FunctionName == "" {
			res.issues = append(res.issues, ParseIssue{Stage: "json", Detail: fmt.Sprintf("test_cases[%d] has no function name, dropped", i)})
			continue
		}
		res.records = append(res.records, rec)
	}

	for i, item := range anySlice(payload["table_rows"]) {
		row, ok := item.(map[string]any)
		if !ok {
			res.issues = append(res.issues, ParseIssue{Stage: "json", Detail: fmt.Sprintf("table_rows[%d] is not an object", i)})
			continue
		}
		rec := recordFromCells(stringMap(row))
		if rec.FunctionName == "" {
			res.issues = append(res.issues, ParseIssue{Stage: "json", Detail: fmt.Sprintf("table_rows[%d] has no function name, dropped", i)})
			continue
		}
		res.records = append(res.records, rec)
	}

	return res
}

// firstString returns the first present key coerced to a string. Numbers and
// booleans are formatted rather than rejected; the artifact model is textual.
func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			return t
		case float64, bool, json.Number:
			return fmt.Sprintf("%v", t)
		}
	}
	return ""
}

func anySlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func stringSlice(v any) []string {
	var out []string
	for _, item := range anySlice(v) {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// stringMap flattens an object's values to strings keyed by the original
// (header-style) key names, for reuse of the table column-alias matching.
func stringMap(row map[string]any) map[string]string {
	out := make(map[string]string, len(row))
	for k, v := range row {
		if v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			out[k] = t
		default:
			out[k] = fmt.Sprintf("%v", t)
		}
	}
	return out
}
