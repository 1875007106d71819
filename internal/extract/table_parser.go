package extract

import (
	"fmt"
	"strings"
)

// canonical column names used by recordFromCells.
const (
	colID       = "id"
	colFunction = "function_name"
	colDesc     = "description"
	colInput    = "input_data"
	colExpected = "expected_output"
	colCategory = "category"
	colCode     = "test_code"
)

// columnAliases maps lower-cased header names the model actually emits onto
// canonical columns. Matching is case-insensitive and whitespace-collapsed.
var columnAliases = map[string]string{
	"test case id":                colID,
	"test id":                     colID,
	"id":                          colID,
	"unit test function name":     colFunction,
	"test function name":          colFunction,
	"function name":               colFunction,
	"function":                    colFunction,
	"description":                 colDesc,
	"test description":            colDesc,
	"test case description":       colDesc,
	"input data":                  colInput,
	"input":                       colInput,
	"inputs":                      colInput,
	"expected output / behavior":  colExpected,
	"expected output/behavior":    colExpected,
	"expected output":             colExpected,
	"expected result":             colExpected,
	"expected behavior":           colExpected,
	"type (positive / negative)":  colCategory,
	"type (positive/negative)":    colCategory,
	"type":                        colCategory,
	"category":                    colCategory,
	"test type":                   colCategory,
	"test code":                   colCode,
}

// parseTableCandidate parses a markdown table region. Column order is not
// assumed; headers are matched by alias. Rows shorter than the header pad
// with empty cells, longer rows truncate.
func parseTableCandidate(text string) candidateResult {
	var res candidateResult

	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		res.issues = append(res.issues, ParseIssue{Stage: "table", Detail: "table region too short"})
		return res
	}

	header := splitRow(lines[0])
	columns := make([]string, len(header))
	known := 0
	for i, h := range header {
		canon, ok := columnAliases[normalizeKey(h)]
		if ok {
			known++
		}
		columns[i] = canon
	}
	if known == 0 {
		res.issues = append(res.issues, ParseIssue{Stage: "table", Detail: "no recognizable columns in table header"})
		return res
	}

	for n, line := range lines[1:] {
		if isSeparatorRow(line) || strings.TrimSpace(line) == "" {
			continue
		}
		cells := splitRow(line)
		for len(cells) < len(columns) {
			cells = append(cells, "")
		}
		cells = cells[:len(columns)]

		rowMap := make(map[string]string, known)
		for i, canon := range columns {
			if canon != "" {
				rowMap[canon] = cells[i]
			}
		}

		rec := recordFromCells(rowMap)
		if rec.FunctionName == "" {
			res.issues = append(res.issues, ParseIssue{Stage: "table", Detail: fmt.Sprintf("row %d has no function name, dropped", n+1)})
			continue
		}
		res.records = append(res.records, rec)
	}

	return res
}

// recordFromCells builds a record from canonical-or-header-keyed cells.
// Shared by the markdown table parser and the JSON table-mirror path.
// The source ID is intentionally not carried: IDs are reconciler-assigned.
func recordFromCells(cells map[string]string) TestCaseRecord {
	canon := make(map[string]string, len(cells))
	for k, v := range cells {
		key := k
		if alias, ok := columnAliases[normalizeKey(k)]; ok {
			key = alias
		}
		canon[key] = strings.TrimSpace(v)
	}
	return TestCaseRecord{
		FunctionName:   canon[colFunction],
		Description:    canon[colDesc],
		InputData:      canon[colInput],
		ExpectedOutput: canon[colExpected],
		Category:       normalizeCategory(canon[colCategory]),
		TestCode:       canon[colCode],
	}
}

// splitRow splits a markdown table row into trimmed cells.
func splitRow(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	parts := strings.Split(line, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
