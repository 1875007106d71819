package toolchain

import (
	"strconv"
	"strings"
)

// ParseUnityOutput extracts per-test verdicts from Unity's line protocol:
//
//	file.c:12:test_name:PASS
//	file.c:20:test_name:FAIL: Expected 5 Was 4
//	file.c:30:test_name:IGNORE: reason
//
// followed by a "N Tests M Failures K Ignored" summary. Unknown or malformed
// lines are skipped; test names never seen before are retained as-is.
func ParseUnityOutput(output string) []TestResult {
	var results []TestResult
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		// file:line:name:VERDICT[:message]
		parts := strings.SplitN(line, ":", 5)
		if len(parts) < 4 {
			continue
		}
		name := strings.TrimSpace(parts[2])
		verdict := strings.TrimSpace(parts[3])
		if name == "" {
			continue
		}
		switch verdict {
		case "PASS":
			results = append(results, TestResult{Name: name, Passed: true})
		case "FAIL":
			msg := ""
			if len(parts) == 5 {
				msg = strings.TrimSpace(parts[4])
			}
			results = append(results, TestResult{Name: name, Passed: false, Message: msg})
		case "IGNORE":
			msg := "ignored"
			if len(parts) == 5 {
				msg = "ignored: " + strings.TrimSpace(parts[4])
			}
			results = append(results, TestResult{Name: name, Passed: false, Message: msg})
		}
	}
	return results
}

// UnitySummary is the trailing "N Tests M Failures K Ignored" line.
type UnitySummary struct {
	Tests    int
	Failures int
	Ignored  int
	Found    bool
}

// ParseUnitySummary reads the summary line. Absence is not an error; the
// binary may have died before printing it.
func ParseUnitySummary(output string) UnitySummary {
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		// "12 Tests 2 Failures 0 Ignored"
		if len(fields) == 6 && fields[1] == "Tests" && fields[3] == "Failures" && fields[5] == "Ignored" {
			tests, err1 := strconv.Atoi(fields[0])
			failures, err2 := strconv.Atoi(fields[2])
			ignored, err3 := strconv.Atoi(fields[4])
			if err1 != nil || err2 != nil || err3 != nil {
				continue
			}
			return UnitySummary{Tests: tests, Failures: failures, Ignored: ignored, Found: true}
		}
	}
	return UnitySummary{}
}
