package coverage

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	fileStanzaRe = regexp.MustCompile(`^File '(.+)'$`)
	funcStanzaRe = regexp.MustCompile(`^Function '(.+)'$`)
	linesExecRe  = regexp.MustCompile(`^Lines executed:\s*([0-9.]+)% of (\d+)$`)
	lcovLinesRe  = regexp.MustCompile(`lines\.*:\s*([0-9.]+)%\s*\((\d+) of (\d+) lines?\)`)
)

// parseInto reads gcov -f stanza output:
//
//	Function 'add'
//	Lines executed:100.00% of 2
//	File 'math_utils.c'
//	Lines executed:90.00% of 10
//
// A "Lines executed" line binds to whichever Function/File heading preceded
// it. Overall is line-weighted across File stanzas of sources under test;
// the lcov one-line summary format is accepted as an alternative.
func parseInto(report *Report, output string) {
	var (
		pendingFunc    string
		pendingFile    string
		coveredLines   float64
		totalLines     float64
		sawFileStanza  bool
		lcovOverallSet bool
	)

	for _, raw := range strings.Split(output, "\n") {
		line := strings.TrimSpace(raw)

		if m := funcStanzaRe.FindStringSubmatch(line); m != nil {
			pendingFunc, pendingFile = m[1], ""
			continue
		}
		if m := fileStanzaRe.FindStringSubmatch(line); m != nil {
			pendingFile, pendingFunc = m[1], ""
			continue
		}
		if m := linesExecRe.FindStringSubmatch(line); m != nil {
			pct, err1 := strconv.ParseFloat(m[1], 64)
			n, err2 := strconv.ParseFloat(m[2], 64)
			if err1 != nil || err2 != nil {
				continue
			}
			switch {
			case pendingFunc != "":
				report.PerFunction[pendingFunc] = pct
			case pendingFile != "" && !isTestArtifact(pendingFile):
				sawFileStanza = true
				coveredLines += pct / 100 * n
				totalLines += n
			}
			pendingFunc, pendingFile = "", ""
			continue
		}
		if m := lcovLinesRe.FindStringSubmatch(line); m != nil {
			if pct, err := strconv.ParseFloat(m[1], 64); err == nil {
				report.Overall = pct
				lcovOverallSet = true
			}
		}
	}

	if sawFileStanza && totalLines > 0 && !lcovOverallSet {
		report.Overall = coveredLines / totalLines * 100
	}
}

func isTestArtifact(file string) bool {
	base := file[strings.LastIndexByte(file, '/')+1:]
	return base == "test_runner.c" || base == "test_suite.c"
}

// parseAnnotated computes overall coverage from .gcov annotated source:
// execution-count lines are "count: lineno: src", with "#####" marking an
// unexecuted executable line and "-" a non-executable one.
func parseAnnotated(text string) float64 {
	var covered, total float64
	for _, raw := range strings.Split(text, "\n") {
		parts := strings.SplitN(raw, ":", 3)
		if len(parts) < 3 {
			continue
		}
		count := strings.TrimSpace(parts[0])
		switch {
		case count == "-" || count == "":
			continue
		case count == "#####" || count == "=====":
			total++
		default:
			if _, err := strconv.ParseFloat(strings.TrimSuffix(count, "*"), 64); err == nil {
				covered++
				total++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return covered / total * 100
}
