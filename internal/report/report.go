// Package report assembles the per-request final report from whatever the
// earlier stages produced. Assembly is pure: no I/O, no mutation of inputs.
package report

import (
	"fmt"

	"utforge/internal/coverage"
	"utforge/internal/extract"
	"utforge/internal/toolchain"
)

// Pipeline stages, in order. FinalReport.Stage names the furthest one
// reached before the run ended.
const (
	StageGeneration  = "generation"
	StageParsing     = "parsing"
	StageStaging     = "staging"
	StageCompilation = "compilation"
	StageExecution   = "execution"
	StageCoverage    = "coverage"
	StageComplete    = "complete"
)

// CaseResult is one test case joined with its run verdict.
type CaseResult struct {
	extract.TestCaseRecord
	Executed bool
	Passed   bool
	Message  string
}

// FinalReport is the complete outcome of one generation request.
type FinalReport struct {
	RequestID    string
	Stage        string
	TestCases    []CaseResult
	RunnerScript string
	BuildScript  string
	Run          *toolchain.RunOutcome
	Coverage     coverage.Report
	Issues       []string
}

// Passed counts executed-and-passed cases.
func (r *FinalReport) Passed() int {
	n := 0
	for _, c := range r.TestCases {
		if c.Executed && c.Passed {
			n++
		}
	}
	return n
}

// Failed counts executed-and-failed cases.
func (r *FinalReport) Failed() int {
	n := 0
	for _, c := range r.TestCases {
		if c.Executed && !c.Passed {
			n++
		}
	}
	return n
}

// Assemble joins the artifact bundle with the run outcome and coverage.
// Run verdicts correlate to records by function name; verdicts for names no
// record claims become synthesized low-confidence entries, so nothing the
// binary reported is dropped. bundle and outcome may be nil when earlier
// stages failed.
func Assemble(requestID, stage string, bundle *extract.TestArtifactBundle, outcome *toolchain.RunOutcome, cov coverage.Report, parseIssues []extract.ParseIssue) FinalReport {
	rep := FinalReport{
		RequestID: requestID,
		Stage:     stage,
		Run:       outcome,
		Coverage:  cov,
	}
	for _, iss := range parseIssues {
		rep.Issues = append(rep.Issues, fmt.Sprintf("%s: %s", iss.Stage, iss.Detail))
	}
	rep.Issues = append(rep.Issues, cov.Issues...)

	if bundle == nil {
		return rep
	}
	rep.RunnerScript = bundle.RunnerScript
	rep.BuildScript = bundle.BuildScript

	verdicts := make(map[string]toolchain.TestResult)
	if outcome != nil {
		for _, tr := range outcome.PerTest {
			verdicts[tr.Name] = tr
		}
	}

	claimed := make(map[string]bool)
	for _, rec := range bundle.TestCases {
		cr := CaseResult{TestCaseRecord: rec}
		if tr, ok := verdicts[rec.FunctionName]; ok {
			cr.Executed = true
			cr.Passed = tr.Passed
			cr.Message = tr.Message
			claimed[rec.FunctionName] = true
		}
		rep.TestCases = append(rep.TestCases, cr)
	}

	// On a crash the binary never printed a verdict for the test it died
	// in. Tests run in record order, so the first record without a verdict
	// is the one the signal took down.
	if outcome != nil && outcome.Status == toolchain.StatusCrashed {
		for i := range rep.TestCases {
			if rep.TestCases[i].Executed {
				continue
			}
			rep.TestCases[i].Executed = true
			rep.TestCases[i].Passed = false
			rep.TestCases[i].Message = outcome.Diagnostics
			break
		}
	}

	// Verdicts nothing claimed: the binary ran a test we have no record of.
	next := len(bundle.TestCases) + 1
	if outcome != nil {
		for _, tr := range outcome.PerTest {
			if claimed[tr.Name] {
				continue
			}
			rep.TestCases = append(rep.TestCases, CaseResult{
				TestCaseRecord: extract.TestCaseRecord{
					ID:            fmt.Sprintf("TC_%03d", next),
					FunctionName:  tr.Name,
					Category:      extract.CategoryUnknown,
					LowConfidence: true,
				},
				Executed: true,
				Passed:   tr.Passed,
				Message:  tr.Message,
			})
			claimed[tr.Name] = true
			next++
		}
	}

	return rep
}
