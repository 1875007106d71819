package extract

import (
	"fmt"

	"utforge/internal/logging"
)

// Parse runs the full extraction pipeline on one response: detect envelopes,
// run each candidate's parser, and reconcile the results into exactly one
// bundle. Pure and deterministic: the same text always yields an identical
// bundle. Returns ErrNoExtractableTestCases when nothing usable survived.
func Parse(raw RawResponse) (*TestArtifactBundle, []ParseIssue, error) {
	candidates, detectIssues := detectEnvelopes(raw.Text)

	var results []candidateResult
	fenceSeq := 0
	for _, cand := range candidates {
		body := raw.Text[cand.Start:cand.End]
		var res candidateResult
		switch cand.Kind {
		case EnvelopeJSON:
			res = parseJSONCandidate(body)
		case EnvelopeTable:
			res = parseTableCandidate(body)
		case EnvelopeCodeFence:
			res = parseFenceCandidate(body, cand.Lang, &fenceSeq)
		}
		results = append(results, res)
	}

	bundle, issues, err := reconcile(results)
	issues = append(detectIssues, issues...)
	return bundle, issues, err
}

// reconcile merges per-candidate results under the fallback-priority policy:
// results arrive in priority order, and a later record is accepted only when
// no earlier record shares its dedup key. Lower-priority sources fill gaps;
// they never override.
func reconcile(results []candidateResult) (*TestArtifactBundle, []ParseIssue, error) {
	bundle := &TestArtifactBundle{}
	var issues []ParseIssue

	seen := make(map[string]bool)
	fnHasRecord := make(map[string]bool)
	var records []TestCaseRecord
	var scripts []string

	for _, res := range results {
		issues = append(issues, res.issues...)

		// Script payloads are independent of record extraction: a JSON block
		// whose test_cases were unusable still contributes its runner.
		if bundle.RunnerScript == "" && res.runner != "" {
			bundle.RunnerScript = res.runner
		}
		if bundle.BuildScript == "" && res.build != "" {
			bundle.BuildScript = res.build
		}
		if res.script != "" {
			scripts = append(scripts, res.script)
		}
		if len(bundle.Summary.CoverageAreas) == 0 && len(res.areas) > 0 {
			bundle.Summary.CoverageAreas = res.areas
		}

		for _, rec := range res.records {
			key := dedupKey(rec)
			if seen[key] {
				continue
			}
			// A description-less record (fence-derived) duplicates any earlier
			// record for the same function; earlier sources carry the metadata.
			fn := normalizeKey(rec.FunctionName)
			if normalizeKey(rec.Description) == "" && fnHasRecord[fn] {
				continue
			}
			seen[key] = true
			fnHasRecord[fn] = true
			records = append(records, rec)
		}
	}

	records, attrIssues := attributeTestCode(records, scripts)
	issues = append(issues, attrIssues...)

	if len(records) == 0 {
		logging.Extract("no usable records after reconciliation (%d issues)", len(issues))
		return nil, issues, ErrNoExtractableTestCases
	}

	// IDs are reconciler-assigned in final-list order, never taken from the
	// source text, so uniqueness holds no matter what the model emitted.
	seenFn := make(map[string]bool)
	for i := range records {
		records[i].ID = fmt.Sprintf("TC_%03d", i+1)
		if fn := records[i].FunctionName; !seenFn[fn] {
			seenFn[fn] = true
			bundle.Summary.FunctionsTested = append(bundle.Summary.FunctionsTested, fn)
		}
	}

	bundle.TestCases = records
	bundle.Summary.TotalTests = len(records)

	logging.Extract("reconciled %d test cases across %d functions (%d issues)",
		len(records), len(bundle.Summary.FunctionsTested), len(issues))
	return bundle, issues, nil
}

// attributeTestCode fills records that carry metadata but no code (table
// rows, JSON mirror rows) with the matching function body from whatever test
// scripts were extracted. A record that still has no code after attribution
// is dropped: an untestable row is metadata, not a test case.
func attributeTestCode(records []TestCaseRecord, scripts []string) ([]TestCaseRecord, []ParseIssue) {
	var issues []ParseIssue

	bodies := make(map[string]string)
	for _, script := range scripts {
		for _, fn := range extractTestFunctions(script) {
			if _, ok := bodies[fn.Name]; !ok {
				bodies[fn.Name] = fn.Source
			}
		}
	}

	wholeScript := ""
	if len(scripts) > 0 {
		wholeScript = scripts[0]
	}

	out := records[:0]
	for _, rec := range records {
		if rec.TestCode == "" {
			if body, ok := bodies[rec.FunctionName]; ok {
				rec.TestCode = body
			} else if wholeScript != "" {
				// Name mangled or script monolithic: fall back to the whole
				// script so the case remains runnable, but flag it.
				rec.TestCode = wholeScript
				rec.LowConfidence = true
			} else {
				issues = append(issues, ParseIssue{
					Stage:  "reconcile",
					Detail: fmt.Sprintf("record %q has no test code and none was attributable, dropped", rec.FunctionName),
				})
				continue
			}
		}
		out = append(out, rec)
	}
	return out, issues
}
