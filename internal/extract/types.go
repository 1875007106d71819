// Package extract turns a raw model reply into a normalized bundle of test
// artifacts. The reply is adversarial input: truncated JSON, reordered table
// columns, and bare code fences all have to degrade into usable records
// instead of failures.
package extract

import (
	"errors"
	"strings"
	"time"
)

// ErrNoExtractableTestCases is reported when every envelope in a response
// failed to yield a single usable record. It is a terminal condition for one
// generation attempt, distinct from an intentionally empty test set.
var ErrNoExtractableTestCases = errors.New("no extractable test cases in model response")

// RawResponse is one model reply. Immutable once constructed.
type RawResponse struct {
	Text       string
	ReceivedAt time.Time
}

// EnvelopeKind is the closed set of recognized response envelopes. Adding a
// format means adding a kind and a parser, not editing a conditional chain.
type EnvelopeKind int

const (
	EnvelopeJSON EnvelopeKind = iota
	EnvelopeTable
	EnvelopeCodeFence
)

func (k EnvelopeKind) String() string {
	switch k {
	case EnvelopeJSON:
		return "json"
	case EnvelopeTable:
		return "table"
	case EnvelopeCodeFence:
		return "codefence"
	default:
		return "unknown"
	}
}

// EnvelopeCandidate is one detected region of the response. Start/End are
// byte offsets into RawResponse.Text. Candidates may overlap; none is
// authoritative until reconciliation.
type EnvelopeCandidate struct {
	Kind     EnvelopeKind
	Start    int
	End      int
	Priority int    // lower value wins during reconciliation
	Lang     string // fence language tag, fences only
}

// Category classifies a test case.
type Category string

const (
	CategoryPositive Category = "positive"
	CategoryNegative Category = "negative"
	CategoryBoundary Category = "boundary"
	CategoryError    Category = "error"
	CategoryUnknown  Category = "unknown"
)

// normalizeCategory maps free-form model output ("Positive", "Negative /
// Error Path", ...) onto the closed category set.
func normalizeCategory(s string) Category {
	l := strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.Contains(l, "boundary"), strings.Contains(l, "edge"):
		return CategoryBoundary
	case strings.Contains(l, "error"):
		return CategoryError
	case strings.Contains(l, "negative"):
		return CategoryNegative
	case strings.Contains(l, "positive"), strings.Contains(l, "normal"), strings.Contains(l, "happy"):
		return CategoryPositive
	default:
		return CategoryUnknown
	}
}

// TestCaseRecord is one extracted unit test case.
// Invariants enforced by the reconciler: ID unique within a bundle,
// FunctionName non-empty, TestCode non-empty.
type TestCaseRecord struct {
	ID             string
	FunctionName   string
	Description    string
	InputData      string
	ExpectedOutput string
	Category       Category
	TestCode       string
	LowConfidence  bool
}

// ParseIssue is a non-fatal, per-record extraction problem. Issues are
// accumulated and reported alongside whatever was successfully recovered.
type ParseIssue struct {
	Stage  string // "json", "table", "codefence", "reconcile"
	Detail string
}

// BundleSummary is derived data; FunctionsTested is never supplied
// independently of TestCases.
type BundleSummary struct {
	TotalTests      int
	FunctionsTested []string
	CoverageAreas   []string
}

// TestArtifactBundle is the normalized, deduplicated extraction result.
// Recomputed from scratch for every response; never mutated incrementally.
type TestArtifactBundle struct {
	TestCases    []TestCaseRecord
	RunnerScript string
	BuildScript  string
	Summary      BundleSummary
}

// normalizeKey collapses whitespace and case for deduplication.
func normalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// dedupKey identifies a record across envelopes of different kinds.
func dedupKey(r TestCaseRecord) string {
	return normalizeKey(r.FunctionName) + "\x00" + normalizeKey(r.Description)
}
