package extract

import (
	"strings"
	"testing"
)

func TestDetectJSONBlocks(t *testing.T) {
	text := `Here are your tests.

{"test_cases": [{"function_name": "test_add"}]}

Some prose with an {inline: "brace"} region.

{"table_rows": []}`

	blocks, _ := detectJSONBlocks(text, nil)
	if len(blocks) != 3 {
		t.Fatalf("got %d blocks, want 3", len(blocks))
	}
	for _, b := range blocks {
		if text[b.Start] != '{' || text[b.End-1] != '}' {
			t.Errorf("block span [%d,%d) is not brace-delimited: %q", b.Start, b.End, text[b.Start:b.End])
		}
	}
}

func TestDetectJSONBlocksSkipsUnbalanced(t *testing.T) {
	text := `{"test_cases": [{"function_name": "test_add"`
	blocks, truncatedAt := detectJSONBlocks(text, nil)
	if len(blocks) != 0 {
		t.Fatalf("truncated block should not be captured, got %d", len(blocks))
	}
	if truncatedAt != 0 {
		t.Errorf("truncatedAt = %d, want 0", truncatedAt)
	}
}

func TestDetectEnvelopesFlagsTruncatedTail(t *testing.T) {
	text := `{"table_rows": []}

{"test_cases": [{"function_name": "test_add", "descr`

	cands, issues := detectEnvelopes(text)
	if len(cands) != 1 {
		t.Fatalf("got %d candidates, want 1: %+v", len(cands), cands)
	}
	if len(issues) != 1 || !strings.Contains(issues[0].Detail, "truncated") {
		t.Errorf("issues = %+v, want one truncation issue", issues)
	}

	// A balanced block after a stray brace means nothing was cut off.
	_, issues = detectEnvelopes(`an { aside, then {"test_cases": []}`)
	if len(issues) != 0 {
		t.Errorf("balanced tail should not be flagged: %+v", issues)
	}
}

func TestDetectJSONBlocksStringAwareness(t *testing.T) {
	text := `{"description": "a } inside a string", "function_name": "test_x"}`
	blocks, _ := detectJSONBlocks(text, nil)
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
	if got := text[blocks[0].Start:blocks[0].End]; got != text {
		t.Errorf("span = %q, want whole text", got)
	}
}

func TestDetectTables(t *testing.T) {
	text := "intro prose\n" +
		"| Test Case ID | Description |\n" +
		"|---|---|\n" +
		"| TC1 | first |\n" +
		"| TC2 | second |\n" +
		"\nclosing prose\n"

	tables := detectTables(text)
	if len(tables) != 1 {
		t.Fatalf("got %d tables, want 1", len(tables))
	}
	body := text[tables[0].Start:tables[0].End]
	if !containsAll(body, "Test Case ID", "TC1", "TC2") {
		t.Errorf("table span missing rows: %q", body)
	}
}

func TestDetectFences(t *testing.T) {
	text := "Pre.\n```c\nvoid test_a(void) {}\n```\nmid\n```\nplain fence\n```\n"
	fences := detectFences(text)
	if len(fences) != 2 {
		t.Fatalf("got %d fences, want 2", len(fences))
	}
	if fences[0].Lang != "c" {
		t.Errorf("lang = %q, want c", fences[0].Lang)
	}
	if body := text[fences[0].Start:fences[0].End]; body != "void test_a(void) {}\n" {
		t.Errorf("fence body = %q", body)
	}
	if fences[1].Lang != "" {
		t.Errorf("second fence lang = %q, want empty", fences[1].Lang)
	}
}

func TestDetectFencesUnterminated(t *testing.T) {
	text := "```c\nvoid test_a(void) {}\n"
	if fences := detectFences(text); len(fences) != 0 {
		t.Fatalf("unterminated fence should be dropped, got %d", len(fences))
	}
}

func TestDetectEnvelopesPriorityOrder(t *testing.T) {
	text := `{"test_cases": []}
| Function Name | Description |
|---|---|
| test_a | x |
` + "```c\nvoid test_b(void) {}\n```\n"

	cands := DetectEnvelopes(text)
	if len(cands) < 3 {
		t.Fatalf("got %d candidates, want >= 3", len(cands))
	}
	if cands[0].Kind != EnvelopeJSON {
		t.Errorf("first candidate kind = %s, want json", cands[0].Kind)
	}
	for i := 1; i < len(cands); i++ {
		if cands[i].Priority <= cands[i-1].Priority {
			t.Errorf("priorities not strictly increasing at %d", i)
		}
	}
	// Last kind must be the code fence.
	if cands[len(cands)-1].Kind != EnvelopeCodeFence {
		t.Errorf("last candidate kind = %s, want codefence", cands[len(cands)-1].Kind)
	}
}

func TestDetectEnvelopesMasksCodeFenceBraces(t *testing.T) {
	text := "```c\nvoid test_a(void) { TEST_ASSERT_TRUE(1); }\n```\n"
	cands := DetectEnvelopes(text)
	if len(cands) != 1 {
		t.Fatalf("got %d candidates, want only the fence: %+v", len(cands), cands)
	}
	if cands[0].Kind != EnvelopeCodeFence {
		t.Errorf("kind = %s", cands[0].Kind)
	}

	// A fence that holds JSON stays visible to the brace scanner.
	text = "```json\n{\"test_cases\": []}\n```\n"
	cands = DetectEnvelopes(text)
	hasJSON := false
	for _, c := range cands {
		if c.Kind == EnvelopeJSON {
			hasJSON = true
		}
	}
	if !hasJSON {
		t.Errorf("json fence body lost to masking: %+v", cands)
	}
}

func TestDetectEnvelopesLastJSONBlockFirst(t *testing.T) {
	text := `{"first": true} prose {"test_cases": []}`
	cands := DetectEnvelopes(text)
	if len(cands) != 2 {
		t.Fatalf("got %d candidates, want 2", len(cands))
	}
	if text[cands[0].Start:cands[0].End] != `{"test_cases": []}` {
		t.Errorf("last JSON block should carry top priority, got %q", text[cands[0].Start:cands[0].End])
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
