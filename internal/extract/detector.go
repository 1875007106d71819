package extract

import (
	"fmt"
	"strings"

	"utforge/internal/logging"
)

// DetectEnvelopes scans the response text for candidate regions and returns
// them in reconciliation priority order: JSON blocks first, then markdown
// tables, then code fences. Detection is purely lexical; no candidate is
// parsed here.
//
// JSON candidates are ordered last-block-first because the prompt asks the
// model to append its machine-readable mirror as the final section, so the
// last balanced block is the most likely mirror.
func DetectEnvelopes(text string) []EnvelopeCandidate {
	cands, _ := detectEnvelopes(text)
	return cands
}

// detectEnvelopes also reports detection-stage issues, currently just a
// trailing brace block that never closes (a reply cut off mid-mirror).
func detectEnvelopes(text string) ([]EnvelopeCandidate, []ParseIssue) {
	fences := detectFences(text)

	// Brace-scanning C or Makefile fence bodies would produce junk JSON
	// candidates for every function body, so those regions are masked out.
	// A fence that visibly holds JSON stays visible to the scanner.
	var masked []span
	for _, f := range fences {
		body := strings.TrimSpace(text[f.Start:f.End])
		if f.Lang == "json" || strings.HasPrefix(body, "{") {
			continue
		}
		masked = append(masked, span{f.Start, f.End})
	}

	jsonBlocks, truncatedAt := detectJSONBlocks(text, masked)
	tables := detectTables(text)

	var issues []ParseIssue
	if truncatedAt >= 0 {
		issues = append(issues, ParseIssue{
			Stage:  "json",
			Detail: fmt.Sprintf("unterminated JSON block at offset %d, reply looks truncated", truncatedAt),
		})
	}

	out := make([]EnvelopeCandidate, 0, len(jsonBlocks)+len(tables)+len(fences))
	prio := 0
	for i := len(jsonBlocks) - 1; i >= 0; i-- {
		c := jsonBlocks[i]
		c.Priority = prio
		prio++
		out = append(out, c)
	}
	for _, c := range tables {
		c.Priority = prio
		prio++
		out = append(out, c)
	}
	for _, c := range fences {
		c.Priority = prio
		prio++
		out = append(out, c)
	}

	logging.ExtractDebug("detected envelopes: json=%d table=%d fence=%d", len(jsonBlocks), len(tables), len(fences))
	return out, issues
}

// span is a half-open byte range.
type span struct {
	start, end int
}

// detectJSONBlocks finds balanced top-level {...} regions with string and
// escape awareness, skipping masked regions. An unterminated block is not
// captured; its offset comes back as truncatedAt (-1 when every brace that
// opened also closed or a later block balanced past it) so callers can
// report the degradation.
func detectJSONBlocks(text string, masked []span) (blocks []EnvelopeCandidate, truncatedAt int) {
	truncatedAt = -1
	for i := 0; i < len(text); i++ {
		if in, end := inSpan(i, masked); in {
			i = end - 1
			continue
		}
		if text[i] != '{' {
			continue
		}
		end, ok := matchBrace(text, i)
		if !ok {
			// Unbalanced from here; keep scanning, a later block may close.
			if truncatedAt == -1 {
				truncatedAt = i
			}
			continue
		}
		blocks = append(blocks, EnvelopeCandidate{Kind: EnvelopeJSON, Start: i, End: end})
		truncatedAt = -1
		i = end - 1
	}
	return blocks, truncatedAt
}

func inSpan(pos int, spans []span) (bool, int) {
	for _, s := range spans {
		if pos >= s.start && pos < s.end {
			return true, s.end
		}
	}
	return false, 0
}

// matchBrace returns the offset one past the brace that closes the block
// opening at start.
func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

// detectTables finds markdown tables: a header row containing '|' followed
// by a separator row of dashes, extended down through contiguous '|' rows.
func detectTables(text string) []EnvelopeCandidate {
	lines := strings.SplitAfter(text, "\n")
	var tables []EnvelopeCandidate

	offset := 0
	starts := make([]int, len(lines))
	for i, ln := range lines {
		starts[i] = offset
		offset += len(ln)
	}

	for i := 0; i < len(lines)-1; i++ {
		if !strings.Contains(lines[i], "|") || !isSeparatorRow(lines[i+1]) {
			continue
		}
		end := i + 2
		for end < len(lines) && strings.Contains(lines[end], "|") {
			end++
		}
		tableEnd := len(text)
		if end < len(lines) {
			tableEnd = starts[end]
		}
		tables = append(tables, EnvelopeCandidate{Kind: EnvelopeTable, Start: starts[i], End: tableEnd})
		i = end - 1
	}
	return tables
}

// isSeparatorRow reports whether a line is a markdown table separator like
// | --- | :---: | --- |.
func isSeparatorRow(line string) bool {
	line = strings.TrimSpace(line)
	if !strings.Contains(line, "-") || !strings.Contains(line, "|") {
		return false
	}
	for _, r := range line {
		switch r {
		case '|', '-', ':', ' ', '\t':
		default:
			return false
		}
	}
	return true
}

// detectFences finds ``` fenced blocks. The candidate span covers the fence
// body only, not the fence markers.
func detectFences(text string) []EnvelopeCandidate {
	var fences []EnvelopeCandidate
	i := 0
	for {
		open := strings.Index(text[i:], "```")
		if open == -1 {
			return fences
		}
		open += i

		langEnd := strings.IndexByte(text[open:], '\n')
		if langEnd == -1 {
			return fences
		}
		lang := strings.TrimSpace(text[open+3 : open+langEnd])
		bodyStart := open + langEnd + 1

		close := strings.Index(text[bodyStart:], "```")
		if close == -1 {
			return fences // unterminated fence: drop it rather than guess
		}
		bodyEnd := bodyStart + close

		fences = append(fences, EnvelopeCandidate{
			Kind:  EnvelopeCodeFence,
			Start: bodyStart,
			End:   bodyEnd,
			Lang:  strings.ToLower(lang),
		})
		i = bodyEnd + 3
	}
}
