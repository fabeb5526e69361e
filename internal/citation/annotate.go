// Package citation turns raw assistant turns into display text with inline
// citation markers and a deduplicated, numbered source list.
package citation

import (
	"fmt"
	"sort"
	"strings"

	"qchat/internal/domain"
)

const (
	maxTitleLen        = 50
	maxConversationLen = 48
)

// Annotate renders a turn's body for display. For a system turn with
// citations it cuts the body at each distinct citation end offset and inserts
// a 1-based [n] marker after every non-final segment. User turns and
// citation-free system turns pass through untouched apart from line-break
// normalization, which applies to every branch.
func Annotate(turn domain.Turn) string {
	if turn.Role != domain.RoleSystem || len(turn.Citations) == 0 {
		return normalizeLineBreaks(turn.Body)
	}

	offsets := cutPoints(turn.Body, turn.Citations)
	if len(offsets) == 0 {
		return normalizeLineBreaks(turn.Body)
	}

	segments := splitAtOffsets(turn.Body, offsets)

	var b strings.Builder
	for i, seg := range segments {
		b.WriteString(seg)
		if i < len(segments)-1 {
			fmt.Fprintf(&b, "[%d]", i+1)
		}
	}
	return normalizeLineBreaks(b.String())
}

// cutPoints collects the end offset of the first text span of every citation,
// clamps them into the body, and returns the distinct values in ascending
// order. Citations sharing an end offset collapse to a single cut point.
func cutPoints(body string, citations []domain.SourceAttribution) []int {
	seen := make(map[int]struct{}, len(citations))
	offsets := make([]int, 0, len(citations))
	for _, c := range citations {
		if len(c.TextSpans) == 0 {
			continue
		}
		off := c.TextSpans[0].EndOffset
		if off > len(body) {
			off = len(body)
		}
		if off <= 0 {
			continue
		}
		if _, ok := seen[off]; ok {
			continue
		}
		seen[off] = struct{}{}
		offsets = append(offsets, off)
	}
	sort.Ints(offsets)
	return offsets
}

// splitAtOffsets splits body at each offset, producing len(offsets)+1
// substrings. Offsets must be ascending and within the body.
func splitAtOffsets(body string, offsets []int) []string {
	segments := make([]string, 0, len(offsets)+1)
	start := 0
	for _, off := range offsets {
		segments = append(segments, body[start:off])
		start = off
	}
	segments = append(segments, body[start:])
	return segments
}

// DedupeAttributions walks the citation list once, keeps the first occurrence
// of each distinct title, and numbers the survivors 1..n in retained order.
func DedupeAttributions(attributions []domain.SourceAttribution) []domain.SourceAttribution {
	seen := make(map[string]struct{}, len(attributions))
	deduped := make([]domain.SourceAttribution, 0, len(attributions))
	for _, a := range attributions {
		if _, ok := seen[a.Title]; ok {
			continue
		}
		seen[a.Title] = struct{}{}
		a.CitationNumber = len(deduped) + 1
		deduped = append(deduped, a)
	}
	return deduped
}

// TruncateTitle shortens a citation title for display. The stored attribution
// is never mutated.
func TruncateTitle(title string) string {
	return truncate(title, maxTitleLen)
}

// TruncateConversationTitle shortens a conversation title for display.
func TruncateConversationTitle(title string) string {
	return truncate(title, maxConversationLen)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + " ..."
}

func normalizeLineBreaks(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
