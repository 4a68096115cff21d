// Package fold implements RFC 5322 §2.2.3 header line folding: breaking a
// long header value into multiple physical lines joined by CRLF plus a
// single leading space, so no physical line exceeds the wire width.
package fold

import "strings"

// DefaultWidth is the folding width used when a caller has no reason to
// deviate from it.
const DefaultWidth = 76

// Fold breaks s into folded physical lines at whitespace boundaries so that
// no line exceeds width octets, joining them with "\r\n ". A single word
// longer than width is emitted unbroken on its own line rather than split
// mid-word. Any CRLF already embedded in s (for example a value that already
// contains a folded continuation) is treated as a hard line break: each
// segment between embedded CRLFs is folded independently.
func Fold(s string, width int) string {
	if width <= 0 {
		width = DefaultWidth
	}

	segments := strings.Split(s, "\r\n")
	folded := make([]string, len(segments))
	for i, seg := range segments {
		folded[i] = foldSegment(seg, width)
	}
	return strings.Join(folded, "\r\n")
}

func foldSegment(s string, width int) string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return s
	}

	var lines []string
	line := words[0]
	limit := width
	for _, w := range words[1:] {
		if len(line)+1+len(w) > limit {
			lines = append(lines, line)
			line = w
			// Continuation lines begin with the folding space.
			limit = width - 1
			continue
		}
		line += " " + w
	}
	lines = append(lines, line)
	return strings.Join(lines, "\r\n ")
}

// FoldChunks splits s into fixed-width chunks with no regard for whitespace,
// the way a base64 blob (which has none) must be folded. The first chunk is
// firstWidth octets; every chunk after it is restWidth octets, except the
// last which may be shorter. Chunks are joined by "\r\n " so the result is a
// valid sequence of folded header continuation lines.
func FoldChunks(s string, firstWidth, restWidth int) string {
	if s == "" {
		return s
	}

	var chunks []string
	width := firstWidth
	for len(s) > 0 {
		n := width
		if n > len(s) {
			n = len(s)
		}
		chunks = append(chunks, s[:n])
		s = s[n:]
		width = restWidth
	}
	return strings.Join(chunks, "\r\n ")
}
