// Package canon implements RFC 6376 §3.4 "relaxed" header and body
// canonicalization, the foundation the DKIM signer hashes and signs over.
// A single byte of deviation here invalidates every signature produced
// downstream, so the functions in this package hew to the RFC wording
// rather than any convenience shortcut.
package canon

import "strings"

// RelaxedBody canonicalizes a message body per RFC 6376 §3.4.4: line endings
// are normalized to CRLF, trailing whitespace is stripped from each line,
// internal runs of whitespace collapse to a single space, and any number of
// trailing empty lines collapse to exactly one terminating CRLF. An empty or
// whitespace-only body canonicalizes to a single CRLF.
func RelaxedBody(body []byte) []byte {
	lines := splitLines(normalizeNewlines(string(body)))

	for i, line := range lines {
		lines[i] = squeezeTrailingWSP(line)
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return []byte("\r\n")
	}
	return []byte(strings.Join(lines, "\r\n") + "\r\n")
}

// RelaxedHeaderLine splits a single unfolded header line on the first colon.
// The name is lowercased and trimmed; the value has all whitespace runs
// (including any leading whitespace after the colon) collapsed to single
// spaces and is trimmed.
func RelaxedHeaderLine(line string) (name, value string) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return strings.ToLower(strings.TrimSpace(line)), ""
	}
	name = strings.ToLower(strings.TrimSpace(line[:idx]))
	value = collapseWSP(line[idx+1:])
	return name, value
}

// RelaxedHeaders selects and canonicalizes the headers named in
// requestedNames (a colon-separated, case-insensitive list) out of a raw
// header block. For each requested name it keeps the first (topmost)
// occurrence and drops names that never appear. It returns the canonical
// block, the kept headers rendered as "name:value\r\n" in the requested
// order, along with the colon-separated list of names actually kept,
// lowercased and in that same order, suitable for a DKIM h= tag.
func RelaxedHeaders(rawHeaders []byte, requestedNames string) (block []byte, keptNames string) {
	logical := unfoldHeaderLines(string(rawHeaders))

	seen := make(map[string]string, len(logical))
	for _, line := range logical {
		name, value := RelaxedHeaderLine(line)
		if _, ok := seen[name]; !ok {
			seen[name] = value
		}
	}

	var kept []string
	var out strings.Builder
	for _, want := range strings.Split(requestedNames, ":") {
		want = strings.ToLower(strings.TrimSpace(want))
		if want == "" {
			continue
		}
		value, ok := seen[want]
		if !ok {
			continue
		}
		kept = append(kept, want)
		out.WriteString(want)
		out.WriteByte(':')
		out.WriteString(value)
		out.WriteString("\r\n")
	}

	return []byte(out.String()), strings.Join(kept, ":")
}

// normalizeNewlines converts any of CR, LF, or CRLF line endings to LF.
func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return s
}

// splitLines splits s on LF. A trailing LF does not produce a spurious final
// empty line; a body with no trailing LF has its last line treated normally.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// squeezeTrailingWSP collapses every run of space/tab, including a leading
// run, to a single space, and drops any trailing whitespace entirely.
func squeezeTrailingWSP(line string) string {
	var b strings.Builder
	inWSP := false
	for _, r := range line {
		if r == ' ' || r == '\t' {
			inWSP = true
			continue
		}
		if inWSP {
			b.WriteByte(' ')
			inWSP = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// collapseWSP collapses every run of space/tab (leading, trailing, or
// internal) to a single space, trimming the ends entirely.
func collapseWSP(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == '\t' })
	return strings.Join(fields, " ")
}

// Unfold joins a single folded header's physical lines (as produced by a
// line folder) back into one logical line, the way unfoldHeaderLines does
// for each entry of a larger header block. It is exported for signers that
// canonicalize a header they folded themselves, such as a DKIM-Signature
// line, before it has been spliced into a full header block.
func Unfold(s string) string {
	lines := unfoldHeaderLines(s)
	if len(lines) == 0 {
		return ""
	}
	return lines[0]
}

// unfoldHeaderLines splits a raw header block into logical header lines,
// joining folded continuations (lines beginning with whitespace) onto the
// line they continue.
func unfoldHeaderLines(raw string) []string {
	physical := splitLines(normalizeNewlines(raw))

	var logical []string
	for _, line := range physical {
		if len(line) > 0 && (line[0] == ' ' || line[0] == '\t') && len(logical) > 0 {
			logical[len(logical)-1] += line
			continue
		}
		if line == "" {
			continue
		}
		logical = append(logical, line)
	}
	return logical
}
