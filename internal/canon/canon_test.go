package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRelaxedBody(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty body canonicalizes to single CRLF", "", "\r\n"},
		{"bare LF terminator", "a\n", "a\r\n"},
		{"already CRLF", "a\r\n", "a\r\n"},
		{"repeated trailing whitespace before CRLF", "a \r\n", "a\r\n"},
		{"repeated internal whitespace", "a   b\r\n", "a b\r\n"},
		{"tabs collapse like spaces", "a\t\t\tb\r\n", "a b\r\n"},
		{"redundant trailing empty lines collapse", "a\r\n\r\n\r\n", "a\r\n"},
		{"whitespace-only body", "   \r\n", "\r\n"},
		{"lone CR normalizes like LF", "a\rb\r", "a\r\nb\r\n"},
		{"RFC 6376 appendix example", " C \r\nD \t E\r\n\r\n\r\n", " C\r\nD E\r\n"},
		{"internal whitespace and trailing blank lines collapse together", "Hello  world  \r\n\r\n\r\n", "Hello world\r\n"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, string(RelaxedBody([]byte(c.in))))
		})
	}
}

func TestRelaxedBodyIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"a\r\n",
		"Hello  world  \r\n\r\n\r\n",
		"a\rb\nc\r\n",
		"trailing ws   \r\n\r\n\r\n\r\n",
	}
	for _, in := range inputs {
		once := RelaxedBody([]byte(in))
		twice := RelaxedBody(once)
		assert.Equal(t, once, twice, "RelaxedBody should be idempotent for %q", in)
	}
}

func TestRelaxedBodyLineEndingEquivalence(t *testing.T) {
	crlf := RelaxedBody([]byte("line one\r\nline two  \r\n"))
	lf := RelaxedBody([]byte("line one\nline two  \n"))
	cr := RelaxedBody([]byte("line one\rline two  \r"))
	assert.Equal(t, crlf, lf)
	assert.Equal(t, crlf, cr)
}

func TestRelaxedHeaderLine(t *testing.T) {
	cases := []struct {
		in        string
		wantName  string
		wantValue string
	}{
		{"A: B", "a", "B"},
		{"A:   B   C", "a", "B C"},
		{"Subject: Hi\r\n there", "subject", "Hi\r\n there"},
		{"A \t : \t B", "a", "B"},
		{"Empty-Value:", "empty-value", ""},
	}
	for _, c := range cases {
		name, value := RelaxedHeaderLine(c.in)
		assert.Equal(t, c.wantName, name)
		assert.Equal(t, c.wantValue, value)
	}
}

func TestRelaxedHeaders(t *testing.T) {
	t.Run("selects and canonicalizes requested headers in order", func(t *testing.T) {
		raw := "From: a@x\r\nSubject: Hi\r\n there\r\n"
		block, kept := RelaxedHeaders([]byte(raw), "from:subject")
		assert.Equal(t, "from:subject", kept)
		assert.Equal(t, "from:a@x\r\nsubject:Hi there\r\n", string(block))
	})

	t.Run("drops requested names that do not appear", func(t *testing.T) {
		raw := "From: a@x\r\n"
		_, kept := RelaxedHeaders([]byte(raw), "from:to:subject")
		assert.Equal(t, "from", kept)
	})

	t.Run("first occurrence wins for duplicate headers", func(t *testing.T) {
		raw := "Subject: first\r\nSubject: second\r\n"
		block, kept := RelaxedHeaders([]byte(raw), "subject")
		assert.Equal(t, "subject", kept)
		assert.Equal(t, "subject:first\r\n", string(block))
	})

	t.Run("empty header value is kept", func(t *testing.T) {
		raw := "X-Empty:\r\n"
		block, kept := RelaxedHeaders([]byte(raw), "x-empty")
		assert.Equal(t, "x-empty", kept)
		assert.Equal(t, "x-empty:\r\n", string(block))
	})

	t.Run("requested order is preserved regardless of header order", func(t *testing.T) {
		raw := "Subject: S\r\nFrom: F\r\n"
		_, kept := RelaxedHeaders([]byte(raw), "from:subject")
		assert.Equal(t, "from:subject", kept)
	})

	t.Run("request list is case-insensitive", func(t *testing.T) {
		raw := "From: a@x\r\n"
		_, kept := RelaxedHeaders([]byte(raw), "FROM")
		assert.Equal(t, "from", kept)
	})
}

func TestUnfold(t *testing.T) {
	folded := "DKIM-Signature: v=1; a=rsa-sha256;\r\n b=AAAA"
	assert.Equal(t, "DKIM-Signature: v=1; a=rsa-sha256; b=AAAA", Unfold(folded))
}
