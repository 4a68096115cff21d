// Package message builds the RFC 5322 / MIME document that gets signed and
// delivered: headers, an optional multipart/alternative body, and optional
// attachments.
package message

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime/quotedprintable"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mailit-dev/directmail/internal/fold"
)

// AttachmentSource produces the raw bytes of an attachment on demand, so a
// caller can stream large files from disk instead of holding every
// attachment in memory up front.
type AttachmentSource interface {
	Bytes() ([]byte, error)
}

// BytesSource is an AttachmentSource backed by an in-memory byte slice.
type BytesSource []byte

func (b BytesSource) Bytes() ([]byte, error) { return b, nil }

// Attachment is one file to embed in the message.
type Attachment struct {
	Filename    string
	ContentType string
	Source      AttachmentSource
}

// Envelope describes the message to build and, separately, who it goes to on
// the wire. The Bcc list is part of delivery but must never appear in the
// rendered headers.
type Envelope struct {
	From        string
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
}

// AllRecipients returns To, Cc, and Bcc concatenated in that order, the
// order RCPT TO commands must be issued in.
func (e Envelope) AllRecipients() []string {
	all := make([]string, 0, len(e.To)+len(e.Cc)+len(e.Bcc))
	all = append(all, e.To...)
	all = append(all, e.Cc...)
	all = append(all, e.Bcc...)
	return all
}

// now is overridden in tests so the millisecond part of a Message-ID is
// fixed; the random hex part still differs on every call.
var now = time.Now

// NewMessageID builds a complete Message-ID of the form
// "<hex(16 random bytes).<millis>@<senderDomain>>", angle brackets included.
func NewMessageID(senderDomain string) string {
	return fmt.Sprintf("<%s.%d@%s>", newRandomHex(), now().UnixMilli(), senderDomain)
}

// newBoundary returns a fresh MIME boundary string. Two calls never collide
// in practice since each draws 16 fresh random bytes.
func newBoundary(prefix string) string {
	return prefix + "_" + newRandomHex()
}

// newRandomHex returns 16 random bytes hex-encoded, using uuid.New() purely
// as a source of 16 CSPRNG-drawn bytes.
func newRandomHex() string {
	id := uuid.New()
	return fmt.Sprintf("%x", id[:])
}

// Build renders the envelope into a complete RFC 5322 message with CRLF line
// endings. The From, To, Cc, Subject, MIME-Version, and Content-Type headers
// are written; per RFC 5321 convention the Bcc list is carried only in the
// RCPT TO step by the SMTP client and never appears here.
func Build(e Envelope) ([]byte, error) {
	senderDomain := domainOf(e.From)

	var buf bytes.Buffer
	buf.WriteString("Message-ID: " + NewMessageID(senderDomain) + "\r\n")
	buf.WriteString(fold.Fold("From: "+e.From, fold.DefaultWidth) + "\r\n")
	if len(e.To) > 0 {
		buf.WriteString(fold.Fold("To: "+strings.Join(e.To, ", "), fold.DefaultWidth) + "\r\n")
	}
	if len(e.Cc) > 0 {
		buf.WriteString(fold.Fold("Cc: "+strings.Join(e.Cc, ", "), fold.DefaultWidth) + "\r\n")
	}
	if e.Subject != "" {
		buf.WriteString(fold.Fold("Subject: "+encodeSubject(e.Subject), fold.DefaultWidth) + "\r\n")
	}
	buf.WriteString("MIME-Version: 1.0\r\n")

	bodyPart, err := buildBody(e)
	if err != nil {
		return nil, err
	}

	if len(e.Attachments) > 0 {
		mixedBoundary := newBoundary("mixed")
		buf.WriteString(fmt.Sprintf("Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mixedBoundary))
		buf.WriteString("--" + mixedBoundary + "\r\n")
		buf.Write(bodyPart)
		for _, a := range e.Attachments {
			part, err := buildAttachmentPart(a)
			if err != nil {
				return nil, err
			}
			buf.WriteString("\r\n--" + mixedBoundary + "\r\n")
			buf.Write(part)
		}
		buf.WriteString("\r\n--" + mixedBoundary + "--\r\n")
		return buf.Bytes(), nil
	}

	buf.Write(bodyPart)
	return buf.Bytes(), nil
}

// buildBody renders the content-type header plus body for the non-attachment
// part of the message: multipart/alternative when both text and HTML are
// present, otherwise a single part with the appropriate content type.
func buildBody(e Envelope) ([]byte, error) {
	var buf bytes.Buffer

	if e.HTMLBody != "" && e.TextBody != "" {
		altBoundary := newBoundary("alt")
		buf.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q\r\n\r\n", altBoundary))
		buf.WriteString("--" + altBoundary + "\r\n")
		buf.Write(textPart(e.TextBody))
		buf.WriteString("\r\n--" + altBoundary + "\r\n")
		buf.Write(htmlPart(e.HTMLBody))
		buf.WriteString("\r\n--" + altBoundary + "--\r\n")
		return buf.Bytes(), nil
	}

	if e.HTMLBody != "" {
		buf.Write(htmlPart(e.HTMLBody))
		return buf.Bytes(), nil
	}

	buf.Write(textPart(e.TextBody))
	return buf.Bytes(), nil
}

func textPart(body string) []byte {
	return encodedPart("text/plain; charset=utf-8", body)
}

func htmlPart(body string) []byte {
	return encodedPart("text/html; charset=utf-8", body)
}

func encodedPart(contentType, body string) []byte {
	var buf bytes.Buffer
	buf.WriteString("Content-Type: " + contentType + "\r\n")
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")

	var qp bytes.Buffer
	w := quotedprintable.NewWriter(&qp)
	_, _ = w.Write([]byte(body))
	_ = w.Close()
	buf.WriteString(crlfLines(qp.String()))
	return buf.Bytes()
}

func buildAttachmentPart(a Attachment) ([]byte, error) {
	raw, err := a.Source.Bytes()
	if err != nil {
		return nil, fmt.Errorf("reading attachment %q: %w", a.Filename, err)
	}

	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("Content-Type: %s; name=%q\r\n", a.ContentType, a.Filename))
	buf.WriteString("Content-Transfer-Encoding: base64\r\n")
	buf.WriteString(fmt.Sprintf("Content-Disposition: attachment; filename=%q\r\n\r\n", a.Filename))

	encoded := base64.StdEncoding.EncodeToString(raw)
	buf.WriteString(wrapBase64(encoded, 76))
	buf.WriteString("\r\n")
	return buf.Bytes(), nil
}

// wrapBase64 breaks a base64 blob into width-octet lines joined by bare
// CRLF; unlike header folding, body content carries no leading space on
// continuation lines.
func wrapBase64(s string, width int) string {
	var lines []string
	for len(s) > width {
		lines = append(lines, s[:width])
		s = s[width:]
	}
	lines = append(lines, s)
	return strings.Join(lines, "\r\n")
}

// crlfLines rewrites any bare LF line ending to CRLF, leaving existing CRLF
// pairs (which quotedprintable.Writer already emits) unchanged.
func crlfLines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}

func domainOf(mailbox string) string {
	if idx := strings.LastIndexByte(mailbox, '@'); idx >= 0 {
		return mailbox[idx+1:]
	}
	return mailbox
}

// encodeSubject applies RFC 2047 encoded-word encoding when the subject
// contains non-ASCII octets; otherwise it is returned unchanged.
func encodeSubject(subject string) string {
	for _, r := range subject {
		if r > 127 {
			return "=?UTF-8?B?" + base64.StdEncoding.EncodeToString([]byte(subject)) + "?="
		}
	}
	return subject
}
