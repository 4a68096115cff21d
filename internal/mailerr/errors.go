// Package mailerr defines the typed error taxonomy surfaced by the direct
// delivery engine, so callers can branch on failure kind with errors.As
// instead of parsing messages.
package mailerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the failure categories a send can end in.
type Kind string

const (
	MXResolution  Kind = "mx_resolution"
	Connect       Kind = "connect"
	TLSRequired   Kind = "tls_required"
	TLSHandshake  Kind = "tls_handshake"
	Timeout       Kind = "timeout"
	SMTPPermanent Kind = "smtp_permanent"
	SMTPTransient Kind = "smtp_transient"
	DKIMSign      Kind = "dkim_sign"
	Attachment    Kind = "attachment"
)

// Error wraps an underlying cause with the host or domain it occurred on and
// a Kind so callers can classify it without string matching.
type Error struct {
	Kind Kind
	Op   string // mx host, domain, or other context identifying where this occurred
	Err  error

	// Code and Message carry the raw SMTP reply for SMTPPermanent and
	// SMTPTransient errors, so a caller can run its own classification
	// (e.g. bounce.Classify) without re-parsing Err's text.
	Code    int
	Message string
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is a mailerr.Error of the given kind, walking the
// error chain.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// FromSMTPCode classifies an SMTP reply code into a permanent (5xx) or
// transient (4xx) error. It returns nil for codes outside both ranges.
func FromSMTPCode(code int, op, message string) error {
	switch {
	case code >= 500 && code < 600:
		e := New(SMTPPermanent, op, fmt.Errorf("%d %s", code, message))
		e.Code, e.Message = code, message
		return e
	case code >= 400 && code < 500:
		e := New(SMTPTransient, op, fmt.Errorf("%d %s", code, message))
		e.Code, e.Message = code, message
		return e
	default:
		return nil
	}
}
