// Package orchestrator drives one send end to end: build the message, sign
// it once, resolve recipient groups, and deliver to each group's MX host in
// sequence, failing fast on the first group that does not reach QUIT.
package orchestrator

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mailit-dev/directmail/internal/bounce"
	"github.com/mailit-dev/directmail/internal/dkim"
	"github.com/mailit-dev/directmail/internal/mailerr"
	"github.com/mailit-dev/directmail/internal/message"
	"github.com/mailit-dev/directmail/internal/mx"
	"github.com/mailit-dev/directmail/internal/observability"
	"github.com/mailit-dev/directmail/internal/smtpclient"
)

// DKIMConfig carries the signing identity. A nil PrivateKey disables
// signing.
type DKIMConfig struct {
	Domain     string
	Selector   string
	PrivateKey *rsa.PrivateKey
}

// Config holds everything a Sender needs beyond the per-call envelope.
type Config struct {
	HeloDomain     string
	DKIM           DKIMConfig
	Resolver       *mx.Resolver
	CircuitBreaker *mx.CircuitBreaker
	SMTP           smtpclient.Config
	Logger         *slog.Logger
}

// Sender is the top-level entry point: build once, sign once, then deliver
// to every recipient group.
type Sender struct {
	cfg Config
}

// New builds a Sender. A nil Logger falls back to slog.Default().
func New(cfg Config) *Sender {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CircuitBreaker == nil {
		cfg.CircuitBreaker = mx.NewCircuitBreaker(0, 0)
	}
	return &Sender{cfg: cfg}
}

// Send builds the envelope into a signed RFC 5322 message and delivers it to
// every recipient, grouped by MX host, one session per group, in sequence.
// It fails fast: the first group whose session does not reach a successful
// QUIT aborts the whole send, and remaining groups are never attempted.
func (s *Sender) Send(ctx context.Context, env message.Envelope) error {
	recipients := env.AllRecipients()
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients specified")
	}

	raw, err := message.Build(env)
	if err != nil {
		return fmt.Errorf("building message: %w", err)
	}

	signed, err := s.sign(raw)
	if err != nil {
		return err
	}

	ctx = observability.WithMessageID(ctx, messageIDOf(signed))

	groups, err := mx.ResolveGroups(ctx, s.cfg.Resolver, recipients)
	if err != nil {
		return err
	}

	for _, group := range groups {
		groupCtx := observability.WithMXHost(ctx, group.Host)
		if err := s.deliverGroup(groupCtx, group, env.From, signed); err != nil {
			s.cfg.Logger.WarnContext(groupCtx, "delivery failed, aborting remaining groups",
				"domain", group.Domain, "error", err)
			return err
		}
	}

	return nil
}

// messageIDOf extracts the Message-ID header value from a built message, for
// log correlation across the several independent SMTP sessions one send can
// open.
func messageIDOf(raw []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		if rest, ok := strings.CutPrefix(line, "Message-ID: "); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

func (s *Sender) sign(raw []byte) ([]byte, error) {
	if s.cfg.DKIM.PrivateKey == nil {
		return raw, nil
	}

	value, err := dkim.Sign(raw, dkim.Config{
		Domain:     s.cfg.DKIM.Domain,
		Selector:   s.cfg.DKIM.Selector,
		PrivateKey: s.cfg.DKIM.PrivateKey,
	})
	if err != nil {
		return nil, mailerr.New(mailerr.DKIMSign, s.cfg.DKIM.Domain, err)
	}

	return append([]byte("DKIM-Signature: "+value+"\r\n"), raw...), nil
}

func (s *Sender) deliverGroup(ctx context.Context, group mx.Group, from string, signed []byte) error {
	if !s.cfg.CircuitBreaker.Allow(group.Host) {
		return mailerr.New(mailerr.Connect, group.Host, fmt.Errorf("circuit open, skipping"))
	}

	smtpCfg := s.cfg.SMTP
	smtpCfg.HeloDomain = s.cfg.HeloDomain

	session, err := smtpclient.Dial(ctx, group.Host, smtpCfg)
	if err != nil {
		s.cfg.CircuitBreaker.RecordFailure(group.Host)
		return annotateBounce(err)
	}
	defer func() { _ = session.Close() }()

	if err := session.StartTLS(); err != nil {
		s.cfg.CircuitBreaker.RecordFailure(group.Host)
		return annotateBounce(err)
	}

	if err := session.Deliver(from, group.Recipients, signed); err != nil {
		s.cfg.CircuitBreaker.RecordFailure(group.Host)
		return annotateBounce(err)
	}

	s.cfg.CircuitBreaker.RecordSuccess(group.Host)
	s.cfg.Logger.InfoContext(ctx, "delivered", "domain", group.Domain, "recipients", len(group.Recipients))
	return nil
}

// bounceError annotates an SMTP failure with its bounce classification
// while still unwrapping to the original mailerr.Error, so errors.Is/As
// checks against mailerr kinds keep working on the returned error.
type bounceError struct {
	info bounce.Info
	err  error
}

func (e *bounceError) Error() string {
	return fmt.Sprintf("%s bounce: %v", e.info.Type, e.err)
}

func (e *bounceError) Unwrap() error { return e.err }

// annotateBounce classifies an SMTP permanent/transient failure into a
// hard/soft/complaint bounce and wraps it, so a caller deciding whether to
// retry later gets more than the bare 4xx/5xx split (a 552 quota failure,
// for instance, is worth retrying despite its 5xx class).
func annotateBounce(err error) error {
	var merr *mailerr.Error
	if !errors.As(err, &merr) {
		return err
	}
	if merr.Kind != mailerr.SMTPPermanent && merr.Kind != mailerr.SMTPTransient {
		return err
	}
	return &bounceError{info: bounce.Classify(merr.Code, merr.Message), err: err}
}

// BounceInfo extracts the bounce classification from an error returned by
// Send, if the failure came from an SMTP reply rather than, say, a DNS or
// connection error.
func BounceInfo(err error) (bounce.Info, bool) {
	var berr *bounceError
	if errors.As(err, &berr) {
		return berr.info, true
	}
	return bounce.Info{}, false
}
