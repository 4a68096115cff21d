// Package smtpclient drives one outbound SMTP session per MX host using
// net/textproto, which exposes the multi-line response buffering and DATA
// dot-stuffing this library's state machine needs to control directly.
// net/smtp.Client hides both behind a higher-level call that does not let a
// caller observe the raw transition table.
package smtpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"time"

	"github.com/mailit-dev/directmail/internal/mailerr"
)

// Config holds the per-session timeouts and identity used to drive a
// delivery attempt.
type Config struct {
	// HeloDomain is the domain announced in EHLO.
	HeloDomain string
	// ConnectTimeout bounds the TCP dial. Defaults to 30s.
	ConnectTimeout time.Duration
	// ReadTimeout bounds every read from the connection, reset before each
	// command. Defaults to 60s.
	ReadTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	return c
}

// Session drives one SMTP session to a single host through its full
// transition table: CONNECTED -> GREETED_PLAIN -> AWAITING_TLS ->
// TLS_CONNECTED -> SENDING_ENVELOPE -> SENDING_DATA -> CLOSING.
type Session struct {
	cfg          Config
	host         string
	conn         net.Conn
	text         *textproto.Conn
	capabilities []string
}

// Dial connects to host:25, reads the greeting, and issues EHLO, returning a
// Session ready for StartTLS. The connection is destroyed and an error
// returned if the greeting is not a 2xx reply (only the reply class is
// checked, not the exact 220 code) or the dial itself fails or times out.
func Dial(ctx context.Context, host string, cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()

	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, "25"))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, mailerr.New(mailerr.Timeout, host, err)
		}
		return nil, mailerr.New(mailerr.Connect, host, err)
	}

	s := &Session{cfg: cfg, host: host, conn: conn, text: textproto.NewConn(conn)}

	if _, _, err := s.readResponse(220); err != nil {
		s.destroy()
		return nil, err
	}

	if err := s.ehlo(); err != nil {
		s.destroy()
		return nil, err
	}

	return s, nil
}

// StartTLS checks the capabilities advertised by the most recent EHLO for
// STARTTLS, performs the upgrade, and re-issues EHLO over the encrypted
// connection. If STARTTLS was not offered, the session fails with a
// TlsRequiredError and must be discarded without ever reaching MAIL FROM.
// This library never sends in the clear.
func (s *Session) StartTLS() error {
	if !hasCapability(s.capabilities, "STARTTLS") {
		return mailerr.New(mailerr.TLSRequired, s.host, fmt.Errorf("STARTTLS not offered"))
	}

	if err := s.text.PrintfLine("STARTTLS"); err != nil {
		return mailerr.New(mailerr.Connect, s.host, err)
	}
	if _, _, err := s.readResponse(220); err != nil {
		return err
	}

	tlsConn := tls.Client(s.conn, &tls.Config{ServerName: s.host})
	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		return mailerr.New(mailerr.TLSHandshake, s.host, err)
	}

	s.conn = tlsConn
	s.text = textproto.NewConn(tlsConn)

	return s.ehlo()
}

// EHLOCapabilities returns the capability lines of the most recent EHLO
// response, for StartTLS's capability check.
func (s *Session) EHLOCapabilities() []string { return s.capabilities }

// Deliver issues MAIL FROM, RCPT TO for every recipient in order, DATA, the
// dot-stuffed message body, and QUIT, in that sequence. A RCPT TO or DATA
// response of 5xx or 4xx aborts immediately: this library delivers a group
// to all its recipients or none, it does not track partial per-recipient
// failures within a group.
func (s *Session) Deliver(from string, recipients []string, message []byte) error {
	if err := s.command(fmt.Sprintf("MAIL FROM:<%s>", from), 250); err != nil {
		return err
	}

	for _, rcpt := range recipients {
		if err := s.command(fmt.Sprintf("RCPT TO:<%s>", rcpt), 250); err != nil {
			return err
		}
	}

	if err := s.command("DATA", 354); err != nil {
		return err
	}

	dw := s.text.DotWriter()
	if _, err := dw.Write(message); err != nil {
		_ = dw.Close()
		return mailerr.New(mailerr.Connect, s.host, err)
	}
	if err := dw.Close(); err != nil {
		return mailerr.New(mailerr.Connect, s.host, err)
	}

	if _, _, err := s.readResponse(250); err != nil {
		return err
	}

	return s.command("QUIT", 221)
}

// Close tears down the underlying connection unconditionally.
func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) destroy() { _ = s.conn.Close() }

func (s *Session) ehlo() error {
	if err := s.text.PrintfLine("EHLO %s", s.cfg.HeloDomain); err != nil {
		return mailerr.New(mailerr.Connect, s.host, err)
	}
	_, lines, err := s.readMultiline(250)
	if err != nil {
		return err
	}
	s.capabilities = lines
	return nil
}

func (s *Session) command(line string, wantCode int) error {
	if err := s.text.PrintfLine("%s", line); err != nil {
		return mailerr.New(mailerr.Connect, s.host, err)
	}
	_, _, err := s.readResponse(wantCode)
	return err
}

// readResponse reads a (possibly multi-line) SMTP reply via
// textproto.Reader.ReadResponse, which natively buffers "xxx-" continuation
// lines until the "xxx " terminator line before returning. It classifies
// non-2xx/3xx codes per the state table: >=500 is permanent, 4xx is
// transient.
func (s *Session) readResponse(wantCode int) (int, string, error) {
	code, msg, lines, err := s.readMultilineRaw()
	if err != nil {
		return code, msg, err
	}
	_ = lines
	if code >= 500 || (code >= 400 && code < 500) {
		return code, msg, mailerr.FromSMTPCode(code, s.host, msg)
	}
	if code/100 != wantCode/100 {
		return code, msg, mailerr.New(mailerr.Connect, s.host, fmt.Errorf("unexpected response %d %s", code, msg))
	}
	return code, msg, nil
}

func (s *Session) readMultiline(wantCode int) (int, []string, error) {
	code, msg, lines, err := s.readMultilineRaw()
	if err != nil {
		return code, nil, err
	}
	if code >= 500 || (code >= 400 && code < 500) {
		return code, nil, mailerr.FromSMTPCode(code, s.host, msg)
	}
	return code, lines, nil
}

func (s *Session) readMultilineRaw() (code int, msg string, lines []string, err error) {
	if rt := s.cfg.ReadTimeout; rt > 0 {
		if dErr := s.conn.SetReadDeadline(timeNow().Add(rt)); dErr != nil {
			return 0, "", nil, mailerr.New(mailerr.Connect, s.host, dErr)
		}
	}

	// expectCode 0 tells ReadResponse to accept any code; we classify the
	// result ourselves, so the only errors it can return here are transport
	// or parse failures, not SMTP-level rejections.
	code, msg, rerr := s.text.ReadResponse(0)
	if rerr != nil {
		if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
			return code, msg, nil, mailerr.New(mailerr.Timeout, s.host, rerr)
		}
		return code, msg, nil, mailerr.New(mailerr.Connect, s.host, rerr)
	}

	return code, msg, strings.Split(msg, "\n"), nil
}

func hasCapability(capabilities []string, name string) bool {
	for _, c := range capabilities {
		if strings.EqualFold(strings.TrimSpace(c), name) || strings.HasPrefix(strings.ToUpper(strings.TrimSpace(c)), name+" ") {
			return true
		}
	}
	return false
}

// timeNow is overridden in tests.
var timeNow = time.Now
