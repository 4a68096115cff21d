// Command sendmail delivers a single email straight to its recipients' MX
// hosts, without a relay. It exists to exercise the library end to end.
package main

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mailit-dev/directmail/internal/config"
	"github.com/mailit-dev/directmail/internal/message"
	"github.com/mailit-dev/directmail/internal/mx"
	"github.com/mailit-dev/directmail/internal/observability"
	"github.com/mailit-dev/directmail/internal/orchestrator"
	"github.com/mailit-dev/directmail/internal/smtpclient"
)

type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }
func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	configPath := flag.String("config", "", "config file path (YAML)")
	from := flag.String("from", "", "envelope and header From address")
	subject := flag.String("subject", "", "message subject")
	textBody := flag.String("text", "", "plain text body")
	htmlBody := flag.String("html", "", "HTML body")
	var to, cc, bcc stringList
	flag.Var(&to, "to", "recipient address, repeatable")
	flag.Var(&cc, "cc", "Cc address, repeatable")
	flag.Var(&bcc, "bcc", "Bcc address, repeatable")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	if *from == "" || len(to) == 0 {
		fmt.Fprintln(os.Stderr, "usage: sendmail -from a@example.com -to b@example.org [flags]")
		os.Exit(1)
	}

	dkimCfg, err := buildDKIMConfig(cfg.DKIM)
	if err != nil {
		logger.Error("loading DKIM key", "error", err)
		os.Exit(1)
	}

	sender := orchestrator.New(orchestrator.Config{
		HeloDomain: cfg.SMTP.HELODomain,
		DKIM:       dkimCfg,
		Resolver:   mx.NewResolver(cfg.DNS.Resolver, cfg.DNS.Timeout),
		SMTP: smtpclient.Config{
			ConnectTimeout: cfg.SMTP.ConnectTimeout,
			ReadTimeout:    cfg.SMTP.ReadTimeout,
		},
		Logger: logger,
	})

	env := message.Envelope{
		From:     *from,
		To:       to,
		Cc:       cc,
		Bcc:      bcc,
		Subject:  *subject,
		TextBody: *textBody,
		HTMLBody: *htmlBody,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := sender.Send(ctx, env); err != nil {
		logger.Error("send failed", "error", err)
		os.Exit(1)
	}

	logger.Info("send complete")
}

func buildDKIMConfig(cfg config.DKIMConfig) (orchestrator.DKIMConfig, error) {
	out := orchestrator.DKIMConfig{Domain: cfg.Domain, Selector: cfg.Selector}
	if cfg.PrivateKeyPEM == "" {
		return out, nil
	}

	block, _ := pem.Decode([]byte(cfg.PrivateKeyPEM))
	if block == nil {
		return out, fmt.Errorf("dkim.private_key_pem is not valid PEM")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		out.PrivateKey = key
		return out, nil
	}

	keyIfc, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return out, fmt.Errorf("parsing DKIM private key: %w", err)
	}
	rsaKey, ok := keyIfc.(*rsa.PrivateKey)
	if !ok {
		return out, fmt.Errorf("dkim.private_key_pem must be an RSA key")
	}
	out.PrivateKey = rsaKey
	return out, nil
}

// setupLogger creates a slog.Logger based on the logging config, tagged with
// the active MX host and message ID via observability.DeliveryHandler.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(observability.NewDeliveryHandler(handler))
}
