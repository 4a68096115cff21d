// Package config loads the configuration surface this library actually
// needs: SMTP session timeouts, the DKIM signing identity, DNS resolution,
// logging, and metrics. Settings layer through koanf in order: built-in
// defaults, then an optional YAML file, then environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds the complete configuration for a direct delivery sender.
type Config struct {
	SMTP    SMTPConfig    `mapstructure:"smtp"`
	DKIM    DKIMConfig    `mapstructure:"dkim"`
	DNS     DNSConfig     `mapstructure:"dns"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// SMTPConfig holds outbound SMTP session settings.
type SMTPConfig struct {
	HELODomain     string        `mapstructure:"helo_domain"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
}

// DKIMConfig holds the DKIM signing identity. PrivateKeyPEM is the RSA
// private key in PEM form; signing is disabled when it is empty.
type DKIMConfig struct {
	Domain        string `mapstructure:"domain"`
	Selector      string `mapstructure:"selector"`
	PrivateKeyPEM string `mapstructure:"private_key_pem"`
}

// DNSConfig holds MX resolution settings.
type DNSConfig struct {
	Resolver string        `mapstructure:"resolver"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig holds the Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// defaults returns the default configuration as a flat map using koanf's "."
// delimiter for nested keys.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"smtp.helo_domain":     "",
		"smtp.connect_timeout": "30s",
		"smtp.read_timeout":    "60s",

		"dkim.domain":           "",
		"dkim.selector":         "",
		"dkim.private_key_pem":  "",

		"dns.resolver": "system",
		"dns.timeout":  "10s",

		"logging.level":  "info",
		"logging.format": "json",

		"metrics.enabled": false,
		"metrics.addr":    ":9090",
	}
}

// Load reads the configuration from defaults, an optional YAML file, and
// environment variables (prefix MAILER_). Later sources override earlier
// ones.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// MAILER_SMTP_HELO_DOMAIN -> smtp.helo_domain
	if err := k.Load(env.Provider("MAILER_", ".", func(s string) string {
		return strings.Replace(
			strings.ToLower(strings.TrimPrefix(s, "MAILER_")),
			"_", ".", 1,
		)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env variables: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "mapstructure",
	}); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return &cfg, nil
}
