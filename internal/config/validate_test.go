package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		SMTP: SMTPConfig{HELODomain: "mail.example.com"},
		DKIM: DKIMConfig{Domain: "example.com", Selector: "default"},
	}
}

func TestValidateValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateMissingHELODomain(t *testing.T) {
	cfg := validConfig()
	cfg.SMTP.HELODomain = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp.helo_domain is required")
}

func TestValidateDKIMSelectorWithoutDomain(t *testing.T) {
	cfg := validConfig()
	cfg.DKIM.Domain = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dkim.domain is required when dkim.selector is set")
}

func TestValidateDKIMDomainWithoutSelector(t *testing.T) {
	cfg := validConfig()
	cfg.DKIM.Selector = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dkim.selector is required when dkim.domain is set")
}

func TestValidateDKIMOptionalWhenBothEmpty(t *testing.T) {
	cfg := validConfig()
	cfg.DKIM.Domain = ""
	cfg.DKIM.Selector = ""
	assert.NoError(t, cfg.Validate())
}

func TestValidateMultipleErrors(t *testing.T) {
	cfg := &Config{DKIM: DKIMConfig{Selector: "default"}}
	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "smtp.helo_domain is required")
	assert.Contains(t, msg, "dkim.domain is required when dkim.selector is set")
}
