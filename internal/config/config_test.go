package config

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, e := range os.Environ() {
		if strings.HasPrefix(e, "MAILER_") {
			if idx := strings.IndexByte(e, '='); idx > 0 {
				key := e[:idx]
				t.Setenv(key, os.Getenv(key))
				_ = os.Unsetenv(key)
			}
		}
	}

	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "", cfg.SMTP.HELODomain)
	assert.Equal(t, "30s", cfg.SMTP.ConnectTimeout.String())
	assert.Equal(t, "1m0s", cfg.SMTP.ReadTimeout.String())

	assert.Equal(t, "", cfg.DKIM.Domain)
	assert.Equal(t, "", cfg.DKIM.Selector)

	assert.Equal(t, "system", cfg.DNS.Resolver)
	assert.Equal(t, "10s", cfg.DNS.Timeout.String())

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MAILER_DKIM_DOMAIN", "example.com")
	t.Setenv("MAILER_DKIM_SELECTOR", "custom")
	t.Setenv("MAILER_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "example.com", cfg.DKIM.Domain)
	assert.Equal(t, "custom", cfg.DKIM.Selector)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Unrelated defaults remain untouched.
	assert.Equal(t, "system", cfg.DNS.Resolver)
}

func TestLoadInvalidConfigFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "loading config file")
}
