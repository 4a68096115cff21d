package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for required fields and invalid values.
// It collects all failures into a single error so the operator sees every
// problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.SMTP.HELODomain == "" {
		errs = append(errs, "smtp.helo_domain is required")
	}

	if c.DKIM.Domain != "" && c.DKIM.Selector == "" {
		errs = append(errs, "dkim.selector is required when dkim.domain is set")
	}
	if c.DKIM.Selector != "" && c.DKIM.Domain == "" {
		errs = append(errs, "dkim.domain is required when dkim.selector is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
