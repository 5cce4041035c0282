package config

import "fmt"

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	var errs []string

	if c.Ephemeral.MaxEphemeralSpaces <= 0 {
		errs = append(errs, "ephemeral.max_ephemeral_spaces must be positive")
	}
	if c.Ephemeral.MaxSnapshots <= 0 {
		errs = append(errs, "ephemeral.max_snapshots must be positive")
	}

	if c.Permission.MaxConcurrentGrants <= 0 {
		errs = append(errs, "permission.max_concurrent_grants must be positive")
	}
	if c.Permission.MaxConcurrentEvaluations <= 0 {
		errs = append(errs, "permission.max_concurrent_evaluations must be positive")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("invalid logging.format %q: must be \"text\" or \"json\"", c.Logging.Format))
	}

	for _, d := range c.Audit.Destinations {
		switch d {
		case "file", "system", "syslog", "network", "database":
		default:
			errs = append(errs, fmt.Sprintf("invalid audit destination %q", d))
		}
	}

	if len(errs) > 0 {
		msg := errs[0]
		for _, e := range errs[1:] {
			msg += "; " + e
		}
		return fmt.Errorf("%s", msg)
	}
	return nil
}
