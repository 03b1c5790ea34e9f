package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateProxyURL validates a relay proxy URL
func (v *Validator) ValidateProxyURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("proxy url cannot be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid proxy url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("proxy url must use ws:// or wss:// scheme, got %s", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("proxy url has no host")
	}

	return nil
}

// ValidateAuthToken validates an auth token
func (v *Validator) ValidateAuthToken(token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("auth token cannot be empty")
	}
	return nil
}

// ValidatePort validates a TCP port number
func (v *Validator) ValidatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateReconnect validates reconnect backoff settings
func (v *Validator) ValidateReconnect(cfg ReconnectConfig) error {
	if cfg.FloorSeconds <= 0 {
		return fmt.Errorf("reconnect floor_seconds must be positive, got %d", cfg.FloorSeconds)
	}
	if cfg.CeilingSeconds < cfg.FloorSeconds {
		return fmt.Errorf("reconnect ceiling_seconds (%d) must be >= floor_seconds (%d)", cfg.CeilingSeconds, cfg.FloorSeconds)
	}
	if cfg.JitterMs < 0 {
		return fmt.Errorf("reconnect jitter_ms must be >= 0, got %d", cfg.JitterMs)
	}
	return nil
}

// ValidateKeepAlive validates keep-alive settings
func (v *Validator) ValidateKeepAlive(cfg KeepAliveConfig) error {
	if cfg.IntervalSeconds <= 0 {
		return fmt.Errorf("keep_alive interval_seconds must be positive, got %d", cfg.IntervalSeconds)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if cfg.Proxy.URL != "" {
		if err := v.ValidateProxyURL(cfg.Proxy.URL); err != nil {
			errors = append(errors, err)
		}
	}

	if err := v.ValidateReconnect(cfg.Reconnect); err != nil {
		errors = append(errors, err)
	}

	if err := v.ValidateKeepAlive(cfg.KeepAlive); err != nil {
		errors = append(errors, err)
	}

	if cfg.Bridge.TimeoutSeconds < 0 {
		errors = append(errors, fmt.Errorf("bridge timeout_seconds must be >= 0"))
	}

	if cfg.Status.Enabled {
		if err := v.ValidatePort(cfg.Status.Port); err != nil {
			errors = append(errors, fmt.Errorf("status server: %w", err))
		}
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
