package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Config represents the main Tether configuration
type Config struct {
	// Proxy connection
	Proxy ProxyConfig `json:"proxy" mapstructure:"proxy"`

	// Reconnect backoff
	Reconnect ReconnectConfig `json:"reconnect" mapstructure:"reconnect"`

	// Keep-alive
	KeepAlive KeepAliveConfig `json:"keep_alive" mapstructure:"keep_alive"`

	// HTTP execution bridge
	Bridge BridgeConfig `json:"bridge" mapstructure:"bridge"`

	// Local status server
	Status StatusConfig `json:"status" mapstructure:"status"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ProxyConfig holds relay proxy connection settings
type ProxyConfig struct {
	URL       string `json:"url" mapstructure:"url"`
	AuthToken string `json:"auth_token" mapstructure:"auth_token"`
}

// ReconnectConfig holds reconnect backoff settings
type ReconnectConfig struct {
	FloorSeconds   int `json:"floor_seconds" mapstructure:"floor_seconds"`
	CeilingSeconds int `json:"ceiling_seconds" mapstructure:"ceiling_seconds"`
	JitterMs       int `json:"jitter_ms" mapstructure:"jitter_ms"`
}

// KeepAliveConfig holds keep-alive settings
type KeepAliveConfig struct {
	IntervalSeconds int `json:"interval_seconds" mapstructure:"interval_seconds"`
}

// BridgeConfig holds HTTP execution bridge settings
type BridgeConfig struct {
	// TimeoutSeconds bounds a single upstream call. Zero means no timeout;
	// streamed responses stay open as long as the upstream keeps sending.
	TimeoutSeconds      int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	SensitivePathSuffix string `json:"sensitive_path_suffix" mapstructure:"sensitive_path_suffix"`
	CredentialParam     string `json:"credential_param" mapstructure:"credential_param"`
}

// StatusConfig holds local status server settings
type StatusConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Host    string `json:"host" mapstructure:"host"`
	Port    int    `json:"port" mapstructure:"port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Proxy: ProxyConfig{},
		Reconnect: ReconnectConfig{
			FloorSeconds:   1,
			CeilingSeconds: 30,
			JitterMs:       500,
		},
		KeepAlive: KeepAliveConfig{
			IntervalSeconds: 25,
		},
		Bridge: BridgeConfig{
			TimeoutSeconds:      0,
			SensitivePathSuffix: "/models",
			CredentialParam:     "key",
		},
		Status: StatusConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    7070,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		DataDir: "",
	}
}

// String returns a JSON representation of the config with credentials masked
func (c *Config) String() string {
	masked := *c
	if masked.Proxy.AuthToken != "" {
		masked.Proxy.AuthToken = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(&masked, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Proxy.URL != "" {
		if !strings.HasPrefix(c.Proxy.URL, "ws://") && !strings.HasPrefix(c.Proxy.URL, "wss://") {
			return fmt.Errorf("proxy url must use ws:// or wss:// scheme, got %s", c.Proxy.URL)
		}
	}

	if c.Reconnect.FloorSeconds <= 0 {
		return fmt.Errorf("reconnect floor_seconds must be positive, got %d", c.Reconnect.FloorSeconds)
	}
	if c.Reconnect.CeilingSeconds < c.Reconnect.FloorSeconds {
		return fmt.Errorf("reconnect ceiling_seconds must be >= floor_seconds")
	}
	if c.Reconnect.JitterMs < 0 {
		return fmt.Errorf("reconnect jitter_ms must be >= 0, got %d", c.Reconnect.JitterMs)
	}

	if c.KeepAlive.IntervalSeconds <= 0 {
		return fmt.Errorf("keep_alive interval_seconds must be positive, got %d", c.KeepAlive.IntervalSeconds)
	}

	if c.Bridge.TimeoutSeconds < 0 {
		return fmt.Errorf("bridge timeout_seconds must be >= 0, got %d", c.Bridge.TimeoutSeconds)
	}

	if c.Status.Enabled {
		if c.Status.Port <= 0 || c.Status.Port > 65535 {
			return fmt.Errorf("status port must be between 1 and 65535, got %d", c.Status.Port)
		}
	}

	return nil
}
