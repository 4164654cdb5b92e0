// Package config defines the runtime configuration of the policy server and the audit tool.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration. Keys mirror the viper/YAML layout.
type Config struct {
	Server       ServerConfig    `mapstructure:"server"`
	SettingsFile string          `mapstructure:"settings_file"`
	Log          LogConfig       `mapstructure:"log"`
	Telemetry    TelemetryConfig `mapstructure:"telemetry"`
	Audit        AuditConfig     `mapstructure:"audit"`
}

type ServerConfig struct {
	// Addr is the listen address of the webhook server.
	Addr string `mapstructure:"addr"`
	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string `mapstructure:"tls_cert"`
	TLSKey  string `mapstructure:"tls_key"`
	// ReadTimeout bounds reading a request and handling it.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// Metrics exposes /metrics.
	Metrics bool `mapstructure:"metrics"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TelemetryConfig struct {
	// Endpoint is the OTLP/HTTP endpoint. Empty falls back to OTEL_EXPORTER_OTLP_ENDPOINT.
	Endpoint string `mapstructure:"endpoint"`
	Disabled bool   `mapstructure:"disabled"`
}

type AuditConfig struct {
	// Namespace restricts the audit; empty means all namespaces.
	Namespace  string `mapstructure:"namespace"`
	Kubeconfig string `mapstructure:"kubeconfig"`
	// Output is a local directory or an s3://bucket/prefix URL. Empty disables export.
	Output string `mapstructure:"output"`
	Format string `mapstructure:"format"`
}

// Defaults.
const (
	DefaultAddr         = ":3000"
	DefaultReadTimeout  = 10 * time.Second
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "json"
	DefaultReportFormat = "json"
)

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:        DefaultAddr,
			ReadTimeout: DefaultReadTimeout,
			Metrics:     true,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Audit: AuditConfig{
			Format: DefaultReportFormat,
		},
	}
}

// Validate checks values viper cannot type-check.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return fmt.Errorf("server.tls_cert and server.tls_key must be set together")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive, got %s", c.Server.ReadTimeout)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log.format %q", c.Log.Format)
	}
	switch c.Audit.Format {
	case "json", "yaml", "csv":
	default:
		return fmt.Errorf("unknown audit.format %q", c.Audit.Format)
	}
	return nil
}

// TLS reports whether the server should serve HTTPS.
func (c ServerConfig) TLS() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}
