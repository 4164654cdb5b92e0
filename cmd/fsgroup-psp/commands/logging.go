package commands

import (
	"io"
	"log/slog"
	"strings"

	"github.com/DrSkyle/fsgroup-psp/pkg/config"
)

var sensitiveKeys = map[string]bool{
	"password": true, "access_key": true, "token": true, "secret": true,
	"api_key": true, "private_key": true, "auth_token": true, "tls_key": true,
	"certificate": true, "credential": true, "connection_string": true,
}

func redactSensitiveData(groups []string, a slog.Attr) slog.Attr {
	if sensitiveKeys[a.Key] {
		return slog.Attr{
			Key:   a.Key,
			Value: slog.StringValue("[REDACTED]"),
		}
	}
	return a
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: redactSensitiveData,
	}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
