// Package logging configures structured JSON logging for the deployment
// engine and its CLI. Credentials never belong in log output: API keys and
// keystore passphrases are masked at the handler level regardless of which
// call site emitted them.
package logging

import (
	"log"
	"log/slog"
	"os"
	"strings"
)

// RedactedValue is the placeholder substituted for sensitive attribute values.
const RedactedValue = "[REDACTED]"

// sensitiveKeys are attribute keys whose values are masked unconditionally.
var sensitiveKeys = map[string]struct{}{
	"api_key":     {},
	"apikey":      {},
	"passphrase":  {},
	"password":    {},
	"secret":      {},
	"private_key": {},
}

// IsSensitive reports whether values under the given key must be masked.
func IsSensitive(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// Setup configures the default slog and standard library loggers to emit
// structured JSON with the service name and network environment attached,
// and returns the base logger. The minimum level is read from
// TRONFORGE_LOG_LEVEL (debug, info, warn, error); unset means info.
func Setup(service, network string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: levelFromEnv(),
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			case slog.LevelKey:
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			if IsSensitive(attr.Key) && strings.TrimSpace(attr.Value.String()) != "" {
				return slog.String(attr.Key, RedactedValue)
			}
			return attr
		},
	})

	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if network = strings.TrimSpace(network); network != "" {
		attrs = append(attrs, slog.String("network", network))
	}

	withArgs := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		withArgs = append(withArgs, attr)
	}

	base := slog.New(handler).With(withArgs...)
	slog.SetDefault(base)

	// Bridge the standard library logger so dependency log output stays JSON.
	stdBridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	stdBridge.SetFlags(0)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("TRONFORGE_LOG_LEVEL"))) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
