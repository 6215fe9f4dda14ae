// Package logging builds the structured JSON logger shared by every component.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

var secretKeys = []string{"key", "token", "secret", "password", "authorization", "bearer"}

// New returns a JSON slog.Logger writing to w at the given level
// ("debug", "info", "warn", "error"; anything else means info).
// Attributes whose key looks like a credential are redacted.
func New(level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: redactAttr,
	})
	return slog.New(h)
}

// ParseLevel maps a level name onto slog levels.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// OrDefault returns l, or slog.Default() when l is nil.
func OrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindString {
		return a
	}
	lower := strings.ToLower(a.Key)
	for _, p := range secretKeys {
		if strings.Contains(lower, p) {
			return slog.String(a.Key, Redact(a.Value.String()))
		}
	}
	s := a.Value.String()
	if strings.HasPrefix(strings.ToLower(s), "bearer ") {
		return slog.String(a.Key, "Bearer "+Redact(s[len("bearer "):]))
	}
	return a
}

// Redact keeps the first and last four characters of long secrets.
func Redact(s string) string {
	n := len(s)
	if n <= 8 {
		return "***"
	}
	return fmt.Sprintf("%s***%s", s[:4], s[n-4:])
}
