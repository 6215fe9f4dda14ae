package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNew_RedactsSecretAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := New("info", &buf)

	l.Info("connecting", "api_key", "sk-1234567890abcdef", "host", "http://qdrant:6333", "auth", "Bearer abcdefghijkl")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid json: %v (%s)", err, buf.String())
	}
	if rec["api_key"] != "sk-1***cdef" {
		t.Errorf("api_key not redacted: %v", rec["api_key"])
	}
	if rec["host"] != "http://qdrant:6333" {
		t.Errorf("host should be untouched: %v", rec["host"])
	}
	if rec["auth"] != "Bearer abcd***ijkl" {
		t.Errorf("bearer value not redacted: %v", rec["auth"])
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := New("error", &buf)
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at error level, got %s", buf.String())
	}
	l.Error("shown")
	if buf.Len() == 0 {
		t.Error("error should be logged")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRedact_Short(t *testing.T) {
	if got := Redact("abc"); got != "***" {
		t.Errorf("got %q", got)
	}
}
