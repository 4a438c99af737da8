package obs

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                 "/",
		"/metrics":                         "/metrics",
		"/api/device-tokens/abc/revoke":    "/api/device-tokens/:id/revoke",
		"/api/device-tokens":               "/api/device-tokens",
		"/api/device-tokens/abc/extra":     "/api/device-tokens/abc/extra",
		"/api/sync/upload":                 "/api/sync/upload",
		"/api/sync/status?since=yesterday": "/api/sync/status",
		"/api/surveys/submit":              "/api/surveys/submit",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nopWriter{})
	SetLevel("info")

	Logger().Debug("hidden")
	Logger().Info("visible", "k", "v")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "visible" || entry["k"] != "v" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
