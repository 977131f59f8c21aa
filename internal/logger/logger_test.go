package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew_Production(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "production")

	log.Debug("hidden")
	log.Info("script submitted", "script_id", "abc")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected only the info line, got %d lines: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", lines[0], err)
	}
	if entry["msg"] != "script submitted" || entry["script_id"] != "abc" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestNew_Development(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "development")

	log.Debug("visible", "key", "value")

	out := buf.String()
	if !strings.Contains(out, "msg=visible") || !strings.Contains(out, "key=value") {
		t.Errorf("expected text debug output, got %q", out)
	}
	if !strings.Contains(out, "source=") {
		t.Errorf("expected source location in development output, got %q", out)
	}
}
