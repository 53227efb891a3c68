package jsonlog

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelInfo)

	l.PrintInfo("catalog loaded", map[string]string{"books": "42"})
	l.PrintError(errors.New("boom"), nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines; got %d", len(lines))
	}

	var entry struct {
		Level      string            `json:"level"`
		Message    string            `json:"message"`
		Properties map[string]string `json:"properties"`
		Trace      string            `json:"trace"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatal(err)
	}
	if entry.Level != "INFO" {
		t.Errorf("expected INFO level; got %s", entry.Level)
	}
	if entry.Message != "catalog loaded" {
		t.Errorf("unexpected message %q", entry.Message)
	}
	if entry.Properties["books"] != "42" {
		t.Errorf("expected books property to survive; got %v", entry.Properties)
	}
	if entry.Trace != "" {
		t.Error("info entries should not carry a stack trace")
	}

	if err := json.Unmarshal([]byte(lines[1]), &entry); err != nil {
		t.Fatal(err)
	}
	if entry.Level != "ERROR" {
		t.Errorf("expected ERROR level; got %s", entry.Level)
	}
	if entry.Trace == "" {
		t.Error("error entries should carry a stack trace")
	}
}

func TestLoggerMinLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelError)

	l.PrintInfo("should be discarded", nil)
	if buf.Len() != 0 {
		t.Errorf("expected info entry below min level to be discarded; got %q", buf.String())
	}

	l.PrintError(errors.New("kept"), nil)
	if buf.Len() == 0 {
		t.Error("expected error entry to be written")
	}
}
