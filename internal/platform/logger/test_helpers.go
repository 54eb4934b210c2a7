package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// TestLogBuffer captures JSON log lines for assertions. It is safe for use by
// the goroutines a task spawns.
type TestLogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Write implements io.Writer.
func (b *TestLogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns everything written so far.
func (b *TestLogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Reset drops captured output.
func (b *TestLogBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

// Entries decodes each captured line as one JSON record.
func (b *TestLogBuffer) Entries() ([]map[string]interface{}, error) {
	var entries []map[string]interface{}
	for _, line := range strings.Split(b.String(), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// EntriesWithMessage returns the records whose msg equals msg. Undecodable
// output yields nil.
func (b *TestLogBuffer) EntriesWithMessage(msg string) []map[string]interface{} {
	entries, err := b.Entries()
	if err != nil {
		return nil
	}
	var matched []map[string]interface{}
	for _, entry := range entries {
		if entry["msg"] == msg {
			matched = append(matched, entry)
		}
	}
	return matched
}

// GetTestLogger returns a debug-level JSON logger writing to a fresh buffer.
// The slog default is left alone so parallel tests do not interfere.
func GetTestLogger(t *testing.T) (*slog.Logger, *TestLogBuffer) {
	t.Helper()
	buf := &TestLogBuffer{}
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

// AssertLogContains fails t unless the captured output contains content.
func AssertLogContains(t *testing.T, buf *TestLogBuffer, content string) {
	t.Helper()
	if logs := buf.String(); !strings.Contains(logs, content) {
		t.Errorf("expected logs to contain %q\nlogs:\n%s", content, logs)
	}
}

// AssertLogField fails t unless some record has field set to expected.
func AssertLogField(t *testing.T, buf *TestLogBuffer, field string, expected interface{}) {
	t.Helper()
	entries, err := buf.Entries()
	if err != nil {
		t.Fatalf("failed to parse log entries: %v", err)
	}
	for _, entry := range entries {
		if value, ok := entry[field]; ok && value == expected {
			return
		}
	}
	t.Errorf("no log entry has %s=%v\nlogs:\n%s", field, expected, buf.String())
}
