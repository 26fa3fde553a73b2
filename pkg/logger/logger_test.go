package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"fantiadl/pkg/config"
)

// newBufferLogger builds a logger writing JSON lines into buf. The global
// zerolog level is pinned to debug so earlier tests cannot suppress output.
func newBufferLogger(buf *bytes.Buffer) *zerologLogger {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	zlog := zerolog.New(buf)
	return &zerologLogger{
		logger: &zlog,
		fields: make(map[string]interface{}),
	}
}

func decodeLine(t *testing.T, line []byte) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(line, &entry); err != nil {
		t.Fatalf("failed to decode log line %q: %v", line, err)
	}
	return entry
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{"info level", &config.LoggingConfig{Level: "info"}, false},
		{"debug level", &config.LoggingConfig{Level: "debug"}, false},
		{"disabled", &config.LoggingConfig{Level: "disabled"}, false},
		{"invalid level", &config.LoggingConfig{Level: "verbose"}, true},
		{"file output", &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "app.log")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && log == nil {
				t.Error("New() returned nil logger")
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    zerolog.Level
		wantErr bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"DEBUG", zerolog.DebugLevel, false},
		{"info", zerolog.InfoLevel, false},
		{"warn", zerolog.WarnLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"fatal", zerolog.FatalLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"trace", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := parseLogLevel(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLogLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestLoggerMethods(t *testing.T) {
	var buf bytes.Buffer
	log := newBufferLogger(&buf)

	log.Debug("debug message")
	log.Info("info message")
	log.Warn("warn message")
	log.Error("error message")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 4 {
		t.Fatalf("got %d log lines, want 4", len(lines))
	}

	wantLevels := []string{"debug", "info", "warn", "error"}
	for i, line := range lines {
		entry := decodeLine(t, line)
		if entry["level"] != wantLevels[i] {
			t.Errorf("line %d level = %v, want %s", i, entry["level"], wantLevels[i])
		}
	}
}

func TestWithField(t *testing.T) {
	var buf bytes.Buffer
	log := newBufferLogger(&buf)

	log.WithField("post_id", "100").Info("processing")

	entry := decodeLine(t, bytes.TrimSpace(buf.Bytes()))
	if entry["post_id"] != "100" {
		t.Errorf("post_id = %v, want 100", entry["post_id"])
	}
	if entry["message"] != "processing" {
		t.Errorf("message = %v, want processing", entry["message"])
	}
}

func TestWithFieldsDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	log := newBufferLogger(&buf)

	child := log.WithFields(map[string]interface{}{
		"fanclub_id": "55",
		"page":       2,
	})
	child.Info("with fields")
	log.Info("without fields")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("got %d log lines, want 2", len(lines))
	}

	first := decodeLine(t, lines[0])
	if first["fanclub_id"] != "55" {
		t.Errorf("fanclub_id = %v, want 55", first["fanclub_id"])
	}
	if first["page"] != float64(2) {
		t.Errorf("page = %v, want 2", first["page"])
	}

	second := decodeLine(t, lines[1])
	if _, ok := second["fanclub_id"]; ok {
		t.Error("parent logger picked up the child's fields")
	}
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	log := newBufferLogger(&buf)

	log.WithError(errors.New("boom")).Error("operation failed")

	entry := decodeLine(t, bytes.TrimSpace(buf.Bytes()))
	if entry["error"] != "boom" {
		t.Errorf("error = %v, want boom", entry["error"])
	}
}

func TestWithErrorNil(t *testing.T) {
	var buf bytes.Buffer
	log := newBufferLogger(&buf)

	if got := log.WithError(nil); got != Logger(log) {
		t.Error("WithError(nil) should return the same logger")
	}
}

func TestInfoWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := newBufferLogger(&buf)

	log.InfoWithFields("post finished", map[string]interface{}{
		"post_id":   "100",
		"succeeded": 3,
		"complete":  true,
	})

	entry := decodeLine(t, bytes.TrimSpace(buf.Bytes()))
	if entry["post_id"] != "100" {
		t.Errorf("post_id = %v, want 100", entry["post_id"])
	}
	if entry["succeeded"] != float64(3) {
		t.Errorf("succeeded = %v, want 3", entry["succeeded"])
	}
	if entry["complete"] != true {
		t.Errorf("complete = %v, want true", entry["complete"])
	}
}

func TestFieldChaining(t *testing.T) {
	var buf bytes.Buffer
	log := newBufferLogger(&buf)

	log.WithField("post_id", "100").WithField("kind", "photo").Info("chained")

	entry := decodeLine(t, bytes.TrimSpace(buf.Bytes()))
	if entry["post_id"] != "100" {
		t.Errorf("post_id = %v, want 100", entry["post_id"])
	}
	if entry["kind"] != "photo" {
		t.Errorf("kind = %v, want photo", entry["kind"])
	}
}

func TestGlobalLogger(t *testing.T) {
	if err := Initialize(&config.LoggingConfig{Level: "error"}); err != nil {
		t.Fatalf("Initialize() = %v", err)
	}
	if GetLogger() == nil {
		t.Fatal("GetLogger() returned nil")
	}

	// Package-level helpers route through the global logger
	Debug("debug")
	Info("info")
	Warn("warn")
	Error("error")

	if WithField("k", "v") == nil {
		t.Error("WithField returned nil")
	}
	if WithFields(map[string]interface{}{"k": "v"}) == nil {
		t.Error("WithFields returned nil")
	}
	if WithError(errors.New("boom")) == nil {
		t.Error("WithError returned nil")
	}
}
