package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"INFO", LevelInfo},
		{"warn", LevelWarn},
		{"WARNING", LevelWarn},
		{"error", LevelError},
		{" error ", LevelError},
		{"none", LevelNone},
		{"off", LevelNone},
		{"invalid", LevelInfo}, // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ParseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "livecast.log")

	logger, err := New(LevelInfo, logPath, "test")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Info("test message")
	logger.Debug("should not appear")
	logger.Close()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	contentStr := string(content)
	if !strings.Contains(contentStr, " - INFO - [test] test message") {
		t.Errorf("Log file missing info message, got: %s", contentStr)
	}
	if strings.Contains(contentStr, "should not appear") {
		t.Errorf("Log file contains debug message when level is INFO")
	}
}

func TestLoggerWithPrefix(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(LevelInfo, &buf, "relay")

	logger.WithPrefix("session:abc").Warn("slow tool")

	if !strings.Contains(buf.String(), "[relay:session:abc] slow tool") {
		t.Errorf("missing combined prefix, got: %s", buf.String())
	}
}

func TestLoggerNoneLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(LevelNone, &buf, "")

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	if buf.Len() != 0 {
		t.Errorf("expected no output, got: %s", buf.String())
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(LevelInfo, &buf, "")

	logger.Debug("debug1")
	logger.SetLevel(LevelDebug)
	logger.Debug("debug2")

	if strings.Contains(buf.String(), "debug1") {
		t.Errorf("debug1 should not appear (level was INFO)")
	}
	if !strings.Contains(buf.String(), "debug2") {
		t.Errorf("debug2 should appear (level changed to DEBUG)")
	}
}

func TestGlobalLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := Global()
	SetGlobal(NewWithWriter(LevelDebug, &buf, ""))
	defer SetGlobal(prev)

	Info("hello %s", "world")
	if !strings.Contains(buf.String(), "hello world") {
		t.Errorf("global logger did not write, got: %s", buf.String())
	}
}

func TestSlogHandler(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(LevelInfo, &buf, "http")

	sl := slog.New(NewSlogHandler(l)).With("conn", "c1")
	sl.Info("upgrade failed", "status", 400)
	sl.Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, "upgrade failed conn=c1 status=400") {
		t.Errorf("unexpected slog output: %s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record should be filtered at info level")
	}
}

func TestStdLoggerBridge(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(LevelInfo, &buf, "")

	NewStdLogger(l, slog.LevelWarn).Printf("http: TLS handshake error")

	if !strings.Contains(buf.String(), "WARN - http: TLS handshake error") {
		t.Errorf("unexpected bridged output: %s", buf.String())
	}
}

func TestSlogSessionAttrBecomesPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(LevelDebug, &buf, "livecast")

	sl := slog.New(NewSlogHandler(l)).With(KeySession, "1a2b3c4d")
	sl.Warn("tool slow", "name", "get time", KeyComponent, "tools")

	out := buf.String()
	if !strings.Contains(out, `[livecast:session 1a2b3c4d:component tools] tool slow name="get time"`) {
		t.Errorf("unexpected slog output: %s", out)
	}
}

func TestSlogGroupsKeepPrefixKeysAsFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(LevelDebug, &buf, "")

	sl := slog.New(NewSlogHandler(l)).WithGroup("req")
	sl.Info("done", KeySession, "x", slog.Group("resp", "status", 200))

	out := buf.String()
	if !strings.Contains(out, "done req.session=x req.resp.status=200") {
		t.Errorf("unexpected grouped output: %s", out)
	}
}

func TestSlogHandlerRespectsNoneLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(LevelNone, &buf, "")

	slog.New(NewSlogHandler(l)).Error("dropped")
	if buf.Len() != 0 {
		t.Errorf("expected no output at LevelNone, got: %s", buf.String())
	}
}
