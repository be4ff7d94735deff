package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"memobridge/internal/config"
)

func TestNewLogger_JSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, config.GeneralConfig{LogLevel: "warn", LogFormat: "json"})
	l.Info("hidden")
	l.Warn("shown", "k", "v")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if rec["msg"] != "shown" || rec["k"] != "v" {
		t.Errorf("record = %v", rec)
	}
}

func TestNewLogger_TextDefault(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, config.GeneralConfig{})
	if l.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be disabled at the default level")
	}
	l.Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestResolveConfigPath(t *testing.T) {
	old := configPath
	defer func() { configPath = old }()

	configPath = ""
	if got := resolveConfigPath(); got != config.DefaultConfigPath() {
		t.Errorf("default = %q", got)
	}
	configPath = "/tmp/mb.yaml"
	if got := resolveConfigPath(); got != "/tmp/mb.yaml" {
		t.Errorf("flag = %q", got)
	}
}
