package telemetry

import (
	"context"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo}, // unknown levels never fail startup
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetupLogger_InstallsDefault(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	SetupLogger("json", "debug")
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug level not enabled after SetupLogger(json, debug)")
	}

	SetupLogger("text", "error")
	if slog.Default().Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info level still enabled after SetupLogger(text, error)")
	}
}
