package core

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		value string
		want  zerolog.Level
	}{
		{"off", zerolog.Disabled},
		{"0", zerolog.Disabled},
		{"OFF", zerolog.Disabled},
		{"full", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := LogLevel(tt.value); got != tt.want {
			t.Errorf("LogLevel(%q) = %v; want %v", tt.value, got, tt.want)
		}
	}
}

func TestLoggingFromEnv(t *testing.T) {
	prev := zerolog.GlobalLevel()
	defer zerolog.SetGlobalLevel(prev)

	t.Setenv("DYNBENCH_LOG", "full")
	zerolog.SetGlobalLevel(LogLevel("full"))
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Errorf("Expected logging level to be Debug, got %v", zerolog.GlobalLevel())
	}
}
