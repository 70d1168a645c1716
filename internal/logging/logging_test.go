package logging

import (
	"io"
	"log/slog"
	"testing"

	pionlogging "github.com/pion/logging"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"dev", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"prod", slog.LevelError},
		{"", slog.LevelInfo},
		{"loud", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in, slog.LevelInfo))
		})
	}
}

func TestPionFactoryFollowsInit(t *testing.T) {
	Init("debug")
	assert.Equal(t, pionlogging.LogLevelDebug, PionFactory(io.Discard).DefaultLogLevel)

	Init("warn")
	assert.Equal(t, pionlogging.LogLevelWarn, PionFactory(io.Discard).DefaultLogLevel)
}
