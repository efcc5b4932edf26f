package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestInitLevels(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"", zerolog.InfoLevel}, // unset level must not filter everything
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"not-a-level", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		Init(tt.level)
		assert.Equal(t, tt.want, Get().GetLevel(), "level %q", tt.level)
	}
}
