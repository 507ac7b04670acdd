package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		verbose bool
		want    zerolog.Level
	}{
		{"quiet by default", "", false, zerolog.WarnLevel},
		{"verbose", "", true, zerolog.InfoLevel},
		{"env wins", "debug", false, zerolog.DebugLevel},
		{"env is case insensitive", "ERROR", true, zerolog.ErrorLevel},
		{"unknown env ignored", "chatty", false, zerolog.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvLevel, tt.env)
			logger := New(&bytes.Buffer{}, tt.verbose)
			require.Equal(t, tt.want, logger.GetLevel())
		})
	}
}

func TestNewNoColor(t *testing.T) {
	t.Setenv(EnvLevel, "info")
	t.Setenv(EnvNoColor, "1")

	var buf bytes.Buffer
	logger := New(&buf, false)
	logger.Info().Str("host", "10.0.0.1:22").Msg("connected")

	out := buf.String()
	require.Contains(t, out, "connected")
	require.Contains(t, out, "host=10.0.0.1:22")
	require.Contains(t, out, "app=sshfleet")
	require.False(t, strings.Contains(out, "\x1b["), "unexpected color codes in %q", out)
}
