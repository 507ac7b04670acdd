// Package logging builds the console logger shared by the CLI commands.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// EnvLevel overrides the log level (trace, debug, info, warn, error).
	EnvLevel = "SSHFLEET_LOG_LEVEL"
	// EnvNoColor disables colored output when set to any non-empty value.
	EnvNoColor = "SSHFLEET_LOG_NOCOLOR"
)

// New returns a console logger writing to w. It logs warnings and above,
// info and above when verbose, unless EnvLevel says otherwise.
func New(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.InfoLevel
	}
	if env := strings.TrimSpace(os.Getenv(EnvLevel)); env != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(env)); err == nil && parsed != zerolog.NoLevel {
			level = parsed
		}
	}

	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    os.Getenv(EnvNoColor) != "",
	}
	return zerolog.New(output).Level(level).With().Timestamp().Str("app", "sshfleet").Logger()
}
