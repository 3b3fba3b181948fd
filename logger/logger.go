// Package logger provides the package-level zerolog logger shared by the
// solver components.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var logger zerolog.Logger

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger = zerolog.New(output).With().Timestamp().Logger()
}

// SetOutput changes the output of the logger.
func SetOutput(w io.Writer) {
	logger = logger.Output(w)
}

// Set overrides the global logger.
func Set(l zerolog.Logger) {
	logger = l
}

// Disable disables logging.
func Disable() {
	logger = zerolog.Nop()
}

// Logger returns the global logger.
func Logger() zerolog.Logger {
	return logger
}
