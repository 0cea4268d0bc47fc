package testutil

import (
	"io"

	"github.com/johnrirwin/feeddash/internal/logging"
)

// NullLogger returns a logger that discards all output
func NullLogger() *logging.Logger {
	return logging.NewWithWriter(logging.LevelError, io.Discard, "text")
}
