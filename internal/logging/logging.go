package logging

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

var (
	logger  = log.New(os.Stderr, "", log.LstdFlags)
	verbose atomic.Bool
)

// SetVerbose enables debug-level output.
func SetVerbose(v bool) {
	verbose.Store(v)
}

// Debug logs a message only when verbose mode is enabled.
func Debug(format string, args ...interface{}) {
	if verbose.Load() {
		logger.Output(2, "DEBUG "+fmt.Sprintf(format, args...))
	}
}

// Info logs an informational message.
func Info(format string, args ...interface{}) {
	logger.Output(2, "INFO  "+fmt.Sprintf(format, args...))
}

// Warn logs a warning.
func Warn(format string, args ...interface{}) {
	logger.Output(2, "WARN  "+fmt.Sprintf(format, args...))
}

// Error logs an error.
func Error(format string, args ...interface{}) {
	logger.Output(2, "ERROR "+fmt.Sprintf(format, args...))
}
