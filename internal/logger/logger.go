// Package logger provides leveled logging for the retrieval router.
// All output goes to stderr because stdout is reserved for the MCP
// protocol. Debug output is gated behind verbose mode; Warn and Error
// are always emitted since degraded-path events must stay observable.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
)

// SetVerbose enables or disables debug-level logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose reports whether debug-level logging is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the log writer. Defaults to os.Stderr. Useful for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

func emit(level, format string, args ...any) {
	fmt.Fprintf(output, "%s [%s] "+format+"\n",
		append([]any{time.Now().UTC().Format(time.RFC3339), level}, args...)...)
}

// Debug prints a message when verbose mode is enabled.
func Debug(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		emit("DEBUG", format, args...)
	}
}

// Info prints an informational message when verbose mode is enabled.
func Info(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		emit("INFO", format, args...)
	}
}

// Warn prints a warning. Always emitted: degraded retrieval branches are
// recovered locally and this is their only trace.
func Warn(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	emit("WARN", format, args...)
}

// Error prints an error message. Always emitted.
func Error(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	emit("ERROR", format, args...)
}
