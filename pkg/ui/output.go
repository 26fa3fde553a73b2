package ui

import (
	"fmt"
	"os"
	"sync"
)

var (
	mu    sync.RWMutex
	quiet bool
)

// SetQuietMode suppresses all non-error output
func SetQuietMode(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	quiet = enabled
}

// IsQuietMode reports whether quiet mode is enabled
func IsQuietMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return quiet
}

// Print writes a plain progress line to stdout unless quiet mode is set
func Print(format string, args ...interface{}) {
	if IsQuietMode() {
		return
	}
	fmt.Printf(format, args...)
}

// PrintInfo writes a labeled info line to stdout unless quiet mode is set
func PrintInfo(label, detail string) {
	if IsQuietMode() {
		return
	}
	fmt.Printf("%s: %s\n", label, detail)
}

// PrintError writes an error line to stderr regardless of quiet mode
func PrintError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
}
