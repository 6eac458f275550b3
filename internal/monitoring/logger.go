// Package monitoring holds the daemon's diagnostic loggers.
package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

var verbose atomic.Bool

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetQuiet mutes diagnostics. Unmuting restores log.Printf.
func SetQuiet(quiet bool) {
	if quiet {
		SetLogger(nil)
		return
	}
	SetLogger(log.Printf)
}

// SetVerbose toggles the per-cycle rate lines written by Verbosef.
func SetVerbose(on bool) {
	verbose.Store(on)
}

// Verbose reports whether per-cycle logging is enabled.
func Verbose() bool {
	return verbose.Load()
}

// Verbosef logs through Logf only when verbose logging is enabled.
func Verbosef(format string, v ...interface{}) {
	if !verbose.Load() {
		return
	}
	Logf(format, v...)
}
