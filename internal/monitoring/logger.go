// Package monitoring carries the process-wide diagnostic logger. Handlers
// and CLIs log through Logf so tests can capture or mute output without
// touching the standard logger's global state.
package monitoring

import (
	"log"
	"time"
)

// Logf is the package-level diagnostic logger, log.Printf by default.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. nil installs a no-op.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Duration logs how long an operation took. Call it deferred:
//
//	defer monitoring.Duration("solve", time.Now())
func Duration(op string, start time.Time) {
	Logf("%s took %s", op, time.Since(start).Round(time.Microsecond))
}
