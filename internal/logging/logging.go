// Package logging wraps the standard library logger with the
// component=<x> action=<y> key-value convention used throughout Overstory,
// instead of introducing a structured-logging dependency.
package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Logger writes component-tagged lines through the standard library logger.
type Logger struct {
	component string
	std       *log.Logger
}

// New returns a Logger tagged with the given component name.
func New(component string) *Logger {
	return &Logger{
		component: component,
		std:       log.New(os.Stderr, "", log.LstdFlags),
	}
}

// fields renders key-value pairs as "k=v k=v ...". Odd-length pairs drop
// the trailing key; this is a logging helper, not a place to panic.
func fields(kv ...any) string {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%v=%v", kv[i], kv[i+1])
	}
	return b.String()
}

// Info logs an informational line.
func (l *Logger) Info(action string, kv ...any) {
	l.std.Printf("component=%s action=%s %s", l.component, action, fields(kv...))
}

// Warn logs a warning line.
func (l *Logger) Warn(action string, kv ...any) {
	l.std.Printf("component=%s action=%s level=warn %s", l.component, action, fields(kv...))
}

// Error logs an error line.
func (l *Logger) Error(action string, err error, kv ...any) {
	l.std.Printf("component=%s action=%s level=error err=%q %s", l.component, action, err, fields(kv...))
}

// Discard executes fn and logs, but never returns, any error it produces.
// This is the single helper used by every fire-and-forget observability
// write (hook intake, auto-record, nudge recording, snapshot recording) so
// failures never abort the surrounding action.
func (l *Logger) Discard(action string, fn func() error) {
	if err := fn(); err != nil {
		l.Warn(action+"_failed", "err", err)
	}
}
