// Package connlog is the ambient logging wrapper every component uses:
// plain log.Printf calls with a component prefix, so multi-statement
// tasks' log lines stay attributable.
package connlog

import "log"

// Logger prefixes every line with a component name.
type Logger struct {
	prefix string
}

// New builds a Logger for the named component.
func New(component string) *Logger {
	return &Logger{prefix: component}
}

// Printf logs one line, prefixed with the component name.
func (l *Logger) Printf(format string, args ...any) {
	log.Printf("["+l.prefix+"] "+format, args...)
}
