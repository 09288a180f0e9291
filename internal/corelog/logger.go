// Package corelog wraps the standard library logger with the severity
// taxonomy the control plane expects (error/warn/info/debug), mirroring the
// leveled logf* helpers the system was originally built around without
// pulling in a structured logging dependency.
package corelog

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Logger is a small leveled wrapper around *log.Logger. Debug messages are
// gated by Verbose so routine register/unregister chatter does not flood
// production output.
type Logger struct {
	std     *log.Logger
	Verbose bool
}

// New creates a Logger writing to w with the given prefix.
func New(w io.Writer, prefix string) *Logger {
	return &Logger{std: log.New(w, prefix, log.LstdFlags)}
}

// Default returns a Logger writing to stderr with no prefix, suitable for
// use before a configured logger exists.
func Default() *Logger {
	return New(os.Stderr, "")
}

func (l *Logger) Errorf(format string, args ...any) {
	l.std.Printf("ERROR "+format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.std.Printf("WARN  "+format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.std.Printf("INFO  "+format, args...)
}

func (l *Logger) Debugf(format string, args ...any) {
	if !l.Verbose {
		return
	}
	l.std.Printf("DEBUG "+format, args...)
}

// Panicf logs the message with a PANIC prefix and then panics, reserved for invariant
// violations that must never happen in a correctly wired process.
func (l *Logger) Panicf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.std.Printf("PANIC %s", msg)
	panic(msg)
}
