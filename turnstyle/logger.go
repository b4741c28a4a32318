package turnstyle

import (
	"log"
)

type Logger interface {
	Error(format string, args ...any)
	Warn(format string, args ...any)
	Info(format string, args ...any)
}

// StdLogger returns a Logger writing through the standard log package.
func StdLogger() Logger {
	return stdLogger{}
}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger {
	return nopLogger{}
}

type stdLogger struct{}

func (stdLogger) Error(format string, args ...any) {
	log.Printf("ERROR "+format, args...)
}

func (stdLogger) Warn(format string, args ...any) {
	log.Printf("WARN "+format, args...)
}

func (stdLogger) Info(format string, args ...any) {
	log.Printf("INFO "+format, args...)
}

type nopLogger struct{}

func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Info(string, ...any)  {}
