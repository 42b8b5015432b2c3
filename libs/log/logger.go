package log

import (
	"fmt"
)

const (
	// LogFormatPlain defines a logging format used for human-readable text-based
	// logging that is not structured. Typically, this format is used for development
	// and testing purposes.
	LogFormatPlain string = "plain"

	// LogFormatText defines a logging format used for human-readable text-based
	// logging that is not structured. Typically, this format is used for development
	// and testing purposes.
	LogFormatText string = "text"

	// LogFormatJSON defines a logging format for structured JSON-based logging
	// that is typically used in production environments, which can be sent to
	// logging facilities that support complex log parsing.
	LogFormatJSON string = "json"

	// Supported loging levels
	LogLevelTrace = "trace"
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Logger defines a generic logging interface compatible with intentd services.
type Logger interface {
	Debug(msg string, keyVals ...interface{})
	Info(msg string, keyVals ...interface{})
	Error(msg string, keyVals ...interface{})

	With(keyVals ...interface{}) Logger
}

// Hexadecimal is intended to convert a []byte
// type to a value that is hexadecimal (uppercase).
type Hexadecimal struct {
	b []byte
}

// NewHexadecimal wraps b for lazy hex formatting in log lines.
func NewHexadecimal(b []byte) Hexadecimal { return Hexadecimal{b: b} }

// String fulfills the Stringer interface within the
// fmt package.
func (s Hexadecimal) String() string {
	return fmt.Sprintf("%X", s.b)
}
