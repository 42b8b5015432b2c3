package log

import (
	"io"
	"os"
	"sync"
	"testing"
)

var (
	// reuse the same logger across all tests
	testingLoggerMtx = sync.Mutex{}
	testingLogger    Logger
)

// TestingLogger returns a Logger which writes to STDOUT if test(s) are being
// run with the verbose (-v) flag, NopLogger otherwise.
//
// NOTE:
// - A call to TestingLogger() must be made inside a test (not in the init func)
// because verbose flag only set at the time of testing.
func TestingLogger() Logger {
	return TestingLoggerWithOutput(os.Stdout)
}

// TestingLoggerWithOutput returns a Logger which writes to (w io.Writer) if
// test(s) are being run with the verbose (-v) flag, NopLogger otherwise.
func TestingLoggerWithOutput(w io.Writer) Logger {
	testingLoggerMtx.Lock()
	defer testingLoggerMtx.Unlock()

	if testingLogger != nil {
		return testingLogger
	}

	if testing.Verbose() {
		logger, err := NewLogger(w, LogLevelDebug)
		if err != nil {
			panic(err)
		}
		testingLogger = logger
	} else {
		testingLogger = NewNopLogger()
	}

	return testingLogger
}
