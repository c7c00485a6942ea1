// Package zkchanlog provides the shared btclog backend used by every
// subsystem package (store, transport, establish, pay, closer, merchant).
// Each subsystem declares its own package-level `log` variable of type
// btclog.Logger, obtained from NewSubsystemLogger and enabled from the
// start; main sets its level through the package's SetLogLevel.
package zkchanlog

import (
	"os"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

// Backend is the shared btclog.Backend every subsystem logger is derived
// from, writing to stdout and, once InitLogRotator has run, to a rotating
// log file.
var Backend = btclog.NewBackend(logWriter{})

// Disabled is a logger that discards all output. No subsystem in this
// module uses it.
var Disabled = btclog.Disabled

// logRotator is installed by InitLogRotator; kept at package scope so it
// can be closed on shutdown.
var logRotator *rotator.Rotator

// InitLogRotator initializes a rotating log file at logFile, rolled at a
// fixed 10 MB, keeping the given number of rolled files.
func InitLogRotator(logFile string, maxRolls int) error {
	r, err := rotator.New(logFile, 10*1024, false, maxRolls)
	if err != nil {
		return err
	}
	logRotator = r
	Backend = btclog.NewBackend(&logWriter{})
	return nil
}

// logWriter multiplexes log output to both the rotator (if initialized)
// and stdout.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

// NewSubsystemLogger creates a logger for the named subsystem at the given
// backend, used by each package's log.go to obtain its package-level
// logger.
func NewSubsystemLogger(subsystem string) btclog.Logger {
	return Backend.Logger(subsystem)
}

// SetLevel sets the logging level of the given subsystem logger from a
// level name; an unrecognized name sets the info level.
func SetLevel(logger btclog.Logger, level string) {
	l, ok := btclog.LevelFromString(level)
	if !ok {
		l = btclog.LevelInfo
	}
	logger.SetLevel(l)
}
