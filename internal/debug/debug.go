package debug

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (config, loop start/stop)
	LevelLive    = 2 // Live info (captures, uploads, statuses)
	LevelVerbose = 3 // Verbose (request details, file handling)
	LevelTrace   = 4 // Trace (GPIO, very low level)
)

var (
	level  int
	logger *logrus.Entry
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (config, loop start/stop, errors)
// 2 = live info (each capture, upload and published status)
// 3 = verbose (request details, file handling, timings)
// 4 = trace (GPIO, very low level)
func Init(debugLevel int) {
	level = debugLevel
	if level <= LevelOff {
		logger = nil
		return
	}
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000000",
	})
	l.SetLevel(logrusLevel(debugLevel))
	logger = l.WithField("app", "KatanaPush")
}

// logrusLevel maps our numeric levels onto logrus levels so that
// level-gated output is also filtered by the backend.
func logrusLevel(debugLevel int) logrus.Level {
	switch {
	case debugLevel >= LevelTrace:
		return logrus.TraceLevel
	case debugLevel >= LevelVerbose:
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}

// SetOutput redirects debug output (e.g. to stdout and the web status stream).
func SetOutput(w io.Writer) {
	if logger != nil {
		logger.Logger.SetOutput(w)
	}
}

// Level returns the current debug level.
func Level() int {
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return level >= minLevel
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Infof(format, args...)
	}
}

// Summary prints an important summary (level 1).
func Summary(title string) {
	if level >= LevelInfo && logger != nil {
		logger.Info("═══════════════════════════════════════")
		logger.Infof("  %s", title)
		logger.Info("═══════════════════════════════════════")
	}
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Infof("  %s = %v", name, value)
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	if level >= LevelLive && logger != nil {
		logger.WithField("stage", "live").Infof(format, args...)
	}
}

// Cycle prints the start of a capture-upload cycle (level 2).
func Cycle(num uint64, id string) {
	if level >= LevelLive && logger != nil {
		logger.WithFields(logrus.Fields{"cycle": num, "id": id}).Info("cycle started")
	}
}

// Captured prints a successful capture (level 2).
func Captured(name string, size int) {
	if level >= LevelLive && logger != nil {
		logger.WithFields(logrus.Fields{"file": name, "bytes": size}).Info("image captured")
	}
}

// Published prints a status published to the observer (level 2).
func Published(status string) {
	if level >= LevelLive && logger != nil {
		logger.WithField("status", status).Info("status published")
	}
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	if level >= LevelVerbose && logger != nil {
		logger.Debugf(format, args...)
	}
}

// Printf is an alias for Verbose.
func Printf(format string, args ...interface{}) {
	Verbose(format, args...)
}

// Section prints a section separator (level 3).
func Section(name string) {
	if level >= LevelVerbose && logger != nil {
		logger.Debug("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		logger.Debugf("  %s", name)
		logger.Debug("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	}
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	if level >= LevelVerbose && logger != nil {
		logger.Debugf("Step %d: %s", num, description)
	}
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message.
func Trace(format string, args ...interface{}) {
	if level >= LevelTrace && logger != nil {
		logger.Tracef(format, args...)
	}
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	if level >= LevelTrace && logger != nil {
		logger.WithFields(logrus.Fields{"op": operation, "pin": pin}).Tracef("gpio value=%v", value)
	}
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	if level >= LevelInfo && logger != nil {
		logger.WithError(err).Error("error")
	}
}

// Warn prints a warning with an error attached (level 1+).
func Warn(err error, msg string) {
	if level >= LevelInfo && logger != nil {
		logger.WithError(err).Warn(msg)
	}
}
