package comlink

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
)

// LogLevel specifies the level of spew that should go to the log
type LogLevel int

const (
	// LogLevelUnknown is a default value for LogLevel. Its
	// behavior is undefined
	LogLevelUnknown LogLevel = iota

	// LogLevelPanic causes output of an error message followed by a panic
	LogLevelPanic LogLevel = iota

	// LogLevelFatal causes output of an error message followed by os.Exit(1)
	LogLevelFatal LogLevel = iota

	// LogLevelError is for unexpected error messages
	LogLevelError LogLevel = iota

	// LogLevelWarning is for warning messages
	LogLevelWarning LogLevel = iota

	// LogLevelInfo is for info messages
	LogLevelInfo LogLevel = iota

	// LogLevelDebug is for debug messages
	LogLevelDebug LogLevel = iota

	// LogLevelTrace is for trace messages
	LogLevelTrace LogLevel = iota
)

var logLevelNames = [...]string{
	"unknown", "panic", "fatal", "error", "warning", "info", "debug", "trace",
}

var nameToLogLevel = func() map[string]LogLevel {
	result := make(map[string]LogLevel)
	for i, name := range logLevelNames {
		result[name] = LogLevel(i)
	}
	return result
}()

// StringToLogLevel converts a string to a LogLevel
func StringToLogLevel(s string) LogLevel {
	result, ok := nameToLogLevel[strings.ToLower(s)]
	if !ok {
		result = LogLevelUnknown
	}
	return result
}

func (x *LogLevel) String() string {
	y := *x
	if y < LogLevelUnknown || y > LogLevelTrace {
		y = LogLevelUnknown
	}
	return logLevelNames[y]
}

// FromString initializes a LogLevel from a string
func (x *LogLevel) FromString(s string) error {
	result := StringToLogLevel(s)
	if result == LogLevelUnknown {
		return fmt.Errorf("unknown log level: %q", s)
	}
	*x = result
	return nil
}

// MinLogger is a minimal logging interface for a logging component
type MinLogger interface {
	Print(args ...interface{})
	Prefix() string
}

// GetLogLeveler is an interface for a logger that supports GetLogLevel()
type GetLogLeveler interface {
	GetLogLevel() LogLevel
}

// Logger is the logging interface threaded through every exposer, endpoint
// adapter, and lifetime table in this package. Every component that forks a
// child context (a call, a sub-channel, an accepted connection) forks its
// own Logger with an added prefix rather than writing to a shared stream
// directly.
type Logger interface {
	MinLogger
	GetLogLeveler

	Panic(args ...interface{})
	Panicf(f string, args ...interface{})
	PanicOnError(err error)
	Fatalf(f string, args ...interface{})
	Fatal(args ...interface{})

	Log(logLevel LogLevel, args ...interface{})
	Logf(logLevel LogLevel, f string, args ...interface{})

	ELog(args ...interface{})
	ELogf(f string, args ...interface{})
	WLog(args ...interface{})
	WLogf(f string, args ...interface{})
	ILog(args ...interface{})
	ILogf(f string, args ...interface{})
	DLog(args ...interface{})
	DLogf(f string, args ...interface{})
	TLog(args ...interface{})
	TLogf(f string, args ...interface{})

	Error(args ...interface{}) error
	Errorf(f string, args ...interface{}) error
	Sprintf(f string, args ...interface{}) string
	Sprint(args ...interface{}) string

	ELogError(args ...interface{}) error
	ELogErrorf(f string, args ...interface{}) error
	WLogError(args ...interface{}) error
	WLogErrorf(f string, args ...interface{}) error
	DLogError(args ...interface{}) error
	DLogErrorf(f string, args ...interface{}) error

	// Fork creates a new Logger that has an additional formatted string
	// appended onto an existing logger's prefix (with ": " added between)
	Fork(prefix string, args ...interface{}) Logger

	SetLogLevel(logLevel LogLevel)
}

// BasicLogger is a logical log output stream with a level filter and a
// prefix added to each output record.
type BasicLogger struct {
	prefix   string
	prefixC  string
	logger   MinLogger
	logLevel LogLevel
}

const defaultLogFlags = log.Ldate | log.Ltime

// NewLogger creates a new Logger with the given prefix, emitting to stderr
func NewLogger(prefix string, logLevel LogLevel) Logger {
	return NewLoggerWithFlags(prefix, defaultLogFlags, logLevel)
}

// NewLoggerWithFlags creates a new Logger with a given prefix and stdlib
// log flags, emitting to stderr
func NewLoggerWithFlags(prefix string, flags int, logLevel LogLevel) Logger {
	prefixC := prefix
	if prefixC != "" {
		prefixC += ": "
	}
	return &BasicLogger{
		prefix:   prefix,
		prefixC:  prefixC,
		logger:   log.New(os.Stderr, "", flags),
		logLevel: logLevel,
	}
}

func (l *BasicLogger) Print(args ...interface{}) {
	l.logger.Print(l.Sprint(args...))
}

func (l *BasicLogger) logNoPrefix(logLevel LogLevel, msg string) {
	if logLevel <= l.logLevel || logLevel <= LogLevelFatal {
		if logLevel >= LogLevelPanic {
			l.logger.Print(msg)
		}
		if logLevel == LogLevelFatal {
			os.Exit(1)
		}
		if logLevel == LogLevelPanic {
			panic(msg)
		}
	}
}

func (l *BasicLogger) Log(logLevel LogLevel, args ...interface{}) {
	if logLevel <= l.logLevel || logLevel <= LogLevelFatal {
		l.logNoPrefix(logLevel, l.Sprint(args...))
	}
}

func (l *BasicLogger) Logf(logLevel LogLevel, f string, args ...interface{}) {
	if logLevel <= l.logLevel || logLevel <= LogLevelFatal {
		l.logNoPrefix(logLevel, l.Sprintf(f, args...))
	}
}

func (l *BasicLogger) logError(logLevel LogLevel, args ...interface{}) error {
	msg := l.Sprint(args...)
	l.logNoPrefix(logLevel, msg)
	return errors.New(msg)
}

func (l *BasicLogger) logErrorf(logLevel LogLevel, f string, args ...interface{}) error {
	msg := l.Sprintf(f, args...)
	l.logNoPrefix(logLevel, msg)
	return errors.New(msg)
}

func (l *BasicLogger) Panic(args ...interface{})  { l.Log(LogLevelPanic, args...) }
func (l *BasicLogger) PanicOnError(err error) {
	if err != nil {
		l.Panic(err)
	}
}
func (l *BasicLogger) Panicf(f string, args ...interface{}) { l.Logf(LogLevelPanic, f, args...) }
func (l *BasicLogger) Fatal(args ...interface{})            { l.Log(LogLevelFatal, args...) }
func (l *BasicLogger) Fatalf(f string, args ...interface{}) { l.Logf(LogLevelFatal, f, args...) }

func (l *BasicLogger) ELog(args ...interface{})             { l.Log(LogLevelError, args...) }
func (l *BasicLogger) ELogf(f string, args ...interface{})  { l.Logf(LogLevelError, f, args...) }
func (l *BasicLogger) WLog(args ...interface{})             { l.Log(LogLevelWarning, args...) }
func (l *BasicLogger) WLogf(f string, args ...interface{})  { l.Logf(LogLevelWarning, f, args...) }
func (l *BasicLogger) ILog(args ...interface{})             { l.Log(LogLevelInfo, args...) }
func (l *BasicLogger) ILogf(f string, args ...interface{})  { l.Logf(LogLevelInfo, f, args...) }
func (l *BasicLogger) DLog(args ...interface{})             { l.Log(LogLevelDebug, args...) }
func (l *BasicLogger) DLogf(f string, args ...interface{})  { l.Logf(LogLevelDebug, f, args...) }
func (l *BasicLogger) TLog(args ...interface{})             { l.Log(LogLevelTrace, args...) }
func (l *BasicLogger) TLogf(f string, args ...interface{})  { l.Logf(LogLevelTrace, f, args...) }

func (l *BasicLogger) Error(args ...interface{}) error { return errors.New(l.Sprint(args...)) }
func (l *BasicLogger) Errorf(f string, args ...interface{}) error {
	return errors.New(l.Sprintf(f, args...))
}
func (l *BasicLogger) Sprintf(f string, args ...interface{}) string {
	return l.prefixC + fmt.Sprintf(f, args...)
}
func (l *BasicLogger) Sprint(args ...interface{}) string {
	return l.prefixC + fmt.Sprint(args...)
}

func (l *BasicLogger) ELogError(args ...interface{}) error { return l.logError(LogLevelError, args...) }
func (l *BasicLogger) ELogErrorf(f string, args ...interface{}) error {
	return l.logErrorf(LogLevelError, f, args...)
}
func (l *BasicLogger) WLogError(args ...interface{}) error { return l.logError(LogLevelWarning, args...) }
func (l *BasicLogger) WLogErrorf(f string, args ...interface{}) error {
	return l.logErrorf(LogLevelWarning, f, args...)
}
func (l *BasicLogger) DLogError(args ...interface{}) error { return l.logError(LogLevelDebug, args...) }
func (l *BasicLogger) DLogErrorf(f string, args ...interface{}) error {
	return l.logErrorf(LogLevelDebug, f, args...)
}

// Fork creates a new Logger that has an additional formatted string appended
// onto an existing logger's prefix (with ": " added between)
func (l *BasicLogger) Fork(prefix string, args ...interface{}) Logger {
	args = append([]interface{}{l.prefix}, args...)
	newPrefix := fmt.Sprintf("%s: "+prefix, args...)
	return NewLoggerWithFlags(newPrefix, defaultLogFlags, l.GetLogLevel())
}

// Prefix returns the Logger's prefix string (without the ": " trailer)
func (l *BasicLogger) Prefix() string { return l.prefix }

// GetLogLevel returns the log level
func (l *BasicLogger) GetLogLevel() LogLevel { return l.logLevel }

// SetLogLevel sets the log level
func (l *BasicLogger) SetLogLevel(logLevel LogLevel) { l.logLevel = logLevel }
