// Package log is the logging package used throughout this module. It is
// intentionally small: a handful of level-gated package functions backed by
// a Logger struct, and a Record hook so a host process can redirect log
// lines instead of writing to stderr. Named loggers tag their lines with a
// component name, for processes that run more than one provider role or
// Server instance at once.
package log

import (
	"bytes"
	"fmt"
	logpkg "log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

const (
	ErrorLevel = 1
	InfoLevel  = 2
	DebugLevel = 3
)

var (
	Level int = 0
	mu    sync.Mutex
	// If Record is not nil, it will be used to send log messages instead
	// of Stderr.
	Record func(...interface{})
)

var internalLogger = &Logger{skip: 1}

func Stack() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

func DefaultLogger() *Logger {
	return &Logger{}
}

// Named returns a Logger that tags every line it emits with component,
// e.g. the account-provider or recovery-provider role that owns it. A
// process running more than one role-specific subsystem, or more than
// one Server bound to a different origin, uses this so log lines say
// which one produced them instead of being indistinguishable.
func Named(component string) *Logger {
	return &Logger{name: component}
}

type Logger struct {
	skip int
	name string
}

func (l *Logger) log(d int, level, s string) {
	fl := "unknown"
	if _, file, line, ok := runtime.Caller(d + l.skip); ok {
		fl = fmt.Sprintf("%s:%d", filepath.Join(filepath.Base(filepath.Dir(file)), filepath.Base(file)), line)
	}
	if l.name != "" {
		fl = l.name + " " + fl
	}
	t := time.Now().UTC().Format("0102 150405.000")
	if Record != nil {
		Record(fmt.Sprintf("%s%s %s] %s", level, t, fl, s))
		return
	}
	mu.Lock()
	fmt.Fprintf(os.Stderr, "%s%s %s] %s\n", level, t, fl, s)
	mu.Unlock()
}

func Panic(args ...interface{}) {
	internalLogger.Panic(args...)
}

func (l *Logger) Panic(args ...interface{}) {
	m := fmt.Sprint(args...)
	l.log(2, "PANIC!", m)
	panic(m)
}

func Panicf(format string, args ...interface{}) {
	internalLogger.Panicf(format, args...)
}

func (l *Logger) Panicf(format string, args ...interface{}) {
	m := fmt.Sprintf(format, args...)
	l.log(2, "PANIC!", m)
	panic(m)
}

func Fatal(args ...interface{}) {
	internalLogger.Fatal(args...)
}

func (l *Logger) Fatal(args ...interface{}) {
	l.log(2, "F", fmt.Sprint(args...))
	os.Exit(1)
}

func Fatalf(format string, args ...interface{}) {
	internalLogger.Fatalf(format, args...)
}

func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.log(2, "F", fmt.Sprintf(format, args...))
	os.Exit(1)
}

func Error(args ...interface{}) {
	internalLogger.Error(args...)
}

func (l *Logger) Error(args ...interface{}) {
	if Level >= ErrorLevel {
		l.log(2, "E", fmt.Sprint(args...))
	}
}

func Errorf(format string, args ...interface{}) {
	internalLogger.Errorf(format, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	if Level >= ErrorLevel {
		l.log(2, "E", fmt.Sprintf(format, args...))
	}
}

func Info(args ...interface{}) {
	internalLogger.Info(args...)
}

func (l *Logger) Info(args ...interface{}) {
	if Level >= InfoLevel {
		l.log(2, "I", fmt.Sprint(args...))
	}
}

func Infof(format string, args ...interface{}) {
	internalLogger.Infof(format, args...)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	if Level >= InfoLevel {
		l.log(2, "I", fmt.Sprintf(format, args...))
	}
}

func Debug(args ...interface{}) {
	internalLogger.Debug(args...)
}

func (l *Logger) Debug(args ...interface{}) {
	if Level >= DebugLevel {
		l.log(2, "D", fmt.Sprint(args...))
	}
}

func Debugf(format string, args ...interface{}) {
	internalLogger.Debugf(format, args...)
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	if Level >= DebugLevel {
		l.log(2, "D", fmt.Sprintf(format, args...))
	}
}

func GoLogger() *logpkg.Logger {
	return internalLogger.GoLogger()
}

// GoLogger adapts l to the standard library's log.Logger interface, for
// handing to http.Server.ErrorLog and similar APIs that don't know
// about this package.
func (l *Logger) GoLogger() *logpkg.Logger {
	return logpkg.New(writer{l: l}, "", 0)
}

type writer struct{ l *Logger }

func (w writer) Write(b []byte) (n int, err error) {
	if Level >= InfoLevel {
		b = bytes.TrimSuffix(b, []byte{'\n'})
		// Depth set to work nicely with http/Server.ErrorLog.
		w.l.log(5, "L", string(b))
	}
	return len(b), nil
}
