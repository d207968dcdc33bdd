// Package logger is a small leveled logger that colours each level and
// prefixes every line with the caller's file and line.
package logger

import (
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Logger writes lines tagged with a service name.
type Logger struct {
	serviceName string
	debug       bool

	mu  sync.Mutex
	out io.Writer
}

var (
	infoColor    = color.New(color.FgCyan)
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	debugColor   = color.New(color.FgMagenta)
)

// New returns a logger writing to color.Output.
func New(serviceName string) *Logger {
	return &Logger{serviceName: serviceName, out: color.Output}
}

// Discard returns a logger that drops every line.  Tests use it.
func Discard() *Logger {
	return &Logger{serviceName: "test", out: io.Discard}
}

// WithDebug enables Debug output.
func (l *Logger) WithDebug(on bool) *Logger {
	l.debug = on
	return l
}

// Named returns a logger sharing the output of l under another service name.
func (l *Logger) Named(serviceName string) *Logger {
	return &Logger{serviceName: serviceName, debug: l.debug, out: l.out}
}

func (l *Logger) formatMessage(level, msg string) string {
	_, file, line, _ := runtime.Caller(3)
	return fmt.Sprintf("%s | %-7s | %s:%d | %s | %s",
		time.Now().Format("2006-01-02 15:04:05"),
		level,
		filepath.Base(file),
		line,
		l.serviceName,
		msg,
	)
}

func (l *Logger) write(c *color.Color, level, msg string, args ...interface{}) {
	if l == nil {
		return
	}
	line := l.formatMessage(level, fmt.Sprintf(msg, args...))
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = c.Fprintln(l.out, line)
}

func (l *Logger) Info(msg string, args ...interface{}) {
	l.write(infoColor, "INFO", msg, args...)
}

func (l *Logger) Success(msg string, args ...interface{}) {
	l.write(successColor, "SUCCESS", msg, args...)
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	l.write(warnColor, "WARN", msg, args...)
}

// Error logs msg with err appended and returns err wrapped with msg.
func (l *Logger) Error(msg string, err error, args ...interface{}) error {
	l.write(errorColor, "ERROR", msg+": %v", append(args, err)...)
	return fmt.Errorf("%s: %w", fmt.Sprintf(msg, args...), err)
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	if l == nil || !l.debug {
		return
	}
	l.write(debugColor, "DEBUG", msg, args...)
}
