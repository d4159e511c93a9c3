// Package logging provides the engine's leveled notifier, modeled
// directly on the teacher's internal/autoimport.Notifier interface and its
// stderrNotifier implementation — the teacher never reaches for
// zerolog/zap/slog, so neither does this module.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Notifier is the leveled logging interface every component depends on
// instead of a concrete logger type.
type Notifier interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// writerNotifier writes leveled, timestamped lines to an io.Writer. Debug
// lines are suppressed unless debug is true, matching the teacher's
// stderrNotifier.
type writerNotifier struct {
	mu    sync.Mutex
	out   io.Writer
	debug bool
}

// NewStderrNotifier writes to stderr only, for CLI invocations that never
// touch a log file (e.g. `mediaengine inhale`).
func NewStderrNotifier(debug bool) Notifier {
	return &writerNotifier{out: os.Stderr, debug: debug}
}

// NewFileNotifier writes to both stderr and a lumberjack-rotated file at
// path, the same log-rotation role lumberjack plays for any long-running
// daemon process: size-capped, age-capped, and compressed on rotation.
func NewFileNotifier(path string, debug bool) Notifier {
	rotated := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
	return &writerNotifier{out: io.MultiWriter(os.Stderr, rotated), debug: debug}
}

func (n *writerNotifier) write(level, format string, args ...interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ts := time.Now().UTC().Format(time.RFC3339)
	fmt.Fprintf(n.out, "%s %s "+format+"\n", append([]interface{}{ts, level}, args...)...)
}

func (n *writerNotifier) Debugf(format string, args ...interface{}) {
	if n.debug {
		n.write("DEBUG", format, args...)
	}
}

func (n *writerNotifier) Infof(format string, args ...interface{}) {
	n.write("INFO", format, args...)
}

func (n *writerNotifier) Warnf(format string, args ...interface{}) {
	n.write("WARN", format, args...)
}

func (n *writerNotifier) Errorf(format string, args ...interface{}) {
	n.write("ERROR", format, args...)
}

// NoOp is a Notifier that discards everything, useful in tests that don't
// care about log output.
type NoOp struct{}

func (NoOp) Debugf(string, ...interface{}) {}
func (NoOp) Infof(string, ...interface{})  {}
func (NoOp) Warnf(string, ...interface{})  {}
func (NoOp) Errorf(string, ...interface{}) {}
