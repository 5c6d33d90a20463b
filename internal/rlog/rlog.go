// Package rlog is the leveled logging facade used by every worker
// component. It wraps logrus the way runsc/cli wires its own log
// package: one process-wide writer, a configurable level, and an
// optional file sink alongside stderr.
package rlog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is a leveled, structured logger bound to a component name.
type Logger struct {
	entry *logrus.Entry
}

var root = logrus.New()

func init() {
	root.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	root.SetOutput(os.Stderr)
	root.SetLevel(logrus.InfoLevel)
}

// SetLevel sets the process-wide minimum log level by name ("debug",
// "info", "warning", "error").
func SetLevel(name string) error {
	lvl, err := logrus.ParseLevel(name)
	if err != nil {
		return err
	}
	root.SetLevel(lvl)
	return nil
}

// SetOutput adds a second sink (typically an append-mode log file)
// alongside stderr. Passing nil restores stderr-only output.
func SetOutput(w io.Writer) {
	if w == nil {
		root.SetOutput(os.Stderr)
		return
	}
	root.SetOutput(io.MultiWriter(os.Stderr, w))
}

// New returns a Logger tagged with component, e.g. "sandbox", "worker-3".
func New(component string) *Logger {
	return &Logger{entry: root.WithField("component", component)}
}

// With returns a derived Logger carrying an additional structured field,
// e.g. logger.With("fight_id", id).
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *Logger) Warningf(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
