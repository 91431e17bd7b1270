package transport

import (
	"fmt"

	"github.com/pion/logging"

	"github.com/1ureka/piviewer/internal/util"
)

// loggerFactory hands pion a logger per scope (ice, dtls, pc, ...). Trace is
// always dropped; debug and info only pass when debug is set.
type loggerFactory struct {
	debug bool
}

// NewLoggerFactory returns a pion LoggerFactory writing to the application
// logger.
func NewLoggerFactory(debug bool) logging.LoggerFactory {
	return &loggerFactory{debug: debug}
}

func (f *loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &scopedLogger{prefix: "[pion/" + scope + "] ", debug: f.debug}
}

type scopedLogger struct {
	prefix string
	debug  bool
}

func (l *scopedLogger) Trace(string)                  {}
func (l *scopedLogger) Tracef(string, ...interface{}) {}

func (l *scopedLogger) Debug(msg string) {
	if l.debug {
		util.LogDebug("%s%s", l.prefix, msg)
	}
}

func (l *scopedLogger) Debugf(format string, args ...interface{}) {
	l.Debug(fmt.Sprintf(format, args...))
}

func (l *scopedLogger) Info(msg string) {
	if l.debug {
		util.LogDebug("%s%s", l.prefix, msg)
	}
}

func (l *scopedLogger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

func (l *scopedLogger) Warn(msg string) {
	util.LogWarning("%s%s", l.prefix, msg)
}

func (l *scopedLogger) Warnf(format string, args ...interface{}) {
	l.Warn(fmt.Sprintf(format, args...))
}

func (l *scopedLogger) Error(msg string) {
	util.LogError("%s%s", l.prefix, msg)
}

func (l *scopedLogger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}
