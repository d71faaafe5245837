// Package logging provides core.Logger adapters for common logging
// backends.
package logging

import (
	"github.com/sirupsen/logrus"

	"github.com/taskforge/go-exec-engine/core"
)

// LogrusLogger adapts a logrus logger to core.Logger.
type LogrusLogger struct {
	logger *logrus.Logger
}

var _ core.Logger = (*LogrusLogger)(nil)

// NewLogrusLogger wraps the given logrus logger. A nil argument uses the
// logrus standard logger.
func NewLogrusLogger(logger *logrus.Logger) *LogrusLogger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogrusLogger{logger: logger}
}

func (l *LogrusLogger) Debug(msg string, fields ...core.Field) {
	l.logger.WithFields(toLogrusFields(fields)).Debug(msg)
}

func (l *LogrusLogger) Info(msg string, fields ...core.Field) {
	l.logger.WithFields(toLogrusFields(fields)).Info(msg)
}

func (l *LogrusLogger) Warn(msg string, fields ...core.Field) {
	l.logger.WithFields(toLogrusFields(fields)).Warn(msg)
}

func (l *LogrusLogger) Error(msg string, fields ...core.Field) {
	l.logger.WithFields(toLogrusFields(fields)).Error(msg)
}

func toLogrusFields(fields []core.Field) logrus.Fields {
	if len(fields) == 0 {
		return nil
	}
	out := make(logrus.Fields, len(fields))
	for _, f := range fields {
		out[f.Key] = f.Value
	}
	return out
}
