package logging

import (
	"go.uber.org/zap"
)

// Logging is a simple mixin for types with logging capability.
type Logging struct {
	logger  *zap.Logger
	sugared *zap.SugaredLogger
}

// NewLogging is a convenience method for constructing a Logging.
func NewLogging(logger *zap.Logger) Logging {
	return Logging{
		logger:  logger,
		sugared: logger.Sugar(),
	}
}

// Logger returns the raw logger.
func (l *Logging) L() *zap.Logger {
	return l.logger
}

// Sugar returns the sugared logger.
func (l *Logging) S() *zap.SugaredLogger {
	return l.sugared
}
