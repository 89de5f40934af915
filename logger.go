package meater

import "go.uber.org/zap"

// Logger denotes a generic logging facility
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// DefaultLogger denotes a default (zap-based) logger
type DefaultLogger struct {
	*zap.SugaredLogger
}

// NewDefaultLogger instantiates a new default logger, logging debug messages
// if requested
func NewDefaultLogger(debug bool) *DefaultLogger {
	var logger *zap.Logger
	if debug {
		logger = zap.Must(zap.NewDevelopment())
	} else {
		logger = zap.Must(zap.NewProduction())
	}

	return &DefaultLogger{logger.Sugar()}
}

// NullLogger denotes a logger discarding all messages
type NullLogger struct{}

// Debugf fulfils the Logger interface
func (l *NullLogger) Debugf(format string, args ...interface{}) {}

// Infof fulfils the Logger interface
func (l *NullLogger) Infof(format string, args ...interface{}) {}

// Warnf fulfils the Logger interface
func (l *NullLogger) Warnf(format string, args ...interface{}) {}

// Errorf fulfils the Logger interface
func (l *NullLogger) Errorf(format string, args ...interface{}) {}

// Fatalf fulfils the Logger interface
func (l *NullLogger) Fatalf(format string, args ...interface{}) {}
