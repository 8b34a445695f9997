package client

import (
	"fmt"
	"log/slog"
)

// RequestLogger is the interface used by [Client] and [WebhookListener] for
// logging HTTP requests, dropped webhook deliveries and errors. Implement
// this interface to integrate with your logging library and supply the
// implementation via [WithRequestLogger] or [WithListenerLogger].
//
// The method set matches resty's logger, so the same value is handed to the
// underlying resty clients.
type RequestLogger interface {
	Errorf(format string, v ...any)
	Warnf(format string, v ...any)
	Debugf(format string, v ...any)
}

// NoopLogger is a [RequestLogger] that silently discards all log messages.
// It is the default logger used when no logger is provided.
type NoopLogger struct{}

func (l *NoopLogger) Errorf(_ string, _ ...any) {}
func (l *NoopLogger) Warnf(_ string, _ ...any)  {}
func (l *NoopLogger) Debugf(_ string, _ ...any) {}

// SlogLogger adapts a [slog.Logger] to [RequestLogger].
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger returns a [RequestLogger] writing to logger. A nil logger
// falls back to [slog.Default].
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger}
}

func (l *SlogLogger) Errorf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

func (l *SlogLogger) Warnf(format string, v ...any) {
	l.logger.Warn(fmt.Sprintf(format, v...))
}

func (l *SlogLogger) Debugf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}
