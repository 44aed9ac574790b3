// Package logsink provides a notification sink that only writes to the log.
// It is always registered so nudges are visible even without a push channel.
package logsink

import (
	"context"
	"log/slog"

	"focusguard/internal/sinks"
)

const SinkName = "log"

// Sink implements sinks.Sink by logging the notification
type Sink struct {
	logger *slog.Logger
}

// New creates a new log sink
func New(logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		logger: logger.With("sink", SinkName),
	}
}

// Name returns the sink name
func (s *Sink) Name() string {
	return SinkName
}

// Notify logs the message
func (s *Sink) Notify(ctx context.Context, packageID, message string) error {
	s.logger.Info("usage notification",
		"package_id", packageID,
		"message", message,
	)
	return nil
}

var _ sinks.Sink = (*Sink)(nil)
