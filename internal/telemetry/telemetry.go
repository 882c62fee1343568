// Package telemetry wires structured logging and Prometheus metrics on top
// of log/slog.
package telemetry

import (
	"log/slog"
	"os"

	"github.com/google/uuid"
)

type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

// NewLogger builds the process-wide logger. LOG_FORMAT defaults to json.
func NewLogger(format LogFormat) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler
	if format == LogFormatText {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// TaskLogger attaches (task_id, job_id, capability, domain_id) to every
// log line a Session emits.
func TaskLogger(base *slog.Logger, taskID uuid.UUID, jobID *string, capability string, domainID *uuid.UUID) *slog.Logger {
	job := ""
	if jobID != nil {
		job = *jobID
	}
	domain := ""
	if domainID != nil {
		domain = domainID.String()
	}
	return base.With(
		"task_id", taskID.String(),
		"job_id", job,
		"capability", capability,
		"domain_id", domain,
	)
}
