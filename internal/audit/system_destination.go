package audit

import (
	"context"
	"log/slog"
)

// SystemDestination emits events to the process-wide structured logger
//.
type SystemDestination struct{}

func NewSystemDestination() *SystemDestination { return &SystemDestination{} }

func (d *SystemDestination) Write(ctx context.Context, batch []Event) error {
	for _, e := range batch {
		slog.Log(ctx, severityToLogLevel(e.Severity), "audit event",
			"id", e.ID, "type", e.EventType, "action", e.Action, "outcome", e.Outcome,
			"source", e.Source, "resource", e.Resource)
	}
	return nil
}

func (d *SystemDestination) Close() error { return nil }

func severityToLogLevel(s Severity) slog.Level {
	switch s {
	case SeverityEmergency, SeverityAlert, SeverityCritical:
		return slog.LevelError
	case SeverityError, SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
