package audit

import "context"

// EventLogger is the interface components depend on, so tests and
// audit-disabled deployments can substitute NopLogger for *Logger.
type EventLogger interface {
	Log(ctx context.Context, e Event) error
	Flush(ctx context.Context) error
	Close() error
}

// NopLogger discards every event.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (NopLogger) Log(context.Context, Event) error { return nil }
func (NopLogger) Flush(context.Context) error       { return nil }
func (NopLogger) Close() error                      { return nil }
