package audit

import "context"

// Destination is one audit sink: File, System, Syslog,
// Network, or Database. Write receives a flush batch in append order.
type Destination interface {
	Write(ctx context.Context, batch []Event) error
	Close() error
}

// Kind names a destination type for configuration.
type Kind string

const (
	KindFile     Kind = "File"
	KindSystem   Kind = "System"
	KindSyslog   Kind = "Syslog"
	KindNetwork  Kind = "Network"
	KindDatabase Kind = "Database"
)
