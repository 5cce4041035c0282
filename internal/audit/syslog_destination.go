//go:build !windows

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/syslog"
)

// SyslogDestination forwards events to the host syslog daemon. There is no
// ecosystem syslog client in the dependency pack; log/syslog is the
// standard library's own client for this exact protocol, so no
// third-party substitute applies here.
type SyslogDestination struct {
	w *syslog.Writer
}

// NewSyslogDestination dials the local syslog daemon under the given tag.
func NewSyslogDestination(tag string) (*SyslogDestination, error) {
	w, err := syslog.New(syslog.LOG_NOTICE|syslog.LOG_DAEMON, tag)
	if err != nil {
		return nil, fmt.Errorf("connecting to syslog: %w", err)
	}
	return &SyslogDestination{w: w}, nil
}

func (d *SyslogDestination) Write(_ context.Context, batch []Event) error {
	for _, e := range batch {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if err := d.writeAtSeverity(e.Severity, string(data)); err != nil {
			return err
		}
	}
	return nil
}

func (d *SyslogDestination) writeAtSeverity(s Severity, msg string) error {
	switch s {
	case SeverityEmergency:
		return d.w.Emerg(msg)
	case SeverityAlert:
		return d.w.Alert(msg)
	case SeverityCritical:
		return d.w.Crit(msg)
	case SeverityError:
		return d.w.Err(msg)
	case SeverityWarning:
		return d.w.Warning(msg)
	case SeverityNotice:
		return d.w.Notice(msg)
	case SeverityDebug:
		return d.w.Debug(msg)
	default:
		return d.w.Info(msg)
	}
}

func (d *SyslogDestination) Close() error { return d.w.Close() }
