// Package audit implements the AuditLogger: a batching, multi-destination
// sink for structured privacy-enforcement events.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Severity is the audit severity scale, Emergency highest.
type Severity string

const (
	SeverityEmergency Severity = "Emergency"
	SeverityAlert     Severity = "Alert"
	SeverityCritical  Severity = "Critical"
	SeverityError     Severity = "Error"
	SeverityWarning   Severity = "Warning"
	SeverityNotice    Severity = "Notice"
	SeverityInfo      Severity = "Info"
	SeverityDebug     Severity = "Debug"
)

var severityRank = map[Severity]int{
	SeverityEmergency: 0,
	SeverityAlert:     1,
	SeverityCritical:  2,
	SeverityError:     3,
	SeverityWarning:   4,
	SeverityNotice:    5,
	SeverityInfo:      6,
	SeverityDebug:     7,
}

// meetsFloor reports whether s is at least as severe as floor (lower rank
// number = more severe).
func meetsFloor(s, floor Severity) bool {
	sr, ok1 := severityRank[s]
	fr, ok2 := severityRank[floor]
	if !ok1 || !ok2 {
		return true
	}
	return sr <= fr
}

// Outcome is the result of the action an event describes.
type Outcome string

const (
	OutcomeSuccess Outcome = "Success"
	OutcomeFailure Outcome = "Failure"
	OutcomeDenied  Outcome = "Denied"
)

// UserContext identifies the human or service principal behind an event.
type UserContext struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username,omitempty"`
}

// ProcessContext identifies the process behind an event.
type ProcessContext struct {
	PID  int    `json:"pid"`
	Name string `json:"name,omitempty"`
}

// NetworkContext captures the network side of an event, when applicable.
type NetworkContext struct {
	RemoteAddress string `json:"remoteAddress,omitempty"`
	RemotePort    int    `json:"remotePort,omitempty"`
	Protocol      string `json:"protocol,omitempty"`
}

// Event is the audit record schema persisted at every destination
//: `{id, timestamp, eventType, severity, source, action,
// resource?, user?, process?, network?, outcome, details, correlationId?}`.
type Event struct {
	ID            string          `json:"id"`
	Timestamp     time.Time       `json:"timestamp"`
	EventType     string          `json:"eventType"`
	Severity      Severity        `json:"severity"`
	Source        string          `json:"source"`
	Action        string          `json:"action"`
	Resource      string          `json:"resource,omitempty"`
	User          *UserContext    `json:"user,omitempty"`
	Process       *ProcessContext `json:"process,omitempty"`
	Network       *NetworkContext `json:"network,omitempty"`
	Outcome       Outcome         `json:"outcome"`
	Details       map[string]any  `json:"details,omitempty"`
	CorrelationID string          `json:"correlationId,omitempty"`
}

// New creates an Event with a fresh id and the given timestamp.
func New(ts time.Time, eventType, source, action string, severity Severity, outcome Outcome) Event {
	return Event{
		ID:        uuid.New().String(),
		Timestamp: ts,
		EventType: eventType,
		Severity:  severity,
		Source:    source,
		Action:    action,
		Outcome:   outcome,
		Details:   map[string]any{},
	}
}

// MarshalJSON renders Timestamp as ISO-8601.
func (e Event) MarshalJSON() ([]byte, error) {
	type alias Event
	return json.Marshal(&struct {
		Timestamp string `json:"timestamp"`
		alias
	}{
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		alias:     alias(e),
	})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	type alias Event
	aux := &struct {
		Timestamp string `json:"timestamp"`
		*alias
	}{alias: (*alias)(e)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if aux.Timestamp != "" {
		t, err := time.Parse(time.RFC3339Nano, aux.Timestamp)
		if err != nil {
			return err
		}
		e.Timestamp = t
	}
	return nil
}
