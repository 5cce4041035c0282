package audit

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recordingDestination struct {
	mu      sync.Mutex
	batches [][]Event
}

func (d *recordingDestination) Write(_ context.Context, batch []Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]Event, len(batch))
	copy(cp, batch)
	d.batches = append(d.batches, cp)
	return nil
}

func (d *recordingDestination) Close() error { return nil }

func (d *recordingDestination) allEvents() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Event
	for _, b := range d.batches {
		out = append(out, b...)
	}
	return out
}

func TestLog_FlushesAtBatchSize(t *testing.T) {
	dest := &recordingDestination{}
	l := NewLogger(Config{Destinations: []Destination{dest}, FlushInterval: time.Hour, BatchSize: 3})
	defer l.Close()

	for i := 0; i < 3; i++ {
		e := New(time.Now(), "test.event", "test", "noop", SeverityInfo, OutcomeSuccess)
		if err := l.Log(context.Background(), e); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	deadline := time.Now().Add(time.Second)
	for len(dest.allEvents()) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := len(dest.allEvents()); got != 3 {
		t.Fatalf("expected 3 flushed events, got %d", got)
	}
}

func TestLog_SeverityFloorDropsLessSevere(t *testing.T) {
	dest := &recordingDestination{}
	l := NewLogger(Config{Destinations: []Destination{dest}, SeverityFloor: SeverityWarning, FlushInterval: time.Hour, BatchSize: 100})
	defer l.Close()

	l.Log(context.Background(), New(time.Now(), "t", "s", "a", SeverityInfo, OutcomeSuccess))
	l.Log(context.Background(), New(time.Now(), "t", "s", "a", SeverityCritical, OutcomeSuccess))

	l.Flush(context.Background())
	events := dest.allEvents()
	if len(events) != 1 {
		t.Fatalf("expected only the critical event to pass the floor, got %d", len(events))
	}
	if events[0].Severity != SeverityCritical {
		t.Fatalf("unexpected event passed floor: %+v", events[0])
	}
}

func TestLog_TracksCorrelationIDs(t *testing.T) {
	dest := &recordingDestination{}
	l := NewLogger(Config{Destinations: []Destination{dest}, FlushInterval: time.Hour, BatchSize: 100})
	defer l.Close()

	e1 := New(time.Now(), "t", "s", "a", SeverityInfo, OutcomeSuccess)
	e1.CorrelationID = "x"
	e2 := New(time.Now(), "t", "s", "a", SeverityInfo, OutcomeSuccess)
	e2.CorrelationID = "x"

	l.Log(context.Background(), e1)
	l.Log(context.Background(), e2)

	ids := l.CorrelatedEventIDs("x")
	if len(ids) != 2 {
		t.Fatalf("expected 2 correlated ids, got %d", len(ids))
	}
}

func TestLog_RejectsAfterClose(t *testing.T) {
	l := NewLogger(Config{FlushInterval: time.Hour})
	l.Close()
	if err := l.Log(context.Background(), New(time.Now(), "t", "s", "a", SeverityInfo, OutcomeSuccess)); err != ErrLoggerClosed {
		t.Fatalf("expected ErrLoggerClosed, got %v", err)
	}
}

func TestStats_AggregatesByTypeAndSeverity(t *testing.T) {
	l := NewLogger(Config{FlushInterval: time.Hour})
	defer l.Close()

	l.Log(context.Background(), New(time.Now(), "identity.spoof", "identity", "a", SeverityNotice, OutcomeSuccess))
	l.Log(context.Background(), New(time.Now(), "identity.spoof", "identity", "a", SeverityNotice, OutcomeSuccess))
	l.Log(context.Background(), New(time.Now(), "permission.evaluate", "permission", "a", SeverityWarning, OutcomeDenied))

	stats := l.Stats()
	if stats.TotalsByType["identity.spoof"] != 2 {
		t.Fatalf("expected 2 identity.spoof events, got %d", stats.TotalsByType["identity.spoof"])
	}
	if stats.TotalsBySeverity[SeverityWarning] != 1 {
		t.Fatalf("expected 1 warning event, got %d", stats.TotalsBySeverity[SeverityWarning])
	}
}
