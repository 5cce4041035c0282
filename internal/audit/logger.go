package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Stats is a consistent read of the logger's running counters.
type Stats struct {
	TotalsByType     map[string]int
	TotalsBySeverity map[Severity]int
	LastEventTime    time.Time
	Uptime           time.Duration
}

// Config configures a Logger.
type Config struct {
	Destinations  []Destination
	SeverityFloor Severity // defaults to Debug (everything passes)
	FlushInterval time.Duration
	BatchSize     int
}

// Logger is the AuditLogger: log_event → async queue → statistics/
// correlation update → cache → batched fan-out flush.
type Logger struct {
	destinations  []Destination
	severityFloor Severity
	flushInterval time.Duration
	batchSize     int

	startedAt time.Time

	mu             sync.Mutex
	cache          []Event
	totalsByType   map[string]int
	totalsBySev    map[Severity]int
	lastEventTime  time.Time
	correlations   map[string][]string
	closed         bool

	flushSignal chan struct{}
	done        chan struct{}
	wg          sync.WaitGroup
}

// NewLogger creates an AuditLogger and starts its background flush loop.
func NewLogger(cfg Config) *Logger {
	if cfg.SeverityFloor == "" {
		cfg.SeverityFloor = SeverityDebug
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	l := &Logger{
		startedAt:     time.Now(),
		destinations:  cfg.Destinations,
		severityFloor: cfg.SeverityFloor,
		flushInterval: cfg.FlushInterval,
		batchSize:     cfg.BatchSize,
		totalsByType:  make(map[string]int),
		totalsBySev:   make(map[Severity]int),
		correlations:  make(map[string][]string),
		flushSignal:   make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
	l.wg.Add(1)
	go l.flushLoop()
	return l
}

// Log enqueues an event, updates statistics and the correlation map, and
// signals the background flush loop. It never blocks on destination I/O
// and never drops an admitted event.
func (l *Logger) Log(_ context.Context, e Event) error {
	if !meetsFloor(e.Severity, l.severityFloor) {
		return nil
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLoggerClosed
	}

	l.totalsByType[e.EventType]++
	l.totalsBySev[e.Severity]++
	l.lastEventTime = e.Timestamp
	if e.CorrelationID != "" {
		l.correlations[e.CorrelationID] = append(l.correlations[e.CorrelationID], e.ID)
	}
	l.cache = append(l.cache, e)
	full := len(l.cache) >= l.batchSize
	l.mu.Unlock()

	if e.Severity == SeverityCritical {
		slog.Error("critical audit event", "id", e.ID, "type", e.EventType, "action", e.Action)
	}

	if full {
		l.signalFlush()
	}
	return nil
}

func (l *Logger) signalFlush() {
	select {
	case l.flushSignal <- struct{}{}:
	default:
	}
}

func (l *Logger) flushLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Flush(context.Background())
		case <-l.flushSignal:
			l.Flush(context.Background())
		case <-l.done:
			l.Flush(context.Background())
			return
		}
	}
}

// Flush fans the current cache out to every destination in append order,
// clearing the cache only once all writes succeed.
func (l *Logger) Flush(ctx context.Context) error {
	l.mu.Lock()
	if len(l.cache) == 0 {
		l.mu.Unlock()
		return nil
	}
	batch := make([]Event, len(l.cache))
	copy(batch, l.cache)
	l.mu.Unlock()

	var firstErr error
	for _, dest := range l.destinations {
		if err := dest.Write(ctx, batch); err != nil {
			slog.Error("audit destination write failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return firstErr
	}

	l.mu.Lock()
	l.cache = l.cache[len(batch):]
	l.mu.Unlock()
	return nil
}

// Close flushes remaining events and closes every destination.
func (l *Logger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	close(l.done)
	l.wg.Wait()

	var firstErr error
	for _, dest := range l.destinations {
		if err := dest.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stats returns a consistent snapshot of the logger's running counters.
func (l *Logger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	byType := make(map[string]int, len(l.totalsByType))
	for k, v := range l.totalsByType {
		byType[k] = v
	}
	bySev := make(map[Severity]int, len(l.totalsBySev))
	for k, v := range l.totalsBySev {
		bySev[k] = v
	}
	return Stats{
		TotalsByType:     byType,
		TotalsBySeverity: bySev,
		LastEventTime:    l.lastEventTime,
		Uptime:           time.Since(l.startedAt),
	}
}

// CorrelatedEventIDs returns the event ids sharing a correlation id.
func (l *Logger) CorrelatedEventIDs(correlationID string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.correlations[correlationID]))
	copy(out, l.correlations[correlationID])
	return out
}
