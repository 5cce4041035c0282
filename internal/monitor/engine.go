package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/privarion/privarion/internal/backend"
	"github.com/privarion/privarion/internal/perr"
)

// Engine is the SyscallMonitoringEngine: owns a rule set, evaluates an
// incoming event stream against it, and installs/removes the union of
// required hooks on a HookBackend.
type Engine struct {
	hooks backend.HookBackend

	mu      sync.RWMutex
	rules   map[string]MonitoringRule
	started bool

	stats   Stats
	onAlert func(Alert)
}

// New creates a SyscallMonitoringEngine seeded with rules. A nil rules
// slice falls back to DefaultRules.
func New(hooks backend.HookBackend, rules []MonitoringRule, onAlert func(Alert)) *Engine {
	if rules == nil {
		rules = DefaultRules()
	}
	e := &Engine{
		hooks:   hooks,
		rules:   make(map[string]MonitoringRule),
		onAlert: onAlert,
	}
	for _, r := range rules {
		e.rules[r.ID] = r
	}
	return e
}

// ReplaceRules atomically swaps the loaded rule set, for hot-reload when
// the backing rules file changes on disk.
func (e *Engine) ReplaceRules(rules []MonitoringRule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = make(map[string]MonitoringRule, len(rules))
	for _, r := range rules {
		e.rules[r.ID] = r
	}
}

// AddRule inserts or replaces a rule by ID.
func (e *Engine) AddRule(r MonitoringRule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules[r.ID] = r
}

// RemoveRule deletes a rule by ID. Returns RuleNotFound if absent.
func (e *Engine) RemoveRule(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rules[id]; !ok {
		return perr.WithID(perr.CodeRuleNotFound, "monitoring rule not found", id)
	}
	delete(e.rules, id)
	return nil
}

// Rules returns the current rule set.
func (e *Engine) Rules() []MonitoringRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]MonitoringRule, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r)
	}
	return out
}

// Start installs hooks for the union of syscalls referenced by enabled
// rules. Unsupported syscalls are logged, not treated as an error.
func (e *Engine) Start(ctx context.Context) error {
	if !e.hooks.IsPlatformSupported() {
		return perr.New(perr.CodeUnsupported, "syscall hook backend is not supported on this platform")
	}
	if err := e.hooks.Initialize(ctx); err != nil {
		return err
	}

	required := map[string]bool{}
	for _, r := range e.Rules() {
		if !r.Enabled {
			continue
		}
		for _, sc := range r.Condition.Syscalls {
			required[sc] = true
		}
	}

	cfg := backend.SyscallHookConfiguration{Hooks: map[string]bool{}}
	for _, sc := range backend.SupportedHookSyscalls {
		if required[sc] {
			cfg.Hooks[sc] = true
		}
	}
	if err := e.hooks.UpdateConfiguration(cfg); err != nil {
		return err
	}

	statuses, err := e.hooks.InstallConfiguredHooks(ctx)
	if err != nil {
		return err
	}
	for sc, st := range statuses {
		if st == backend.InstallStatusNotSupported {
			slog.Info("syscall hook not supported", "syscall", sc)
		}
	}
	for sc := range required {
		if _, ok := statuses[sc]; !ok {
			slog.Info("syscall hook not supported", "syscall", sc)
		}
	}

	e.mu.Lock()
	e.started = true
	e.mu.Unlock()
	return nil
}

// Stop removes every installed hook.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	e.started = false
	e.mu.Unlock()
	return e.hooks.RemoveAllHooks(ctx)
}

// Ingest evaluates one event against every enabled rule and emits an alert
// per match.
func (e *Engine) Ingest(ev SyscallEvent) []Alert {
	start := time.Now()
	var alerts []Alert

	for _, r := range e.Rules() {
		if !r.Enabled {
			continue
		}
		if !r.Matches(ev) {
			continue
		}
		a := Alert{
			RuleID:   r.ID,
			RuleName: r.Name,
			Priority: r.Priority,
			Message:  interpolate(r.Output, ev),
			Event:    ev,
		}
		alerts = append(alerts, a)
		slog.Log(context.Background(), priorityToLogLevel(r.Priority), "syscall monitoring rule matched",
			"rule_id", r.ID, "syscall", ev.Syscall, "proc_name", ev.ProcessName)
		if e.onAlert != nil {
			e.onAlert(a)
		}
	}

	e.stats.recordEvent(start, len(alerts), time.Since(start))
	return alerts
}

// Stats returns a consistent snapshot of the engine's running statistics.
func (e *Engine) Stats() Snapshot { return e.stats.snapshot() }

func priorityToLogLevel(p Priority) slog.Level {
	switch p {
	case PriorityEmergency, PriorityAlert, PriorityCritical:
		return slog.LevelError
	case PriorityError, PriorityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
