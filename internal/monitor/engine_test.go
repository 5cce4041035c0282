package monitor

import (
	"context"
	"testing"

	"github.com/privarion/privarion/internal/backend"
)

// fakeHookBackend is a HookBackend double that reports itself as supported
// regardless of host OS, so engine tests run on any platform.
type fakeHookBackend struct {
	*backend.InMemoryHookBackend
}

func (f *fakeHookBackend) IsPlatformSupported() bool { return true }

func newFakeHookBackend() *fakeHookBackend {
	return &fakeHookBackend{InMemoryHookBackend: backend.NewInMemoryHookBackend()}
}

func TestStart_InstallsUnionOfEnabledRuleSyscalls(t *testing.T) {
	hooks := newFakeHookBackend()
	e := New(hooks, nil, nil)
	e.rules = map[string]MonitoringRule{
		"r1": {ID: "r1", Enabled: true, Condition: RuleCondition{Syscalls: []string{"gethostname"}}},
	}

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cfg := hooks.Configuration()
	if !cfg.Hooks["gethostname"] {
		t.Fatal("expected gethostname hook to be requested")
	}
	if cfg.Hooks["getuid"] {
		t.Fatal("did not expect getuid to be requested")
	}
}

func TestStop_RemovesAllHooks(t *testing.T) {
	hooks := newFakeHookBackend()
	e := New(hooks, nil, nil)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if len(hooks.Configuration().Hooks) != 0 {
		t.Fatal("expected hooks cleared after Stop")
	}
}

// TestIngest_PrivilegeEscalationRuleFires covers the seeded
// privilege-escalation rule and verifies output interpolation substitutes
// every token exactly once.
func TestIngest_PrivilegeEscalationRuleFires(t *testing.T) {
	e := New(newFakeHookBackend(), nil, nil)
	ev := SyscallEvent{Syscall: "setuid", PID: 4242, ProcessName: "suspicious", UID: 0}

	alerts := e.Ingest(ev)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d: %+v", len(alerts), alerts)
	}
	a := alerts[0]
	if a.RuleID != "privilege-escalation" {
		t.Fatalf("unexpected rule matched: %s", a.RuleID)
	}
	want := "suspicious (pid 4242, uid 0) called setuid"
	if a.Message != want {
		t.Fatalf("interpolated message = %q, want %q", a.Message, want)
	}
}

func TestIngest_ExceptionSuppressesMatch(t *testing.T) {
	e := New(newFakeHookBackend(), nil, nil)
	e.rules = map[string]MonitoringRule{
		"net": {
			ID: "net", Enabled: true, Priority: PriorityNotice,
			Condition: RuleCondition{
				Syscalls:     []string{"connect"},
				AllowedPorts: []int{22},
				Exceptions:   []Exception{{Fields: []string{"proc.name"}, Values: []string{"launchd"}}},
			},
			Output: "%proc.name connected on %network.port",
		},
	}

	suppressed := e.Ingest(SyscallEvent{
		Syscall: "connect", ProcessName: "launchd",
		Network: &NetworkInfo{RemotePort: 22},
	})
	if len(suppressed) != 0 {
		t.Fatalf("expected exception to suppress the match, got %+v", suppressed)
	}

	fired := e.Ingest(SyscallEvent{
		Syscall: "connect", ProcessName: "sshd",
		Network: &NetworkInfo{RemotePort: 22},
	})
	if len(fired) != 1 {
		t.Fatalf("expected non-exempt process to fire, got %+v", fired)
	}
}

func TestIngest_TracksStatsAcrossEvents(t *testing.T) {
	e := New(newFakeHookBackend(), nil, nil)
	e.rules = map[string]MonitoringRule{
		"r": {ID: "r", Enabled: true, Condition: RuleCondition{Syscalls: []string{"open"}}, Output: "hit"},
	}

	e.Ingest(SyscallEvent{Syscall: "open", FilePath: "/tmp/a"})
	e.Ingest(SyscallEvent{Syscall: "close", FilePath: "/tmp/a"})

	snap := e.Stats()
	if snap.TotalEvents != 2 {
		t.Fatalf("expected 2 total events, got %d", snap.TotalEvents)
	}
	if snap.RuleMatches != 1 {
		t.Fatalf("expected 1 rule match, got %d", snap.RuleMatches)
	}
}

func TestRemoveRule_UnknownIDFails(t *testing.T) {
	e := New(newFakeHookBackend(), nil, nil)
	if err := e.RemoveRule("nope"); err == nil {
		t.Fatal("expected error removing unknown rule")
	}
}
