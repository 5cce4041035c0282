package identity

import (
	"context"
	"testing"

	"github.com/privarion/privarion/internal/backend"
)

func newTestSpoofManager(t *testing.T) (*Manager, *backend.InMemoryHookBackend) {
	t.Helper()
	cmd := backend.NewFakeCommandExecutor()
	cmd.Responses["id -u"] = backend.CommandResult{Stdout: "0\n"}
	cmd.Responses["hostname"] = backend.CommandResult{Stdout: "original-host\n"}

	rm, err := NewRollbackManager(t.TempDir(), cmd)
	if err != nil {
		t.Fatalf("NewRollbackManager: %v", err)
	}
	hooks := backend.NewInMemoryHookBackend()
	engine := NewEngine(cmd)
	return NewManager(hooks, cmd, rm, engine), hooks
}

// TestSpoof_HostnameEnablesHookAndFakeData covers spoofing a virtualizable type via hook fake data.
func TestSpoof_HostnameEnablesHookAndFakeData(t *testing.T) {
	m, hooks := newTestSpoofManager(t)
	profile := NewStaticProfile()
	profile.Strategies[TypeHostname] = Strategy{Kind: StrategyCustom, Custom: "dev-1234"}

	rollbackID, err := m.Spoof(context.Background(), profile, SpoofOptions{Types: []Type{TypeHostname}})
	if err != nil {
		t.Fatalf("Spoof: %v", err)
	}
	if rollbackID == "" {
		t.Fatalf("expected a rollback id")
	}

	cfg := hooks.Configuration()
	if !cfg.Hooks["gethostname"] {
		t.Fatalf("expected gethostname hook enabled")
	}
	if cfg.FakeData.Hostname != "dev-1234" {
		t.Fatalf("expected fake hostname dev-1234, got %q", cfg.FakeData.Hostname)
	}

	if err := m.Restore(context.Background(), []Type{TypeHostname}); err != nil {
		t.Fatalf("Restore: %v", err)
	}
}

func TestSpoof_RequiresRootPrivilege(t *testing.T) {
	cmd := backend.NewFakeCommandExecutor()
	cmd.Responses["id -u"] = backend.CommandResult{Stdout: "501\n"}
	rm, err := NewRollbackManager(t.TempDir(), cmd)
	if err != nil {
		t.Fatalf("NewRollbackManager: %v", err)
	}
	m := NewManager(backend.NewInMemoryHookBackend(), cmd, rm, NewEngine(cmd))

	_, err = m.Spoof(context.Background(), NewStaticProfile(), SpoofOptions{Types: []Type{TypeHostname}})
	if err == nil {
		t.Fatalf("expected non-root caller to be rejected")
	}
}
