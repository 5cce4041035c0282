package launcher

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/privarion/privarion/internal/backend"
	"github.com/privarion/privarion/internal/ephemeral"
	"github.com/privarion/privarion/internal/perr"
)

func newTestLauncher(t *testing.T) *Launcher {
	t.Helper()
	mgr := ephemeral.NewManager(ephemeral.Config{
		BasePath:           t.TempDir(),
		MaxEphemeralSpaces: 4,
		TestMode:           true,
	}, backend.NewFakeSnapshotBackend(), backend.NewFakeCommandExecutor())
	return New(mgr, "PRIVARION")
}

func TestLaunchIn_UnknownSpace(t *testing.T) {
	l := newTestLauncher(t)
	_, err := l.LaunchIn(context.Background(), "/bin/true", nil, uuid.New(), LaunchConfiguration{})
	if !perr.Is(err, perr.CodeEphemeralSpaceNotFound) {
		t.Fatalf("expected CodeEphemeralSpaceNotFound, got %v", err)
	}
}

func TestLaunchIn_MissingApplication(t *testing.T) {
	l := newTestLauncher(t)
	space, err := l.ephemeral.CreateSpace(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("CreateSpace: %v", err)
	}
	_, err = l.LaunchIn(context.Background(), "/no/such/binary", nil, space.ID, LaunchConfiguration{})
	if !perr.Is(err, perr.CodeApplicationNotFound) {
		t.Fatalf("expected CodeApplicationNotFound, got %v", err)
	}
}

func TestLaunchAndTerminate_Idempotent(t *testing.T) {
	l := newTestLauncher(t)
	ctx := context.Background()
	space, err := l.ephemeral.CreateSpace(ctx, nil, nil)
	if err != nil {
		t.Fatalf("CreateSpace: %v", err)
	}

	handle, err := l.LaunchIn(ctx, "/bin/sleep", []string{"5"}, space.ID, LaunchConfiguration{RedirectOutput: true})
	if err != nil {
		t.Skipf("no /bin/sleep available in this environment: %v", err)
	}

	r1, err := l.Terminate(ctx, handle.ID)
	if err != nil {
		t.Fatalf("first Terminate: %v", err)
	}
	r2, err := l.Terminate(ctx, handle.ID)
	if err != nil {
		t.Fatalf("second Terminate: %v", err)
	}
	if r1.ExitCode != r2.ExitCode || r1.Handle.ID != r2.Handle.ID {
		t.Fatalf("expected equivalent results across repeated terminate, got %+v vs %+v", r1, r2)
	}
	if _, ok := l.ephemeral.GetInfo(space.ID); ok {
		t.Fatalf("expected bound space to be destroyed after terminate")
	}
}

func TestLaunchIn_NaturalExit(t *testing.T) {
	l := newTestLauncher(t)
	ctx := context.Background()
	space, err := l.ephemeral.CreateSpace(ctx, nil, nil)
	if err != nil {
		t.Fatalf("CreateSpace: %v", err)
	}

	handle, err := l.LaunchIn(ctx, "/bin/true", nil, space.ID, LaunchConfiguration{KillOnParentExit: true})
	if err != nil {
		t.Skipf("no /bin/true available in this environment: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		running := l.GetRunning()
		found := false
		for _, h := range running {
			if h.ID == handle.ID {
				found = true
			}
		}
		if !found {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("process did not complete in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
