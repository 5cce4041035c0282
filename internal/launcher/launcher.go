package launcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/privarion/privarion/internal/ephemeral"
	"github.com/privarion/privarion/internal/perr"
)

// SecurityValidator is invoked before every launch; the default is a no-op.
type SecurityValidator func(appPath string, cfg LaunchConfiguration) error

func defaultSecurityValidator(string, LaunchConfiguration) error { return nil }

type runningProcess struct {
	handle      ProcessHandle
	cmd         *exec.Cmd
	cancel      context.CancelFunc
	done        chan struct{}
	result      *ProcessResult
	stdoutBuf   *bytes.Buffer
	stderrBuf   *bytes.Buffer
	cleanupOnce sync.Once
}

// Launcher is the ApplicationLauncher: it spawns processes bound to
// ephemeral spaces, enforces execution timeouts, and cascades space
// destruction on completion.
type Launcher struct {
	ephemeral *ephemeral.Manager
	envPrefix string
	validator SecurityValidator

	mu      sync.Mutex
	running map[uuid.UUID]*runningProcess
}

// New creates a Launcher bound to the given EphemeralFileSystemManager.
// envPrefix names the environment variable family set for children, e.g.
// "PRIVARION" yields PRIVARION_EPHEMERAL_SPACE / PRIVARION_EPHEMERAL_PATH.
func New(mgr *ephemeral.Manager, envPrefix string) *Launcher {
	if envPrefix == "" {
		envPrefix = "PRIVARION"
	}
	return &Launcher{
		ephemeral: mgr,
		envPrefix: envPrefix,
		validator: defaultSecurityValidator,
		running:   make(map[uuid.UUID]*runningProcess),
	}
}

// SetSecurityValidator overrides the no-op security validation hook.
func (l *Launcher) SetSecurityValidator(v SecurityValidator) { l.validator = v }

// LaunchInNewSpace creates a fresh ephemeral space and launches appPath
// inside it.
func (l *Launcher) LaunchInNewSpace(ctx context.Context, appPath string, args []string, cfg LaunchConfiguration) (ProcessHandle, error) {
	space, err := l.ephemeral.CreateSpace(ctx, nil, &appPath)
	if err != nil {
		return ProcessHandle{}, err
	}
	return l.LaunchIn(ctx, appPath, args, space.ID, cfg)
}

// LaunchIn spawns appPath inside the named space.
func (l *Launcher) LaunchIn(ctx context.Context, appPath string, args []string, spaceID uuid.UUID, cfg LaunchConfiguration) (ProcessHandle, error) {
	space, ok := l.ephemeral.GetInfo(spaceID)
	if !ok {
		return ProcessHandle{}, perr.WithID(perr.CodeEphemeralSpaceNotFound, "launch target space not found", spaceID.String())
	}

	info, err := os.Stat(appPath)
	if err != nil {
		return ProcessHandle{}, perr.WithID(perr.CodeApplicationNotFound, "application path does not exist", appPath)
	}
	if info.IsDir() || info.Mode()&0o111 == 0 {
		return ProcessHandle{}, perr.WithID(perr.CodeApplicationNotExecutable, "application path is not executable", appPath)
	}

	if err := l.validator(appPath, cfg); err != nil {
		return ProcessHandle{}, perr.Wrap(perr.CodeSecurityViolation, "launch rejected by security validator", appPath, err)
	}

	env := l.composeEnv(space, cfg)
	workDir := space.MountPath
	if cfg.WorkingDir != nil {
		workDir = *cfg.WorkingDir
	}

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, appPath, args...)
	cmd.Dir = workDir
	cmd.Env = env

	var stdoutBuf, stderrBuf bytes.Buffer
	if cfg.RedirectOutput {
		cmd.Stdout = &stdoutBuf
		cmd.Stderr = &stderrBuf
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return ProcessHandle{}, perr.Wrap(perr.CodeProcessLaunchFailed, "failed to start process", appPath, err)
	}

	handle := ProcessHandle{
		ID:         uuid.New(),
		PID:        cmd.Process.Pid,
		SpaceID:    spaceID,
		AppPath:    appPath,
		LaunchedAt: time.Now(),
		Config:     cfg,
	}

	rp := &runningProcess{
		handle:    handle,
		cmd:       cmd,
		cancel:    cancel,
		done:      make(chan struct{}),
		stdoutBuf: &stdoutBuf,
		stderrBuf: &stderrBuf,
	}

	l.mu.Lock()
	l.running[handle.ID] = rp
	l.mu.Unlock()

	go l.waitForExit(ctx, rp)

	if cfg.MaxExecTimeSeconds > 0 {
		go l.armTimeout(ctx, handle.ID, time.Duration(cfg.MaxExecTimeSeconds)*time.Second)
	}

	slog.Info("launched process", "handle_id", handle.ID, "pid", handle.PID, "space_id", spaceID)
	return handle, nil
}

func (l *Launcher) composeEnv(space ephemeral.Space, cfg LaunchConfiguration) []string {
	var env []string
	if cfg.InheritEnv {
		env = os.Environ()
	}
	for k, v := range cfg.CustomEnv {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	env = append(env,
		fmt.Sprintf("%s_EPHEMERAL_SPACE=%s", l.envPrefix, space.ID),
		fmt.Sprintf("%s_EPHEMERAL_PATH=%s", l.envPrefix, space.MountPath),
		"TMPDIR="+filepath.Join(space.MountPath, "tmp"),
		"HOME="+filepath.Join(space.MountPath, "home"),
		"PATH="+filepath.Join(space.MountPath, "bin")+":/usr/bin:/bin:/usr/sbin:/sbin",
	)
	return env
}

func (l *Launcher) waitForExit(ctx context.Context, rp *runningProcess) {
	start := rp.handle.LaunchedAt
	err := rp.cmd.Wait()
	elapsed := time.Since(start)

	exitCode := 0
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	} else if err != nil && rp.cmd.ProcessState == nil {
		exitCode = -1
	}

	result := &ProcessResult{
		Handle:        rp.handle,
		ExitCode:      exitCode,
		ExecutionTime: elapsed,
	}
	if rp.handle.Config.RedirectOutput {
		out := rp.stdoutBuf.String()
		errOut := rp.stderrBuf.String()
		result.Stdout = &out
		result.Stderr = &errOut
	}
	if rp.handle.Config.EnableResourceMonitoring && rp.cmd.ProcessState != nil {
		result.ResourceUsage = &ResourceUsage{
			UserCPUTime:   rp.cmd.ProcessState.UserTime(),
			SystemCPUTime: rp.cmd.ProcessState.SystemTime(),
		}
	}

	l.mu.Lock()
	rp.result = result
	close(rp.done)
	l.mu.Unlock()

	if rp.handle.Config.KillOnParentExit {
		if derr := l.ephemeral.DestroySpace(ctx, rp.handle.SpaceID); derr != nil {
			slog.Warn("cascade space destroy after process exit failed", "handle_id", rp.handle.ID, "error", derr)
		}
	}
}

func (l *Launcher) armTimeout(ctx context.Context, handleID uuid.UUID, after time.Duration) {
	timer := time.NewTimer(after)
	defer timer.Stop()

	l.mu.Lock()
	rp, ok := l.running[handleID]
	l.mu.Unlock()
	if !ok {
		return
	}

	select {
	case <-rp.done:
		return
	case <-timer.C:
		if _, err := l.Terminate(ctx, handleID); err != nil && !perr.Is(err, perr.CodeProcessTerminationFailed) {
			slog.Warn("timeout-triggered terminate failed", "handle_id", handleID, "error", err)
		}
	}
}

// Terminate stops a running process and destroys its bound space. It is
// idempotent: calling it twice, or calling it after natural process exit,
// returns an equivalent ProcessResult both times. Firing the timeout timer
// and an explicit Terminate call converge on the same code path.
func (l *Launcher) Terminate(ctx context.Context, handleID uuid.UUID) (ProcessResult, error) {
	l.mu.Lock()
	rp, ok := l.running[handleID]
	l.mu.Unlock()
	if !ok {
		return ProcessResult{}, perr.WithID(perr.CodeProcessTerminationFailed, "no such process handle", handleID.String())
	}

	select {
	case <-rp.done:
		// Already exited naturally; fall through to cleanup+return below.
	default:
		rp.cancel()
		<-rp.done
	}

	rp.cleanupOnce.Do(func() {
		if err := l.ephemeral.DestroySpace(ctx, rp.handle.SpaceID); err != nil {
			slog.Warn("space destroy during terminate failed", "handle_id", handleID, "error", err)
		}
	})

	l.mu.Lock()
	result := *rp.result
	l.mu.Unlock()
	return result, nil
}

// GetRunning returns a snapshot of every process handle not yet terminated.
func (l *Launcher) GetRunning() []ProcessHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ProcessHandle, 0, len(l.running))
	for _, rp := range l.running {
		select {
		case <-rp.done:
			continue
		default:
			out = append(out, rp.handle)
		}
	}
	return out
}

// TerminateAll concurrently terminates every running process.
func (l *Launcher) TerminateAll(ctx context.Context) []ProcessResult {
	handles := l.GetRunning()
	var wg sync.WaitGroup
	results := make([]ProcessResult, len(handles))
	for i, h := range handles {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			if r, err := l.Terminate(ctx, id); err == nil {
				results[i] = r
			}
		}(i, h.ID)
	}
	wg.Wait()
	return results
}
