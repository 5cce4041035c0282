package backend

import (
	"context"
	"runtime"
	"sync"
)

// InMemoryHookBackend is the reference HookBackend implementation. It keeps
// the active SyscallHookConfiguration in memory for a companion shim
// (e.g. an LD_PRELOAD/DYLD_INSERT_LIBRARIES library, out of this module's
// scope) to consult. Real native hooking is a pluggable backend per
// the real kernel extension; this implementation satisfies the contract without
// performing actual syscall interception.
type InMemoryHookBackend struct {
	mu            sync.RWMutex
	cfg           SyscallHookConfiguration
	installed     map[string]InstallStatus
	initialized   bool
}

// NewInMemoryHookBackend creates a HookBackend with no hooks configured.
func NewInMemoryHookBackend() *InMemoryHookBackend {
	return &InMemoryHookBackend{
		cfg:       SyscallHookConfiguration{Hooks: make(map[string]bool)},
		installed: make(map[string]InstallStatus),
	}
}

func (h *InMemoryHookBackend) Initialize(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.initialized = true
	return nil
}

// IsPlatformSupported reports whether native hooking is plausible on this
// host. Only Darwin-class hosts are assumed to carry the TCC/APFS stack
// Privarion targets.
func (h *InMemoryHookBackend) IsPlatformSupported() bool {
	return runtime.GOOS == "darwin"
}

// UpdateConfiguration merges cfg into the active configuration under the
// lock: independent subsystems (identity spoofing, syscall monitoring)
// share one HookBackend, so a call from one must not erase the hook flags
// or fake data the other already installed.
func (h *InMemoryHookBackend) UpdateConfiguration(cfg SyscallHookConfiguration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cfg.Hooks == nil {
		h.cfg.Hooks = make(map[string]bool)
	}
	for name, enabled := range cfg.Hooks {
		h.cfg.Hooks[name] = enabled
	}
	mergeFakeData(&h.cfg.FakeData, cfg.FakeData)
	return nil
}

// mergeFakeData copies every non-zero field of in into out, leaving out's
// existing values in place for fields in has not set.
func mergeFakeData(out *FakeData, in FakeData) {
	if in.Hostname != "" {
		out.Hostname = in.Hostname
	}
	if in.Username != "" {
		out.Username = in.Username
	}
	if in.UserID != 0 {
		out.UserID = in.UserID
	}
	if in.GroupID != 0 {
		out.GroupID = in.GroupID
	}
	if in.SystemInfo.Nodename != "" {
		out.SystemInfo.Nodename = in.SystemInfo.Nodename
	}
	if in.SystemInfo.Version != "" {
		out.SystemInfo.Version = in.SystemInfo.Version
	}
	if in.SystemInfo.Release != "" {
		out.SystemInfo.Release = in.SystemInfo.Release
	}
	if in.SystemInfo.Machine != "" {
		out.SystemInfo.Machine = in.SystemInfo.Machine
	}
}

// Configuration returns a copy of the currently active configuration.
func (h *InMemoryHookBackend) Configuration() SyscallHookConfiguration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	hooks := make(map[string]bool, len(h.cfg.Hooks))
	for k, v := range h.cfg.Hooks {
		hooks[k] = v
	}
	return SyscallHookConfiguration{Hooks: hooks, FakeData: h.cfg.FakeData}
}

func (h *InMemoryHookBackend) InstallConfiguredHooks(_ context.Context) (map[string]InstallStatus, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	supported := make(map[string]bool, len(SupportedHookSyscalls))
	for _, s := range SupportedHookSyscalls {
		supported[s] = true
	}

	result := make(map[string]InstallStatus)
	for name, enabled := range h.cfg.Hooks {
		if !enabled {
			continue
		}
		if supported[name] {
			result[name] = InstallStatusOK
		} else {
			result[name] = InstallStatusNotSupported
		}
	}
	h.installed = result
	return result, nil
}

func (h *InMemoryHookBackend) RemoveAllHooks(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.installed = make(map[string]InstallStatus)
	h.cfg.Hooks = make(map[string]bool)
	return nil
}
