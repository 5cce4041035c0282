package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/privarion/privarion/internal/audit"
	"github.com/privarion/privarion/internal/backend"
	"github.com/privarion/privarion/internal/config"
	"github.com/privarion/privarion/internal/ephemeral"
	"github.com/privarion/privarion/internal/identity"
	"github.com/privarion/privarion/internal/launcher"
	"github.com/privarion/privarion/internal/monitor"
	"github.com/privarion/privarion/internal/permission"
)

// App bundles the constructed graph of every subsystem, wired once from
// configuration and shared by every subcommand.
type App struct {
	Config *config.Config

	CmdExecutor     backend.CommandExecutor
	SnapshotBackend backend.SnapshotBackend
	HookBackend     backend.HookBackend

	Ephemeral *ephemeral.Manager
	Launcher  *launcher.Launcher

	IdentityEngine   *identity.Engine
	IdentityRollback *identity.RollbackManager
	IdentitySpoof    *identity.Manager
	identityProfile  atomic.Pointer[identity.StaticProfile]

	PermissionStore   permission.Store
	PermissionGrants  *permission.Manager
	PermissionEngine  *permission.Engine
	PermissionMonitor *permission.Monitor

	MonitorEngine *monitor.Engine

	Audit audit.EventLogger

	// Watcher hot-reloads the identity profile, permission policy, and
	// monitoring rules files when any of them is configured. Nil when none
	// of Config.Identity.ProfilePath, Config.Permission.PolicyPath, or
	// Config.Monitor.RulesPath is set.
	Watcher *fsnotify.Watcher
}

// IdentityProfile returns the currently active identity profile, reloaded
// in place if Config.Identity.ProfilePath changes on disk.
func (a *App) IdentityProfile() *identity.StaticProfile {
	return a.identityProfile.Load()
}

// NewApp wires every subsystem from cfg. It starts the audit logger's
// flush loop and the config file watcher (config.WatchFiles); the other
// background loops start only when callers invoke the Start* methods
// explicitly once the command they're serving needs them.
func NewApp(cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	a.CmdExecutor = backend.NewHostCommandExecutor()
	a.SnapshotBackend = backend.NewAPFSSnapshotBackend(a.CmdExecutor, "/")
	a.HookBackend = backend.NewInMemoryHookBackend()

	a.Ephemeral = ephemeral.NewManager(ephemeral.Config{
		BasePath:           cfg.Ephemeral.BasePath,
		MaxEphemeralSpaces: cfg.Ephemeral.MaxEphemeralSpaces,
		TestMode:           cfg.Ephemeral.TestMode,
	}, a.SnapshotBackend, a.CmdExecutor)

	a.Launcher = launcher.New(a.Ephemeral, cfg.Launcher.EnvPrefix)

	a.IdentityEngine = identity.NewEngine(a.CmdExecutor)
	rb, err := identity.NewRollbackManager(cfg.Identity.RollbackDir, a.CmdExecutor)
	if err != nil {
		return nil, fmt.Errorf("creating identity rollback manager: %w", err)
	}
	a.IdentityRollback = rb
	a.IdentitySpoof = identity.NewManager(a.HookBackend, a.CmdExecutor, rb, a.IdentityEngine)

	profile, err := identity.LoadProfile(cfg.Identity.ProfilePath)
	if err != nil {
		return nil, fmt.Errorf("loading identity profile: %w", err)
	}
	a.identityProfile.Store(profile)

	store := permission.NewFileStore(cfg.Permission.GrantsPath)
	a.PermissionStore = store

	grants, err := permission.NewManager(permission.Config{
		Path:                  cfg.Permission.GrantsPath,
		MaxConcurrentGrants:   cfg.Permission.MaxConcurrentGrants,
		CleanupInterval:       time.Duration(cfg.Permission.CleanupIntervalSeconds) * time.Second,
		NotificationThreshold: time.Duration(cfg.Permission.NotificationThresholdSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("creating temporary permission manager: %w", err)
	}
	a.PermissionGrants = grants

	auditLogger, err := buildAuditLogger(cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("building audit logger: %w", err)
	}
	a.Audit = auditLogger

	grants.SetNotificationSender(func(g permission.TemporaryPermissionGrant) {
		e := audit.New(time.Now(), "permission.grant_expiring", "permission_manager", "notify", audit.SeverityNotice, audit.OutcomeSuccess)
		e.Resource = g.Service
		e.Details["bundle_id"] = g.BundleID
		e.Details["grant_id"] = g.ID
		e.Details["expires_at"] = g.ExpiresAt
		a.Audit.Log(context.Background(), e)
	})

	policies, err := permission.LoadPolicies(cfg.Permission.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("loading permission policies: %w", err)
	}

	engine, err := permission.NewEngine(store, grants, permission.EngineConfig{
		MaxConcurrentEvaluations: cfg.Permission.MaxConcurrentEvaluations,
		Policies:                 policies,
	})
	if err != nil {
		return nil, fmt.Errorf("creating permission policy engine: %w", err)
	}
	a.PermissionEngine = engine

	pollInterval := time.Duration(cfg.Permission.PollIntervalSeconds) * time.Second
	a.PermissionMonitor = permission.NewMonitor(store, pollInterval, func(c permission.PermissionChange) {
		e := audit.New(c.At, "permission.change", "permission_monitor", string(c.Type), permissionChangeSeverity(c), audit.OutcomeSuccess)
		e.Resource = c.Service
		e.Details["bundle_id"] = c.BundleID
		e.Details["previous"] = int(c.Previous)
		e.Details["current"] = int(c.Current)
		a.Audit.Log(context.Background(), e)
	})

	rules, err := monitor.LoadRules(cfg.Monitor.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("loading monitoring rules: %w", err)
	}

	a.MonitorEngine = monitor.New(a.HookBackend, rules, func(alert monitor.Alert) {
		e := audit.New(time.Now(), "monitor.alert", "syscall_monitor", alert.RuleName, monitorPrioritySeverity(alert.Priority), audit.OutcomeSuccess)
		e.Details["rule_id"] = alert.RuleID
		e.Details["message"] = alert.Message
		e.Details["syscall"] = alert.Event.Syscall
		a.Audit.Log(context.Background(), e)
	})

	watcher, err := config.WatchFiles(
		[]string{cfg.Identity.ProfilePath, cfg.Permission.PolicyPath, cfg.Monitor.RulesPath},
		func(path string) {
			switch path {
			case cfg.Identity.ProfilePath:
				p, err := identity.LoadProfile(path)
				if err != nil {
					slog.Warn("failed to reload identity profile", "path", path, "error", err)
					return
				}
				a.identityProfile.Store(p)
				slog.Info("reloaded identity profile", "path", path)
			case cfg.Permission.PolicyPath:
				p, err := permission.LoadPolicies(path)
				if err != nil {
					slog.Warn("failed to reload permission policies", "path", path, "error", err)
					return
				}
				a.PermissionEngine.ReplacePolicies(p)
				slog.Info("reloaded permission policies", "path", path)
			case cfg.Monitor.RulesPath:
				r, err := monitor.LoadRules(path)
				if err != nil {
					slog.Warn("failed to reload monitoring rules", "path", path, "error", err)
					return
				}
				a.MonitorEngine.ReplaceRules(r)
				slog.Info("reloaded monitoring rules", "path", path)
			}
		},
	)
	if err != nil {
		return nil, fmt.Errorf("starting config file watcher: %w", err)
	}
	a.Watcher = watcher

	return a, nil
}

func permissionChangeSeverity(c permission.PermissionChange) audit.Severity {
	switch permission.SensitivityOf(c.Service) {
	case permission.SensitivityCritical:
		return audit.SeverityCritical
	case permission.SensitivityHigh:
		return audit.SeverityWarning
	default:
		return audit.SeverityNotice
	}
}

func monitorPrioritySeverity(p monitor.Priority) audit.Severity {
	switch p {
	case monitor.PriorityEmergency:
		return audit.SeverityEmergency
	case monitor.PriorityAlert:
		return audit.SeverityAlert
	case monitor.PriorityCritical:
		return audit.SeverityCritical
	case monitor.PriorityError:
		return audit.SeverityError
	case monitor.PriorityWarning:
		return audit.SeverityWarning
	case monitor.PriorityNotice:
		return audit.SeverityNotice
	case monitor.PriorityInfo:
		return audit.SeverityInfo
	case monitor.PriorityDebug:
		return audit.SeverityDebug
	default:
		return audit.SeverityNotice
	}
}

// buildAuditLogger translates AuditConfig into a wired audit.Logger (or a
// NopLogger when auditing is disabled). Unknown destination names are
// rejected so a config typo fails fast at startup, not at the first flush.
func buildAuditLogger(cfg config.AuditConfig) (audit.EventLogger, error) {
	if !cfg.Enabled {
		return audit.NewNopLogger(), nil
	}

	dests := make([]audit.Destination, 0, len(cfg.Destinations))
	for _, name := range cfg.Destinations {
		switch strings.ToLower(name) {
		case "file":
			fd, err := audit.NewFileDestination(audit.FileDestinationConfig{
				Dir:           cfg.LogDir,
				Rotation:      parseRotationMode(cfg.RotationPolicy),
				MaxSizeMB:     cfg.RotationSizeMB,
				RetentionDays: cfg.RetentionDays,
			})
			if err != nil {
				return nil, fmt.Errorf("file destination: %w", err)
			}
			fd.StartBackgroundTasks(context.Background())
			dests = append(dests, fd)
		case "system":
			dests = append(dests, audit.NewSystemDestination())
		case "syslog":
			sd, err := audit.NewSyslogDestination("privarion")
			if err != nil {
				return nil, fmt.Errorf("syslog destination: %w", err)
			}
			dests = append(dests, sd)
		case "network":
			if cfg.NetworkURL == "" {
				return nil, fmt.Errorf("audit destination %q requires audit.network_url", name)
			}
			dests = append(dests, audit.NewNetworkDestination(cfg.NetworkURL))
		case "database":
			if cfg.DatabasePath == "" {
				return nil, fmt.Errorf("audit destination %q requires audit.database_path", name)
			}
			db, err := audit.NewDatabaseDestination(cfg.DatabasePath)
			if err != nil {
				return nil, fmt.Errorf("database destination: %w", err)
			}
			dests = append(dests, db)
		default:
			return nil, fmt.Errorf("unknown audit destination %q", name)
		}
	}

	return audit.NewLogger(audit.Config{
		Destinations:  dests,
		SeverityFloor: parseSeverity(cfg.SeverityFloor),
		FlushInterval: time.Duration(cfg.FlushIntervalMS) * time.Millisecond,
		BatchSize:     cfg.BatchSize,
	}), nil
}

func parseRotationMode(policy string) audit.RotationMode {
	switch strings.ToLower(policy) {
	case "hourly":
		return audit.RotationHourly
	case "daily":
		return audit.RotationDaily
	case "weekly":
		return audit.RotationWeekly
	default:
		return audit.RotationNone
	}
}

func parseSeverity(s string) audit.Severity {
	switch strings.ToLower(s) {
	case "emergency":
		return audit.SeverityEmergency
	case "alert":
		return audit.SeverityAlert
	case "critical":
		return audit.SeverityCritical
	case "error":
		return audit.SeverityError
	case "warning":
		return audit.SeverityWarning
	case "notice":
		return audit.SeverityNotice
	case "debug":
		return audit.SeverityDebug
	default:
		return audit.SeverityInfo
	}
}

func parseAuthValue(s string) (permission.AuthValue, error) {
	switch strings.ToLower(s) {
	case "denied":
		return permission.AuthDenied, nil
	case "unknown":
		return permission.AuthUnknown, nil
	case "allowed":
		return permission.AuthAllowed, nil
	case "limited":
		return permission.AuthLimited, nil
	default:
		return 0, fmt.Errorf("unknown auth value %q (want denied|unknown|allowed|limited)", s)
	}
}
