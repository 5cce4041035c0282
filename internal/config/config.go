// Package config loads Privarion's configuration from YAML, environment
// variables, and built-in defaults.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ResolveHomeDir returns the home directory of the real (non-root) user.
// When running under sudo, os.UserHomeDir() returns /root, which won't
// contain the invoking user's config. This checks SUDO_USER first.
func ResolveHomeDir() (string, error) {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		u, err := user.Lookup(sudoUser)
		if err != nil {
			slog.Debug("SUDO_USER lookup failed, falling back", "sudo_user", sudoUser, "error", err)
		} else {
			slog.Debug("resolved home via SUDO_USER", "user", sudoUser, "home", u.HomeDir)
			return u.HomeDir, nil
		}
	}
	return os.UserHomeDir()
}

// Config is the top-level configuration for privarion.
type Config struct {
	ConfigVersion int              `yaml:"config_version" mapstructure:"config_version"`
	Ephemeral     EphemeralConfig  `yaml:"ephemeral" mapstructure:"ephemeral"`
	Launcher      LauncherConfig   `yaml:"launcher" mapstructure:"launcher"`
	Identity      IdentityConfig   `yaml:"identity" mapstructure:"identity"`
	Permission    PermissionConfig `yaml:"permission" mapstructure:"permission"`
	Monitor       MonitorConfig    `yaml:"monitor" mapstructure:"monitor"`
	Audit         AuditConfig      `yaml:"audit" mapstructure:"audit"`
	Logging       LoggingConfig    `yaml:"logging" mapstructure:"logging"`
}

// EphemeralConfig controls the EphemeralFileSystemManager.
type EphemeralConfig struct {
	BasePath          string `yaml:"base_path" mapstructure:"base_path"`
	MaxEphemeralSpaces int   `yaml:"max_ephemeral_spaces" mapstructure:"max_ephemeral_spaces"`
	TestMode          bool   `yaml:"test_mode" mapstructure:"test_mode"`
	MaxSnapshots      int    `yaml:"max_snapshots" mapstructure:"max_snapshots"`
	RetentionDays     int    `yaml:"retention_days" mapstructure:"retention_days"`
}

// LauncherConfig controls the ApplicationLauncher.
type LauncherConfig struct {
	EnvPrefix string `yaml:"env_prefix" mapstructure:"env_prefix"`
}

// IdentityConfig controls identity spoofing and rollback.
type IdentityConfig struct {
	RollbackDir string `yaml:"rollback_dir" mapstructure:"rollback_dir"`
	ProfilePath string `yaml:"profile_path" mapstructure:"profile_path"`
}

// PermissionConfig controls temporary grants and the policy engine.
type PermissionConfig struct {
	GrantsPath             string `yaml:"grants_path" mapstructure:"grants_path"`
	MaxConcurrentGrants    int    `yaml:"max_concurrent_grants" mapstructure:"max_concurrent_grants"`
	CleanupIntervalSeconds int    `yaml:"cleanup_interval_seconds" mapstructure:"cleanup_interval_seconds"`
	NotificationThresholdSeconds int `yaml:"notification_threshold_seconds" mapstructure:"notification_threshold_seconds"`
	MaxConcurrentEvaluations int  `yaml:"max_concurrent_evaluations" mapstructure:"max_concurrent_evaluations"`
	PolicyPath             string `yaml:"policy_path" mapstructure:"policy_path"`
	PollIntervalSeconds    int    `yaml:"poll_interval_seconds" mapstructure:"poll_interval_seconds"`
}

// MonitorConfig controls the SyscallMonitoringEngine.
type MonitorConfig struct {
	RulesPath string `yaml:"rules_path" mapstructure:"rules_path"`
}

// LoggingConfig holds logging preferences.
type LoggingConfig struct {
	Format string `yaml:"format" mapstructure:"format"`
	Level  string `yaml:"level" mapstructure:"level"`
}

// AuditConfig controls the AuditLogger and its sinks.
type AuditConfig struct {
	Enabled         bool     `yaml:"enabled" mapstructure:"enabled"`
	Destinations    []string `yaml:"destinations" mapstructure:"destinations"` // file, system, syslog, network, database
	LogDir          string   `yaml:"log_dir" mapstructure:"log_dir"`
	NetworkURL      string   `yaml:"network_url" mapstructure:"network_url"`
	DatabasePath    string   `yaml:"database_path" mapstructure:"database_path"`
	SeverityFloor   string   `yaml:"severity_floor" mapstructure:"severity_floor"` // emergency..debug
	RotationPolicy  string   `yaml:"rotation_policy" mapstructure:"rotation_policy"` // hourly, daily, weekly, size
	RotationSizeMB  int      `yaml:"rotation_size_mb" mapstructure:"rotation_size_mb"`
	RetentionDays   int      `yaml:"retention_days" mapstructure:"retention_days"`
	FlushIntervalMS int      `yaml:"flush_interval_ms" mapstructure:"flush_interval_ms"`
	BatchSize       int      `yaml:"batch_size" mapstructure:"batch_size"`
}

// setDefaults registers sensible defaults for standalone/personal use.
func setDefaults(v *viper.Viper) {
	v.SetDefault("config_version", 1)

	v.SetDefault("ephemeral.base_path", "/var/privarion/spaces")
	v.SetDefault("ephemeral.max_ephemeral_spaces", 10)
	v.SetDefault("ephemeral.test_mode", false)
	v.SetDefault("ephemeral.max_snapshots", 10)
	v.SetDefault("ephemeral.retention_days", 7)

	v.SetDefault("launcher.env_prefix", "PRIVARION")

	v.SetDefault("identity.rollback_dir", "$HOME/.privarion/rollback")
	v.SetDefault("identity.profile_path", "")

	v.SetDefault("permission.grants_path", "$APP_SUPPORT/Privarion/temporary_permissions.json")
	v.SetDefault("permission.max_concurrent_grants", 100)
	v.SetDefault("permission.cleanup_interval_seconds", 60)
	v.SetDefault("permission.notification_threshold_seconds", 300)
	v.SetDefault("permission.max_concurrent_evaluations", 10)
	v.SetDefault("permission.policy_path", "")
	v.SetDefault("permission.poll_interval_seconds", 5)

	v.SetDefault("monitor.rules_path", "")

	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.level", "info")

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.destinations", []string{"file"})
	v.SetDefault("audit.log_dir", "$DOCS/Privarion/AuditLogs")
	v.SetDefault("audit.network_url", "")
	v.SetDefault("audit.database_path", "")
	v.SetDefault("audit.severity_floor", "debug")
	v.SetDefault("audit.rotation_policy", "daily")
	v.SetDefault("audit.rotation_size_mb", 50)
	v.SetDefault("audit.retention_days", 30)
	v.SetDefault("audit.flush_interval_ms", 5000)
	v.SetDefault("audit.batch_size", 100)
}

// bindEnvVars binds environment variable overrides with a PRIVARION_ prefix
// for every nested key, since viper's AutomaticEnv only covers top-level keys.
func bindEnvVars(v *viper.Viper) {
	bindings := map[string]string{
		"config_version":                        "PRIVARION_CONFIG_VERSION",
		"ephemeral.base_path":                    "PRIVARION_EPHEMERAL_BASE_PATH",
		"ephemeral.max_ephemeral_spaces":          "PRIVARION_EPHEMERAL_MAX_SPACES",
		"ephemeral.test_mode":                     "PRIVARION_EPHEMERAL_TEST_MODE",
		"ephemeral.max_snapshots":                 "PRIVARION_EPHEMERAL_MAX_SNAPSHOTS",
		"ephemeral.retention_days":                "PRIVARION_EPHEMERAL_RETENTION_DAYS",
		"launcher.env_prefix":                     "PRIVARION_LAUNCHER_ENV_PREFIX",
		"identity.rollback_dir":                   "PRIVARION_IDENTITY_ROLLBACK_DIR",
		"identity.profile_path":                   "PRIVARION_IDENTITY_PROFILE_PATH",
		"permission.grants_path":                  "PRIVARION_PERMISSION_GRANTS_PATH",
		"permission.max_concurrent_grants":        "PRIVARION_PERMISSION_MAX_CONCURRENT_GRANTS",
		"permission.cleanup_interval_seconds":     "PRIVARION_PERMISSION_CLEANUP_INTERVAL_SECONDS",
		"permission.notification_threshold_seconds": "PRIVARION_PERMISSION_NOTIFICATION_THRESHOLD_SECONDS",
		"permission.max_concurrent_evaluations":   "PRIVARION_PERMISSION_MAX_CONCURRENT_EVALUATIONS",
		"permission.policy_path":                  "PRIVARION_PERMISSION_POLICY_PATH",
		"permission.poll_interval_seconds":        "PRIVARION_PERMISSION_POLL_INTERVAL_SECONDS",
		"monitor.rules_path":                      "PRIVARION_MONITOR_RULES_PATH",
		"logging.format":                          "PRIVARION_LOGGING_FORMAT",
		"logging.level":                           "PRIVARION_LOGGING_LEVEL",
		"audit.enabled":                           "PRIVARION_AUDIT_ENABLED",
		"audit.log_dir":                           "PRIVARION_AUDIT_LOG_DIR",
		"audit.network_url":                       "PRIVARION_AUDIT_NETWORK_URL",
		"audit.database_path":                     "PRIVARION_AUDIT_DATABASE_PATH",
		"audit.severity_floor":                    "PRIVARION_AUDIT_SEVERITY_FLOOR",
		"audit.rotation_policy":                   "PRIVARION_AUDIT_ROTATION_POLICY",
		"audit.rotation_size_mb":                  "PRIVARION_AUDIT_ROTATION_SIZE_MB",
		"audit.retention_days":                    "PRIVARION_AUDIT_RETENTION_DAYS",
		"audit.flush_interval_ms":                 "PRIVARION_AUDIT_FLUSH_INTERVAL_MS",
		"audit.batch_size":                        "PRIVARION_AUDIT_BATCH_SIZE",
	}
	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}
}

// DefaultConfigDir returns the default configuration directory path.
func DefaultConfigDir() (string, error) {
	home, err := ResolveHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "privarion"), nil
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the privarion configuration from disk, env vars, and defaults.
// If configPath is empty, it looks in ~/.config/privarion/config.yaml.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnvVars(v)

	v.SetEnvPrefix("PRIVARION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		home, err := ResolveHomeDir()
		if err != nil {
			slog.Warn("could not determine home directory", "error", err)
		} else {
			cfgDir := filepath.Join(home, ".config", "privarion")
			v.AddConfigPath(cfgDir)
			v.SetConfigName("config")
			v.SetConfigType("yaml")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if configPath != "" {
				return nil, err
			}
			slog.Debug("no config file found, using defaults", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// expandPaths resolves $HOME, $APP_SUPPORT and $DOCS tokens used in default
// path templates so the rest of the system deals only in absolute paths.
func (c *Config) expandPaths() {
	home, err := ResolveHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	appSupport := filepath.Join(home, "Library", "Application Support")
	docs := filepath.Join(home, "Documents")

	expand := func(s string) string {
		s = strings.ReplaceAll(s, "$HOME", home)
		s = strings.ReplaceAll(s, "$APP_SUPPORT", appSupport)
		s = strings.ReplaceAll(s, "$DOCS", docs)
		return s
	}

	c.Identity.RollbackDir = expand(c.Identity.RollbackDir)
	c.Permission.GrantsPath = expand(c.Permission.GrantsPath)
	c.Audit.LogDir = expand(c.Audit.LogDir)
}

// WriteDefault creates a default config file at the given path (or the
// default location if path is empty). It does not overwrite an existing file.
func WriteDefault(path string) (string, error) {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return "", err
		}
	}

	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	if err := os.WriteFile(path, []byte(minimalTemplate), 0o644); err != nil {
		return "", err
	}

	return path, nil
}

const minimalTemplate = `config_version: 1
ephemeral:
  max_ephemeral_spaces: 10
permission:
  max_concurrent_grants: 100
audit:
  enabled: true
  destinations: ["file"]
`
