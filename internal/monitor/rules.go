package monitor

import (
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/privarion/privarion/internal/perr"
)

// LoadRules reads a YAML-encoded rule set from path. An empty path or a
// missing file falls back to DefaultRules.
func LoadRules(path string) ([]MonitoringRule, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultRules(), nil
	}
	if err != nil {
		return nil, perr.Wrap(perr.CodeCorruptedData, "failed to read monitoring rules file", path, err)
	}
	var rules []MonitoringRule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, perr.Wrap(perr.CodeCorruptedData, "failed to parse monitoring rules file", path, err)
	}
	if len(rules) == 0 {
		return DefaultRules(), nil
	}
	return rules, nil
}

// DefaultRules returns the seeded detection rules: privacy
// violation via DNS/HTTP network calls, privilege escalation via the
// setuid family, sensitive-file access, and network activity on sensitive
// ports with a localhost allowlist and a core-system-process exception.
func DefaultRules() []MonitoringRule {
	return []MonitoringRule{
		{
			ID:       "privacy-violation-network",
			Name:     "Privacy-sensitive network call",
			Enabled:  true,
			Priority: PriorityCritical,
			Condition: RuleCondition{
				Syscalls:     []string{"connect", "sendto"},
				AllowedPorts: []int{53, 80, 443},
			},
			Output: "%proc.name (pid %proc.pid) contacted %network.dest:%network.port via %evt.syscall",
		},
		{
			ID:       "privilege-escalation",
			Name:     "Privilege escalation attempt",
			Enabled:  true,
			Priority: PriorityAlert,
			Condition: RuleCondition{
				Syscalls: []string{"setuid", "setgid", "seteuid", "setegid", "setreuid", "setregid"},
			},
			Output: "%proc.name (pid %proc.pid, uid %evt.arg.uid) called %evt.syscall",
		},
		{
			ID:       "sensitive-file-access",
			Name:     "Sensitive file access",
			Enabled:  true,
			Priority: PriorityWarning,
			Condition: RuleCondition{
				Syscalls: []string{"open", "read", "write"},
				AllowedPaths: []string{
					"/etc/passwd",
					"/etc/shadow",
					"/Users/*",
					"/private/var/db/*",
				},
			},
			Output: "%proc.name (pid %proc.pid) accessed %file.path via %evt.syscall",
		},
		{
			ID:       "sensitive-port-network-activity",
			Name:     "Network activity on a sensitive port",
			Enabled:  true,
			Priority: PriorityNotice,
			Condition: RuleCondition{
				Syscalls:     []string{"connect", "sendto"},
				AllowedPorts: []int{22, 23, 3389, 5900},
				BlockedAddrs: []string{"127.0.0.1", "::1"},
				Exceptions: []Exception{
					{Name: "core-system-process", Fields: []string{"proc.name"}, Values: []string{"launchd"}},
					{Name: "core-system-process", Fields: []string{"proc.name"}, Values: []string{"kernel_task"}},
				},
			},
			Output: "%proc.name (pid %proc.pid) opened %network.proto connection to %network.dest:%network.port",
		},
	}
}
