package monitor

import "strings"

// Matches reports whether event satisfies the rule's condition.
func (r MonitoringRule) Matches(e SyscallEvent) bool {
	c := r.Condition

	if !contains(c.Syscalls, e.Syscall) {
		return false
	}

	if len(c.AllowedProcesses) > 0 && !contains(c.AllowedProcesses, e.ProcessName) {
		return false
	}
	if contains(c.BlockedProcesses, e.ProcessName) {
		return false
	}
	if len(c.AllowedUIDs) > 0 && !containsUint(c.AllowedUIDs, e.UID) {
		return false
	}
	if containsUint(c.BlockedUIDs, e.UID) {
		return false
	}

	if len(c.AllowedPaths) > 0 && !matchesAnyPattern(c.AllowedPaths, e.FilePath) {
		return false
	}
	if matchesAnyPattern(c.BlockedPaths, e.FilePath) {
		return false
	}

	if e.Network != nil {
		if len(c.AllowedPorts) > 0 && !containsInt(c.AllowedPorts, e.Network.RemotePort) {
			return false
		}
		if containsInt(c.BlockedPorts, e.Network.RemotePort) {
			return false
		}
		if len(c.AllowedAddrs) > 0 && !matchesAnyPattern(c.AllowedAddrs, e.Network.RemoteAddress) {
			return false
		}
		if matchesAnyPattern(c.BlockedAddrs, e.Network.RemoteAddress) {
			return false
		}
	}

	for _, exc := range c.Exceptions {
		if exceptionMatches(exc, e) {
			return false
		}
	}

	return true
}

func exceptionMatches(exc Exception, e SyscallEvent) bool {
	if len(exc.Fields) == 0 || len(exc.Fields) != len(exc.Values) {
		return false
	}
	for i, field := range exc.Fields {
		if !fieldEquals(field, exc.Values[i], e) {
			return false
		}
	}
	return true
}

func fieldEquals(field, value string, e SyscallEvent) bool {
	switch field {
	case "proc.name":
		return e.ProcessName == value
	case "proc.pid":
		return itoa(e.PID) == value
	case "evt.uid":
		return itoa(int(e.UID)) == value
	default:
		return false
	}
}

// matchPattern supports exact match plus a single leading or trailing '*'
// wildcard; any other use of '*' is treated as non-match.
func matchPattern(pattern, value string) bool {
	switch {
	case pattern == value:
		return true
	case strings.HasSuffix(pattern, "*") && !strings.HasPrefix(pattern, "*"):
		return strings.HasPrefix(value, strings.TrimSuffix(pattern, "*"))
	case strings.HasPrefix(pattern, "*") && !strings.HasSuffix(pattern, "*"):
		return strings.HasSuffix(value, strings.TrimPrefix(pattern, "*"))
	default:
		return false
	}
}

func matchesAnyPattern(patterns []string, value string) bool {
	for _, p := range patterns {
		if matchPattern(p, value) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsUint(list []uint32, v uint32) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	if neg {
		b = append([]byte{'-'}, b...)
	}
	return string(b)
}
