package monitor

import "strings"

// interpolate substitutes the event-derived tokens into
// a rule's output template.
func interpolate(template string, e SyscallEvent) string {
	r := strings.NewReplacer(
		"%proc.name", e.ProcessName,
		"%proc.pid", itoa(e.PID),
		"%evt.arg.uid", itoa(int(e.UID)),
		"%evt.syscall", e.Syscall,
		"%file.path", e.FilePath,
		"%network.dest", networkField(e, func(n *NetworkInfo) string { return n.RemoteAddress }),
		"%network.port", networkField(e, func(n *NetworkInfo) string { return itoa(n.RemotePort) }),
		"%network.proto", networkField(e, func(n *NetworkInfo) string { return n.Protocol }),
	)
	return r.Replace(template)
}

func networkField(e SyscallEvent, get func(*NetworkInfo) string) string {
	if e.Network == nil {
		return ""
	}
	return get(e.Network)
}
