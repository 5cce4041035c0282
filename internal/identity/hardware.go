package identity

import (
	"context"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/privarion/privarion/internal/backend"
	"github.com/privarion/privarion/internal/perr"
)

var (
	macRegex      = regexp.MustCompile(`^([0-9A-Fa-f]{2}:){5}[0-9A-Fa-f]{2}$`)
	hostnameRegex = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?$`)
)

// vendorOUIs maps a small set of well-known vendors to their OUI prefix.
var vendorOUIs = map[string][3]byte{
	"apple": {0x00, 0x1B, 0x63},
	"intel": {0x00, 0x1B, 0x21},
	"dell":  {0x00, 0x14, 0x22},
	"hp":    {0x00, 0x1F, 0x29},
}

var stealthVendors = []string{"apple", "intel", "dell", "hp"}

var hostnamePrefixes = []string{"dev", "build", "host", "node", "work", "lab"}
var hostnameSeparators = []string{"-", ""}

var serialPlants = []string{"C0", "F1", "FK", "DN", "G8"}

// Engine is the HardwareIdentifierEngine: deterministic-shape, side-effect
// free value generation plus host-capture helpers.
type Engine struct {
	cmdExecutor backend.CommandExecutor
}

// NewEngine creates a HardwareIdentifierEngine backed by cmdExecutor for
// its host-capture helpers.
func NewEngine(cmdExecutor backend.CommandExecutor) *Engine {
	return &Engine{cmdExecutor: cmdExecutor}
}

// GenerateMAC produces a MAC address under strategy s.
func (e *Engine) GenerateMAC(s Strategy) (string, error) {
	switch s.Kind {
	case StrategyVendorBased:
		oui, ok := vendorOUIs[strings.ToLower(s.Vendor)]
		if !ok {
			return "", perr.WithID(perr.CodeInvalidIdentifierFormat, "unknown vendor for vendor-based MAC", s.Vendor)
		}
		return macFromPrefix(oui[:], nil), nil
	case StrategyStealth:
		vendor := stealthVendors[rand.IntN(len(stealthVendors))]
		oui := vendorOUIs[vendor]
		return macFromPrefix(oui[:], nil), nil
	case StrategyCustom:
		mac := completeCustomMAC(s.Custom)
		if !macRegex.MatchString(mac) {
			return e.GenerateMAC(Strategy{Kind: StrategyRealistic})
		}
		return mac, nil
	default: // Random, Realistic
		b0 := byte(rand.IntN(256))
		b0 |= 0x02 // local bit set
		b0 &^= 0x01 // multicast bit clear
		bytes := []byte{b0, byte(rand.IntN(256)), byte(rand.IntN(256)), byte(rand.IntN(256)), byte(rand.IntN(256)), byte(rand.IntN(256))}
		mac := formatMAC(bytes)
		if !macRegex.MatchString(mac) {
			return "", perr.New(perr.CodeInvalidIdentifierFormat, "generated MAC failed validation")
		}
		return mac, nil
	}
}

func macFromPrefix(prefix []byte, rest []byte) string {
	b := make([]byte, 6)
	copy(b, prefix)
	for i := len(prefix); i < 6; i++ {
		if rest != nil && i-len(prefix) < len(rest) {
			b[i] = rest[i-len(prefix)]
		} else {
			b[i] = byte(rand.IntN(256))
		}
	}
	return formatMAC(b)
}

func formatMAC(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02X", v)
	}
	return strings.Join(parts, ":")
}

// completeCustomMAC fills in missing trailing octets of a colon-separated
// partial pattern with random bytes.
func completeCustomMAC(pattern string) string {
	segs := strings.Split(pattern, ":")
	out := make([]string, 6)
	for i := 0; i < 6; i++ {
		if i < len(segs) && segs[i] != "" {
			out[i] = segs[i]
		} else {
			out[i] = fmt.Sprintf("%02X", rand.IntN(256))
		}
	}
	return strings.Join(out, ":")
}

// GenerateHostname produces a hostname under strategy s.
func (e *Engine) GenerateHostname(s Strategy) (string, error) {
	if s.Kind == StrategyCustom && s.Custom != "" {
		if hostnameRegex.MatchString(s.Custom) {
			return s.Custom, nil
		}
		return "", perr.WithID(perr.CodeInvalidIdentifierFormat, "custom hostname failed validation", s.Custom)
	}

	prefix := hostnamePrefixes[rand.IntN(len(hostnamePrefixes))]
	sep := hostnameSeparators[rand.IntN(len(hostnameSeparators))]
	name := fmt.Sprintf("%s%s%d", prefix, sep, rand.IntN(9000)+1000)
	if !hostnameRegex.MatchString(name) {
		return "", perr.New(perr.CodeInvalidIdentifierFormat, "generated hostname failed validation")
	}
	return name, nil
}

// GenerateSerial produces a serial number under strategy s.
func (e *Engine) GenerateSerial(s Strategy) (string, error) {
	if s.Kind != StrategyRealistic {
		return randomAlnum(12), nil
	}
	plant := serialPlants[rand.IntN(len(serialPlants))]
	year := time.Now().Year() % 10
	week := rand.IntN(52) + 1
	uid := randomAlnum(3)
	model := randomAlnum(3)
	return fmt.Sprintf("%s%d%02d%s%s", plant, year, week, uid, model), nil
}

// macOSVersions and matching darwin kernel releases, paired by index so a
// generated SystemVersion/KernelVersion pair stays internally consistent.
var macOSVersions = []string{"12.7.6", "13.7.2", "14.6.1", "15.1"}
var darwinVersions = []string{"21.6.0", "22.6.0", "23.6.0", "24.1.0"}

var architectures = []string{"arm64", "x86_64"}

// GenerateSystemVersion produces a macOS version string under strategy s.
func (e *Engine) GenerateSystemVersion(s Strategy) (string, error) {
	if s.Kind == StrategyCustom && s.Custom != "" {
		return s.Custom, nil
	}
	return macOSVersions[rand.IntN(len(macOSVersions))], nil
}

// GenerateKernelVersion produces a darwin kernel release string under
// strategy s.
func (e *Engine) GenerateKernelVersion(s Strategy) (string, error) {
	if s.Kind == StrategyCustom && s.Custom != "" {
		return s.Custom, nil
	}
	return darwinVersions[rand.IntN(len(darwinVersions))], nil
}

// GenerateUserID produces a non-root uid in the unprivileged-user range
// under strategy s.
func (e *Engine) GenerateUserID(s Strategy) (string, error) {
	if s.Kind == StrategyCustom && s.Custom != "" {
		return s.Custom, nil
	}
	return strconv.Itoa(501 + rand.IntN(500)), nil
}

// GenerateGroupID produces a gid under strategy s; StrategyRealistic favors
// the "staff" group common to interactive accounts.
func (e *Engine) GenerateGroupID(s Strategy) (string, error) {
	if s.Kind == StrategyCustom && s.Custom != "" {
		return s.Custom, nil
	}
	if s.Kind == StrategyRealistic {
		return "20", nil
	}
	return strconv.Itoa(20 + rand.IntN(500)), nil
}

// GenerateArchitecture produces a CPU architecture string under strategy s.
func (e *Engine) GenerateArchitecture(s Strategy) (string, error) {
	if s.Kind == StrategyCustom && s.Custom != "" {
		return s.Custom, nil
	}
	if s.Kind == StrategyVendorBased {
		return "arm64", nil
	}
	return architectures[rand.IntN(len(architectures))], nil
}

const alnumChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomAlnum(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alnumChars[rand.IntN(len(alnumChars))]
	}
	return string(b)
}

// ValidateMAC reports whether v matches the MAC address format.
func ValidateMAC(v string) bool { return macRegex.MatchString(v) }

// ValidateHostname reports whether v matches the hostname format.
func ValidateHostname(v string) bool { return hostnameRegex.MatchString(v) }

// CaptureHostname reads the host's current hostname via CommandExecutor.
func (e *Engine) CaptureHostname(ctx context.Context) (string, error) {
	res, err := e.cmdExecutor.Exec(ctx, "hostname")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// CaptureSerial reads the host's serial number via ioreg, the standard
// macOS-class tool for IOPlatformSerialNumber.
func (e *Engine) CaptureSerial(ctx context.Context) (string, error) {
	res, err := e.cmdExecutor.Exec(ctx, "ioreg", "-l")
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		if strings.Contains(line, "IOPlatformSerialNumber") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				return strings.Trim(strings.TrimSpace(parts[1]), `"`), nil
			}
		}
	}
	return "", perr.New(perr.CodeCorruptedData, "serial number not found in ioreg output")
}

// CaptureDiskUUID reads the boot volume's UUID via diskutil.
func (e *Engine) CaptureDiskUUID(ctx context.Context) (string, error) {
	res, err := e.cmdExecutor.Exec(ctx, "diskutil", "info", "-plist", "/")
	if err != nil {
		return "", err
	}
	i := strings.Index(res.Stdout, "<key>VolumeUUID</key>")
	if i >= 0 {
		rest := res.Stdout[i:]
		start := strings.Index(rest, "<string>")
		end := strings.Index(rest, "</string>")
		if start >= 0 && end > start {
			return strings.TrimSpace(rest[start+len("<string>") : end]), nil
		}
	}
	return "", perr.New(perr.CodeCorruptedData, "volume UUID not found in diskutil output")
}
