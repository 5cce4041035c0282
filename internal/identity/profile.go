package identity

import (
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/privarion/privarion/internal/perr"
)

// StaticProfile is a Profile backed by plain maps, suitable for
// configuration-file-driven or test use.
type StaticProfile struct {
	Enabled    map[Type]bool       `yaml:"enabled"`
	Critical   map[Type]bool       `yaml:"critical"`
	Strategies map[Type]Strategy   `yaml:"strategies"`
}

// NewStaticProfile creates a profile where every requested type is enabled,
// non-critical, and uses StrategyRealistic unless overridden.
func NewStaticProfile() *StaticProfile {
	return &StaticProfile{
		Enabled:    make(map[Type]bool),
		Critical:   make(map[Type]bool),
		Strategies: make(map[Type]Strategy),
	}
}

func (p *StaticProfile) IsEnabled(t Type) bool {
	if v, ok := p.Enabled[t]; ok {
		return v
	}
	return true
}

func (p *StaticProfile) IsCritical(t Type) bool {
	return p.Critical[t]
}

func (p *StaticProfile) StrategyFor(t Type) Strategy {
	if s, ok := p.Strategies[t]; ok {
		return s
	}
	return Strategy{Kind: StrategyRealistic}
}

// LoadProfile reads a YAML-encoded StaticProfile from path. An empty path
// or a missing file falls back to NewStaticProfile's all-enabled defaults.
func LoadProfile(path string) (*StaticProfile, error) {
	if path == "" {
		return NewStaticProfile(), nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewStaticProfile(), nil
	}
	if err != nil {
		return nil, perr.Wrap(perr.CodeCorruptedData, "failed to read identity profile file", path, err)
	}
	profile := NewStaticProfile()
	if err := yaml.Unmarshal(data, profile); err != nil {
		return nil, perr.Wrap(perr.CodeCorruptedData, "failed to parse identity profile file", path, err)
	}
	return profile, nil
}
