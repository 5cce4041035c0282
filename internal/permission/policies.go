package permission

import (
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/privarion/privarion/internal/perr"
)

// LoadPolicies reads a YAML-encoded policy set from path. An empty path or
// a missing file falls back to DefaultPolicies.
func LoadPolicies(path string) ([]PermissionPolicy, error) {
	if path == "" {
		return DefaultPolicies(), nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultPolicies(), nil
	}
	if err != nil {
		return nil, perr.Wrap(perr.CodeCorruptedData, "failed to read permission policy file", path, err)
	}
	var policies []PermissionPolicy
	if err := yaml.Unmarshal(data, &policies); err != nil {
		return nil, perr.Wrap(perr.CodeCorruptedData, "failed to parse permission policy file", path, err)
	}
	if len(policies) == 0 {
		return DefaultPolicies(), nil
	}
	return policies, nil
}

// DefaultPolicies returns the seeded policy set.
func DefaultPolicies() []PermissionPolicy {
	return []PermissionPolicy{
		{
			ID:          "camera-suspicious-background",
			Name:        "Camera access from a background task",
			Description: "Requires explicit user consent when a background task requests the camera.",
			Condition: PermissionPolicyCondition{
				Kind: CondAnd,
				Children: []PermissionPolicyCondition{
					{Kind: CondServiceName, Pattern: "Camera"},
					{Kind: CondRequestOrigin, Origin: "BackgroundTask"},
				},
			},
			Action:   PolicyAction{Kind: ActionRequireUserConsent},
			Priority: PriorityHigh,
			Enabled:  true,
		},
		{
			ID:          "microphone-rate-limit",
			Name:        "Microphone request rate limit",
			Description: "Rate-limits repeated microphone requests from the same bundle.",
			Condition: PermissionPolicyCondition{
				Kind: CondAnd,
				Children: []PermissionPolicyCondition{
					{Kind: CondServiceName, Pattern: "Microphone"},
					{Kind: CondFrequencyLimit, FreqMax: 5, FreqWindow: 300 * time.Second},
				},
			},
			Action:   PolicyAction{Kind: ActionRateLimit, MaxCount: 5, Duration: 300 * time.Second},
			Priority: PriorityMedium,
			Enabled:  true,
		},
		{
			ID:          "screen-recording-critical",
			Name:        "Screen capture requires authentication",
			Description: "Every screen capture request requires re-authentication.",
			Condition: PermissionPolicyCondition{
				Kind: CondServiceName, Pattern: "ScreenCapture",
			},
			Action:   PolicyAction{Kind: ActionRequireAuthentication},
			Priority: PriorityCritical,
			Enabled:  true,
		},
		{
			ID:          "accessibility-temp-allow",
			Name:        "Accessibility temporary allow for user-initiated requests",
			Description: "Grants a one-hour temporary allow for user-initiated accessibility requests.",
			Condition: PermissionPolicyCondition{
				Kind: CondAnd,
				Children: []PermissionPolicyCondition{
					{Kind: CondServiceName, Pattern: "Accessibility"},
					{Kind: CondContext, Context: "UserInitiated"},
				},
			},
			Action:   PolicyAction{Kind: ActionAllowTemporary, Duration: 3600 * time.Second},
			Priority: PriorityMedium,
			Enabled:  true,
		},
	}
}
