package permission

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/privarion/privarion/internal/perr"
)

// Engine is the PermissionPolicyEngine: rule evaluation, decision
// resolution, frequency limits, and a background expiry sweep for the
// grants it creates directly.
type Engine struct {
	store    Store
	tempMgr  *Manager
	policies []PermissionPolicy

	contextQuery rego.PreparedEvalQuery

	maxConcurrent int
	inFlight      chan struct{}

	mu       sync.Mutex
	history  map[string][]time.Time // key: bundleID+"\x00"+service

	localGrantsMu sync.Mutex
	localGrants   map[string]TemporaryPermissionGrant
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	MaxConcurrentEvaluations int
	Policies                 []PermissionPolicy // nil uses DefaultPolicies
}

// NewEngine creates a PermissionPolicyEngine seeded with the default
// policies and prepares the OPA query used for Context(...)
// conditions.
func NewEngine(store Store, tempMgr *Manager, cfg EngineConfig) (*Engine, error) {
	if cfg.MaxConcurrentEvaluations <= 0 {
		cfg.MaxConcurrentEvaluations = 10
	}

	r := rego.New(
		rego.Query("data.privarion.permission.context_match"),
		rego.Module("context.rego", contextMatchModule),
	)
	pq, err := r.PrepareForEval(context.Background())
	if err != nil {
		return nil, fmt.Errorf("preparing context-condition OPA query: %w", err)
	}

	e := &Engine{
		store:         store,
		tempMgr:       tempMgr,
		contextQuery:  pq,
		maxConcurrent: cfg.MaxConcurrentEvaluations,
		inFlight:      make(chan struct{}, cfg.MaxConcurrentEvaluations),
		history:       make(map[string][]time.Time),
		localGrants:   make(map[string]TemporaryPermissionGrant),
	}
	e.policies = cfg.Policies
	if e.policies == nil {
		e.policies = DefaultPolicies()
	}
	return e, nil
}

// contextMatchModule is evaluated for Context(...) conditions: it defers
// pattern matching to Rego rather than hand-rolled Go, mirroring how the
// wider policy stack delegates open-ended matching to OPA.
const contextMatchModule = `package privarion.permission

default context_match = false

context_match if {
	input.observed == input.expected
}
`

// AddPolicy appends a policy, preserving insertion order for priority ties.
func (e *Engine) AddPolicy(p PermissionPolicy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies = append(e.policies, p)
}

// Policies returns the currently loaded policy set.
func (e *Engine) Policies() []PermissionPolicy {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]PermissionPolicy, len(e.policies))
	copy(out, e.policies)
	return out
}

// ReplacePolicies atomically swaps the loaded policy set, for hot-reload
// when the backing policy file changes on disk.
func (e *Engine) ReplacePolicies(policies []PermissionPolicy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies = policies
}

// Evaluate runs the full decision pipeline within the admission budget
//. Admission is checked before any work begins.
func (e *Engine) Evaluate(ctx context.Context, req EvaluationRequest) (EvaluationResult, error) {
	select {
	case e.inFlight <- struct{}{}:
		defer func() { <-e.inFlight }()
	default:
		return EvaluationResult{}, perr.New(perr.CodeSystemOverloaded, "evaluation admission limit reached")
	}

	start := time.Now()
	e.recordHistory(req)

	status, _, _ := e.store.GetStatus(ctx, req.BundleID, req.Service)

	var matches []matchedPolicy
	for i, p := range e.Policies() {
		if !p.Enabled {
			continue
		}
		if e.evaluateCondition(ctx, p.Condition, req, status) {
			matches = append(matches, matchedPolicy{policy: p, index: i})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].policy.Priority > matches[j].policy.Priority
	})

	result := EvaluationResult{RequestID: req.RequestID}
	var matchedIDs []string
	for _, m := range matches {
		matchedIDs = append(matchedIDs, m.policy.ID)
	}
	result.MatchedPolicyIDs = matchedIDs

	decided := false
	for _, m := range matches {
		action := m.policy.Action
		switch action.Kind {
		case ActionDeny:
			result.Decision = action
			decided = true
		case ActionAllow:
			result.Decision = action
			decided = true
		case ActionAllowTemporary:
			expires := req.Timestamp.Add(action.Duration)
			result.Decision = PolicyAction{Kind: ActionAllowTemporary, Duration: action.Duration}
			result.Reasoning = fmt.Sprintf("temporary allow until %s via policy %s", expires.Format(time.RFC3339), m.policy.ID)
			decided = true
		case ActionRequireUserConsent, ActionRequireAuthentication:
			result.Decision = action
			decided = true
		case ActionQuarantine:
			if action.BundleID == req.BundleID {
				result.Decision = PolicyAction{Kind: ActionBlocked}
				result.Reasoning = "quarantined"
				decided = true
			}
		}
		if decided {
			break
		}
	}
	if !decided {
		result.Decision = PolicyAction{Kind: ActionAllow}
	}

	for _, m := range matches {
		result.AppliedActions = append(result.AppliedActions, m.policy.Action)
		switch m.policy.Action.Kind {
		case ActionLogAndAlert:
			slog.Log(ctx, severityToLogLevel(m.policy.Action.Severity), "policy log-and-alert fired",
				"policy_id", m.policy.ID, "bundle_id", req.BundleID, "service", req.Service)
		case ActionAllowTemporary:
			if e.tempMgr != nil {
				if _, err := e.tempMgr.Grant(GrantRequest{
					BundleID: req.BundleID,
					Service:  req.Service,
					Duration: m.policy.Action.Duration,
					GrantedBy: "policy:" + m.policy.ID,
				}); err != nil {
					slog.Warn("failed to create temporary grant from policy decision", "policy_id", m.policy.ID, "error", err)
				}
			}
			e.trackLocalGrant(req, m.policy.Action.Duration)
		}
	}

	result.EvaluationTime = time.Since(start)
	result.Confidence = confidence(matches)
	return result, nil
}

// matchedPolicy pairs a matched policy with its original insertion index.
// The index is not read; sort.SliceStable keeps priority ties in insertion
// order.
type matchedPolicy struct {
	policy PermissionPolicy
	index  int
}

func confidence(matches []matchedPolicy) float64 {
	if len(matches) == 0 {
		return 0
	}
	var sum int
	for _, m := range matches {
		sum += int(m.policy.Priority) + 1
	}
	return float64(sum) / float64(len(matches)*(int(PriorityCritical)+1))
}

func severityToLogLevel(s Severity) slog.Level {
	switch s {
	case SeverityEmergency, SeverityAlert, SeverityCritical:
		return slog.LevelError
	case SeverityError, SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func (e *Engine) recordHistory(req EvaluationRequest) {
	e.mu.Lock()
	defer e.mu.Unlock()
	k := req.BundleID + "\x00" + req.Service
	hist := append(e.history[k], req.Timestamp)
	if len(hist) > 100 {
		hist = hist[len(hist)-100:]
	}
	e.history[k] = hist
}

func (e *Engine) frequencyCount(bundleID, service string, window time.Duration, asOf time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	hist := e.history[bundleID+"\x00"+service]
	cutoff := asOf.Add(-window)
	count := 0
	for _, t := range hist {
		if t.After(cutoff) {
			count++
		}
	}
	// Evaluate records the current request before evaluating conditions;
	// only prior requests count toward the limit.
	if count > 0 {
		count--
	}
	return count
}

func (e *Engine) evaluateCondition(ctx context.Context, c PermissionPolicyCondition, req EvaluationRequest, status AuthValue) bool {
	switch c.Kind {
	case CondServiceName:
		return matchPattern(c.Pattern, req.Service)
	case CondBundleID:
		return matchPattern(c.Pattern, req.BundleID)
	case CondPermissionStatus:
		return status == c.Status
	case CondRequestOrigin:
		return req.Origin == c.Origin
	case CondContext:
		return e.evaluateContextOPA(ctx, c.Context, req.Context)
	case CondTimeWindow:
		return !req.Timestamp.Before(c.WindowStart) && !req.Timestamp.After(c.WindowEnd)
	case CondFrequencyLimit:
		return e.frequencyCount(req.BundleID, req.Service, c.FreqWindow, req.Timestamp) >= c.FreqMax
	case CondAnd:
		for _, child := range c.Children {
			if !e.evaluateCondition(ctx, child, req, status) {
				return false
			}
		}
		return true
	case CondOr:
		for _, child := range c.Children {
			if e.evaluateCondition(ctx, child, req, status) {
				return true
			}
		}
		return false
	case CondNot:
		if c.Child == nil {
			return false
		}
		return !e.evaluateCondition(ctx, *c.Child, req, status)
	default:
		return false
	}
}

func (e *Engine) evaluateContextOPA(ctx context.Context, expected, observed string) bool {
	rs, err := e.contextQuery.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"expected": expected,
		"observed": observed,
	}))
	if err != nil || len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false
	}
	matched, _ := rs[0].Expressions[0].Value.(bool)
	return matched
}

// matchPattern supports exact match plus a single leading or trailing '*'
// wildcard, mirroring the monitoring engine's path-filter semantics.
func matchPattern(pattern, value string) bool {
	switch {
	case pattern == "" || pattern == "*":
		return true
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(value, strings.TrimSuffix(pattern, "*"))
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(value, strings.TrimPrefix(pattern, "*"))
	default:
		return pattern == value
	}
}

func (e *Engine) trackLocalGrant(req EvaluationRequest, d time.Duration) {
	e.localGrantsMu.Lock()
	defer e.localGrantsMu.Unlock()
	k := req.BundleID + "\x00" + req.Service
	e.localGrants[k] = TemporaryPermissionGrant{
		BundleID:  req.BundleID,
		Service:   req.Service,
		GrantedAt: req.Timestamp,
		ExpiresAt: req.Timestamp.Add(d),
	}
}

// StartSweepLoop runs the engine's local expired-grant sweep every 60s,
// mirroring the manager-level cleanup but scoped to the engine's own cache.
func (e *Engine) StartSweepLoop(ctx context.Context) {
	ticker := time.NewTicker(60 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.sweepLocalGrants()
			}
		}
	}()
}

func (e *Engine) sweepLocalGrants() {
	e.localGrantsMu.Lock()
	defer e.localGrantsMu.Unlock()
	now := time.Now()
	for k, g := range e.localGrants {
		if g.IsExpired(now) {
			delete(e.localGrants, k)
		}
	}
}
