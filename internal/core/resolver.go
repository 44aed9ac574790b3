package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DecisionKind is the outcome category of a resolution
type DecisionKind string

const (
	DecisionAllowed DecisionKind = "allowed"
	DecisionBlocked DecisionKind = "blocked"
	DecisionLimited DecisionKind = "limited"
)

// Decision is the effective policy for an app at an instant
type Decision struct {
	Kind         DecisionKind
	LimitMinutes int64  // set when Kind is DecisionLimited
	Rule         string // name of the rule that produced the decision
}

// Allowed returns an Allowed decision
func Allowed(rule string) Decision {
	return Decision{Kind: DecisionAllowed, Rule: rule}
}

// Blocked returns a Blocked decision
func Blocked(rule string) Decision {
	return Decision{Kind: DecisionBlocked, Rule: rule}
}

// LimitedTo returns a LimitedTo(minutes) decision
func LimitedTo(minutes int64, rule string) Decision {
	return Decision{Kind: DecisionLimited, LimitMinutes: minutes, Rule: rule}
}

// Exceeded reports whether usage trips the decision. Blocked is always
// exceeded, Allowed never is.
func (d Decision) Exceeded(usage time.Duration) bool {
	switch d.Kind {
	case DecisionBlocked:
		return true
	case DecisionLimited:
		return int64(usage/time.Minute) >= d.LimitMinutes
	default:
		return false
	}
}

func (d Decision) String() string {
	if d.Kind == DecisionLimited {
		return fmt.Sprintf("limited(%dm)", d.LimitMinutes)
	}
	return string(d.Kind)
}

// Verdict combines a decision with today's usage
type Verdict struct {
	PackageID string
	Decision  Decision
	Usage     time.Duration
	Exceeded  bool
	At        time.Time
}

// Rule is one layer of policy. It returns ok=false when it has no opinion
// about the app, letting lower-priority rules decide.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, packageID string, now time.Time) (Decision, bool, error)
}

// Resolver folds an ordered list of rules and returns the first decision
type Resolver struct {
	rules  []Rule
	ledger *UsageLedger
	clock  Clock
	logger *slog.Logger
}

// NewResolver creates a resolver over rules, evaluated in order
func NewResolver(rules []Rule, ledger *UsageLedger, clock Clock, logger *slog.Logger) *Resolver {
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		rules:  rules,
		ledger: ledger,
		clock:  clock,
		logger: logger.With("component", "resolver"),
	}
}

// DefaultRules returns the standard priority order: break, profiles, app limit
func DefaultRules(breaks *BreakController, profiles *ProfileService, limits AppLimitStorage) []Rule {
	return []Rule{
		&BreakOverrideRule{Breaks: breaks},
		&ProfilePolicyRule{Profiles: profiles},
		&AppLimitRule{Limits: limits},
	}
}

// Rules returns the names of the rules in evaluation order
func (r *Resolver) Rules() []string {
	names := make([]string, 0, len(r.rules))
	for _, rule := range r.rules {
		names = append(names, rule.Name())
	}
	return names
}

// Resolve samples the clock once and resolves packageID at that instant
func (r *Resolver) Resolve(ctx context.Context, packageID string) (Decision, error) {
	return r.ResolveAt(ctx, packageID, r.clock.Now())
}

// ResolveAt resolves packageID at now. With no matching rule the app is allowed.
func (r *Resolver) ResolveAt(ctx context.Context, packageID string, now time.Time) (Decision, error) {
	for _, rule := range r.rules {
		decision, ok, err := rule.Evaluate(ctx, packageID, now)
		if err != nil {
			return Decision{}, fmt.Errorf("rule %s: %w", rule.Name(), err)
		}
		if ok {
			decision.Rule = rule.Name()
			return decision, nil
		}
	}
	return Allowed("default"), nil
}

// Check resolves packageID at now and compares the decision with today's usage
func (r *Resolver) Check(ctx context.Context, packageID string, now time.Time) (*Verdict, error) {
	decision, err := r.ResolveAt(ctx, packageID, now)
	if err != nil {
		return nil, err
	}

	verdict := &Verdict{
		PackageID: packageID,
		Decision:  decision,
		At:        now,
	}

	// Usage is irrelevant for Allowed and Blocked
	if decision.Kind == DecisionLimited && r.ledger != nil {
		usage, err := r.ledger.TotalFor(ctx, packageID, now)
		if err != nil {
			return nil, err
		}
		verdict.Usage = usage
	}
	verdict.Exceeded = decision.Exceeded(verdict.Usage)

	r.logger.Debug("resolved",
		"package_id", packageID,
		"decision", decision.String(),
		"rule", decision.Rule,
		"usage", verdict.Usage,
		"exceeded", verdict.Exceeded)

	return verdict, nil
}

// BreakOverrideRule blocks everything but whitelisted apps while a break
// runs. An expired break is stopped and the rule abstains.
type BreakOverrideRule struct {
	Breaks *BreakController
}

func (r *BreakOverrideRule) Name() string { return "break" }

func (r *BreakOverrideRule) Evaluate(ctx context.Context, packageID string, now time.Time) (Decision, bool, error) {
	if r.Breaks == nil || !r.Breaks.IsActive() {
		return Decision{}, false, nil
	}
	if r.Breaks.Remaining(now) == 0 {
		// Expired: formally stop and fall through in the same call
		if _, err := r.Breaks.ExpireIfDue(ctx, now); err != nil {
			return Decision{}, false, err
		}
		return Decision{}, false, nil
	}
	if r.Breaks.IsWhitelisted(packageID) {
		return Allowed(r.Name()), true, nil
	}
	return Blocked(r.Name()), true, nil
}

// ProfilePolicyRule aggregates the policies of all effective profiles
type ProfilePolicyRule struct {
	Profiles *ProfileService
}

func (r *ProfilePolicyRule) Name() string { return "profile" }

func (r *ProfilePolicyRule) Evaluate(ctx context.Context, packageID string, now time.Time) (Decision, bool, error) {
	if r.Profiles == nil {
		return Decision{}, false, nil
	}
	policies, err := r.Profiles.ActivePoliciesFor(ctx, packageID, now)
	if err != nil {
		return Decision{}, false, err
	}
	decision, ok := AggregatePolicies(policies)
	decision.Rule = r.Name()
	return decision, ok, nil
}

// AggregatePolicies combines the policies of several effective profiles for
// one app. Any block wins; otherwise the smallest positive cap; otherwise an
// explicit unlimited allows. No policies means no opinion.
func AggregatePolicies(policies []ProfileAppPolicy) (Decision, bool) {
	var (
		strictest int64
		unlimited bool
	)
	for _, p := range policies {
		switch {
		case p.IsBlocked():
			return Blocked(""), true
		case p.LimitMinutes > 0:
			if strictest == 0 || p.LimitMinutes < strictest {
				strictest = p.LimitMinutes
			}
		case p.IsUnlimited():
			unlimited = true
		}
	}
	if strictest > 0 {
		return LimitedTo(strictest, ""), true
	}
	if unlimited {
		return Allowed(""), true
	}
	return Decision{}, false
}

// AppLimitRule falls back to the flat per-app limit. It always decides.
type AppLimitRule struct {
	Limits AppLimitStorage
}

func (r *AppLimitRule) Name() string { return "app_limit" }

func (r *AppLimitRule) Evaluate(ctx context.Context, packageID string, now time.Time) (Decision, bool, error) {
	if r.Limits == nil {
		return Allowed(r.Name()), true, nil
	}
	limit, err := r.Limits.GetAppLimit(ctx, packageID)
	if errors.Is(err, ErrAppLimitNotFound) {
		return Allowed(r.Name()), true, nil
	}
	if err != nil {
		return Decision{}, false, storageErr("get app limit", err)
	}
	return LimitedTo(int64(limit.LimitMinutes), r.Name()), true, nil
}
