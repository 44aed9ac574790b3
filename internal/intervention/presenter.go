package intervention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"focusguard/internal/core"
	"focusguard/internal/idgen"
)

const (
	// ExtensionMinutes is the allowance granted by "5 more minutes"
	ExtensionMinutes = 5
	// MaxOverrideMinutes caps a single emergency override
	MaxOverrideMinutes = 60
	// challengeTTL bounds how long an issued challenge can be answered
	challengeTTL = 2 * time.Minute

	ReasonExtension = "extension"
)

var (
	ErrChallengeNotFound = errors.New("challenge not found or expired")
	ErrInvalidOverride   = errors.New("override duration must be between 1 and 60 minutes")
)

// OverlayContext is handed to the overlay surface when a block is shown
type OverlayContext struct {
	PackageID    string
	Decision     string
	Rule         string
	Usage        time.Duration
	LimitMinutes int64
	// NavigateHome asks the surface to move the user away from the app
	NavigateHome bool
	// OverrideAvailable tells the surface to offer the emergency challenge
	OverrideAvailable bool
}

// OverlaySurface renders the blocking overlay
type OverlaySurface interface {
	Present(ctx context.Context, packageID string, oc OverlayContext) (string, error)
	Dismiss(ctx context.Context, handle string) error
}

// Challenge is a small arithmetic task gating an emergency override
type Challenge struct {
	ID        string
	PackageID string
	Question  string
	ExpiresAt time.Time
	answer    int
}

// Presenter shows at most one blocking overlay at a time and hands out
// temporary allowances through overrides and extensions
type Presenter struct {
	surface   OverlaySurface
	overrides core.OverrideLogStorage
	clock     core.Clock
	logger    *slog.Logger

	mu         sync.Mutex
	handle     string
	showingFor string
	shownAt    time.Time
	challenges map[string]*Challenge
	grants     map[string]time.Time // package -> allowed until
	onRelease  func(packageID string)
}

// NewPresenter creates a new presenter
func NewPresenter(surface OverlaySurface, overrides core.OverrideLogStorage, clock core.Clock, logger *slog.Logger) *Presenter {
	if clock == nil {
		clock = core.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Presenter{
		surface:    surface,
		overrides:  overrides,
		clock:      clock,
		logger:     logger.With("component", "presenter"),
		challenges: make(map[string]*Challenge),
		grants:     make(map[string]time.Time),
	}
}

// OnRelease registers fn to be called when an allowance is granted for a
// package, so the monitor can leave its Blocked state
func (p *Presenter) OnRelease(fn func(packageID string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onRelease = fn
}

// Show presents the overlay for packageID. It is a no-op returning false when
// an overlay is already showing.
func (p *Presenter) Show(ctx context.Context, packageID string, oc OverlayContext) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle != "" {
		p.logger.Debug("overlay already showing",
			"package_id", packageID,
			"showing_for", p.showingFor)
		return false, nil
	}

	oc.PackageID = packageID
	oc.NavigateHome = true
	oc.OverrideAvailable = p.overrides != nil

	handle, err := p.surface.Present(ctx, packageID, oc)
	if err != nil {
		return false, fmt.Errorf("present overlay: %w", err)
	}

	p.handle = handle
	p.showingFor = packageID
	p.shownAt = p.clock.Now()

	p.logger.Info("overlay shown",
		"package_id", packageID,
		"handle", handle,
		"decision", oc.Decision,
		"rule", oc.Rule)
	return true, nil
}

// Dismiss removes the overlay if one is showing
func (p *Presenter) Dismiss(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dismissLocked(ctx)
}

// DismissFor removes the overlay only if it is showing for packageID
func (p *Presenter) DismissFor(ctx context.Context, packageID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.showingFor != packageID {
		return nil
	}
	return p.dismissLocked(ctx)
}

// Dismissed records that the surface itself closed the overlay with handle
// (for example the user pressed back). Unknown handles are ignored.
func (p *Presenter) Dismissed(handle string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if handle == "" || handle != p.handle {
		return false
	}
	p.logger.Debug("overlay dismissed by surface", "handle", handle, "package_id", p.showingFor)
	p.clearLocked()
	return true
}

func (p *Presenter) dismissLocked(ctx context.Context) error {
	if p.handle == "" {
		return nil
	}
	handle := p.handle
	pkg := p.showingFor
	// The guard is cleared even if the surface fails
	p.clearLocked()

	if err := p.surface.Dismiss(ctx, handle); err != nil {
		return fmt.Errorf("dismiss overlay: %w", err)
	}
	p.logger.Info("overlay dismissed", "handle", handle, "package_id", pkg)
	return nil
}

func (p *Presenter) clearLocked() {
	p.handle = ""
	p.showingFor = ""
	p.shownAt = time.Time{}
}

// Showing returns the package the overlay is showing for
func (p *Presenter) Showing() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.showingFor, p.handle != ""
}

// Allowed reports whether a temporary allowance for packageID is in force
func (p *Presenter) Allowed(packageID string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	until, ok := p.grants[packageID]
	if !ok {
		return false
	}
	if !now.Before(until) {
		delete(p.grants, packageID)
		return false
	}
	return true
}

// AllowedUntil returns when the allowance for packageID ends
func (p *Presenter) AllowedUntil(packageID string) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	until, ok := p.grants[packageID]
	return until, ok
}

// IssueChallenge creates an arithmetic challenge for an emergency override
func (p *Presenter) IssueChallenge(packageID string) (*Challenge, error) {
	if packageID == "" {
		return nil, core.ErrInvalidPackageID
	}

	a := 10 + rand.Intn(90)
	b := 10 + rand.Intn(90)
	c := 2 + rand.Intn(8)

	challenge := &Challenge{
		ID:        idgen.NewChallenge(),
		PackageID: packageID,
		Question:  fmt.Sprintf("%d + %d × %d", a, b, c),
		ExpiresAt: p.clock.Now().Add(challengeTTL),
		answer:    a + b*c,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.pruneChallengesLocked(p.clock.Now())
	p.challenges[challenge.ID] = challenge

	copied := *challenge
	return &copied, nil
}

// SubmitOverride checks the answer to a challenge. A wrong answer returns
// false and keeps the challenge open; a right one grants minutes of use,
// logs the override and releases the block.
func (p *Presenter) SubmitOverride(ctx context.Context, challengeID string, answer int, reason string, minutes int) (bool, error) {
	if minutes <= 0 || minutes > MaxOverrideMinutes {
		return false, ErrInvalidOverride
	}

	now := p.clock.Now()

	p.mu.Lock()
	p.pruneChallengesLocked(now)
	challenge, ok := p.challenges[challengeID]
	if !ok {
		p.mu.Unlock()
		return false, ErrChallengeNotFound
	}
	if challenge.answer != answer {
		p.mu.Unlock()
		p.logger.Info("override refused", "package_id", challenge.PackageID, "challenge_id", challengeID)
		return false, nil
	}
	delete(p.challenges, challengeID)
	p.mu.Unlock()

	if reason == "" {
		reason = "emergency"
	}
	if err := p.grant(ctx, challenge.PackageID, reason, minutes, now); err != nil {
		return false, err
	}
	return true, nil
}

// GrantExtension allows packageID for ExtensionMinutes more minutes
func (p *Presenter) GrantExtension(ctx context.Context, packageID string) error {
	if packageID == "" {
		return core.ErrInvalidPackageID
	}
	return p.grant(ctx, packageID, ReasonExtension, ExtensionMinutes, p.clock.Now())
}

func (p *Presenter) grant(ctx context.Context, packageID, reason string, minutes int, now time.Time) error {
	entry := &core.OverrideLogEntry{
		ID:              idgen.NewOverride(),
		PackageID:       packageID,
		Timestamp:       now,
		Reason:          reason,
		DurationMinutes: minutes,
	}
	if p.overrides != nil {
		if err := p.overrides.AppendOverride(ctx, entry); err != nil {
			return &core.StorageError{Op: "append override", Err: err}
		}
	}

	p.mu.Lock()
	p.grants[packageID] = now.Add(time.Duration(minutes) * time.Minute)
	release := p.onRelease
	var dismissErr error
	if p.showingFor == packageID {
		dismissErr = p.dismissLocked(ctx)
	}
	p.mu.Unlock()

	p.logger.Info("allowance granted",
		"package_id", packageID,
		"reason", reason,
		"duration_minutes", minutes)

	if release != nil {
		release(packageID)
	}
	if dismissErr != nil {
		p.logger.Warn("failed to dismiss overlay after grant", "package_id", packageID, "error", dismissErr)
	}
	return nil
}

func (p *Presenter) pruneChallengesLocked(now time.Time) {
	for id, c := range p.challenges {
		if !now.Before(c.ExpiresAt) {
			delete(p.challenges, id)
		}
	}
}
