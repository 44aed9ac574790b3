package core

import (
	"context"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// StrictModeGuard protects destructive user actions (ending a break early,
// turning off profiles, removing limits) behind a PIN.
// A wrong PIN is reported as false, never as an error.
type StrictModeGuard struct {
	storage StrictModeStorage
	clock   Clock
	mu      sync.Mutex
}

// NewStrictModeGuard creates a new strict mode guard
func NewStrictModeGuard(storage StrictModeStorage, clock Clock) *StrictModeGuard {
	if clock == nil {
		clock = RealClock{}
	}
	return &StrictModeGuard{storage: storage, clock: clock}
}

// Enabled reports whether strict mode is on
func (g *StrictModeGuard) Enabled(ctx context.Context) (bool, error) {
	mode, err := g.storage.GetStrictMode(ctx)
	if err != nil {
		return false, storageErr("get strict mode", err)
	}
	return mode != nil && mode.Enabled, nil
}

// Enable turns strict mode on with the given PIN
func (g *StrictModeGuard) Enable(ctx context.Context, pin string) error {
	if !validPIN(pin) {
		return ErrInvalidPIN
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	enabled, err := g.Enabled(ctx)
	if err != nil {
		return err
	}
	if enabled {
		return ErrStrictModeEnabled
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	mode := &StrictMode{
		Enabled:   true,
		PINHash:   string(hash),
		UpdatedAt: g.clock.Now(),
	}
	return storageErr("save strict mode", g.storage.SaveStrictMode(ctx, mode))
}

// Disable turns strict mode off if pin matches. It returns false for a
// wrong PIN.
func (g *StrictModeGuard) Disable(ctx context.Context, pin string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	mode, err := g.storage.GetStrictMode(ctx)
	if err != nil {
		return false, storageErr("get strict mode", err)
	}
	if mode == nil || !mode.Enabled {
		return false, ErrStrictModeDisabled
	}
	if !pinMatches(mode.PINHash, pin) {
		return false, nil
	}

	mode.Enabled = false
	mode.PINHash = ""
	mode.UpdatedAt = g.clock.Now()
	if err := g.storage.SaveStrictMode(ctx, mode); err != nil {
		return false, storageErr("save strict mode", err)
	}
	return true, nil
}

// Authorize reports whether a guarded action may proceed: always when strict
// mode is off, otherwise only with the right PIN
func (g *StrictModeGuard) Authorize(ctx context.Context, pin string) (bool, error) {
	mode, err := g.storage.GetStrictMode(ctx)
	if err != nil {
		return false, storageErr("get strict mode", err)
	}
	if mode == nil || !mode.Enabled {
		return true, nil
	}
	return pinMatches(mode.PINHash, pin), nil
}

func pinMatches(hash, pin string) bool {
	if hash == "" || pin == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}

func validPIN(pin string) bool {
	if len(pin) < 4 || len(pin) > 8 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
