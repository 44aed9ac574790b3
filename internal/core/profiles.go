package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"focusguard/internal/idgen"
)

// ProfileService manages focus profiles and answers which of them are in
// force at a given instant
type ProfileService struct {
	storage  ProfileStorage
	clock    Clock
	timezone *time.Location
}

// NewProfileService creates a new profile service
func NewProfileService(storage ProfileStorage, clock Clock, timezone *time.Location) *ProfileService {
	if clock == nil {
		clock = RealClock{}
	}
	if timezone == nil {
		timezone = time.UTC
	}
	return &ProfileService{
		storage:  storage,
		clock:    clock,
		timezone: timezone,
	}
}

// CreateProfile validates and stores a new profile. An empty ID is assigned.
func (s *ProfileService) CreateProfile(ctx context.Context, profile *FocusProfile) (*FocusProfile, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	if profile.ID == "" {
		profile.ID = idgen.NewProfile()
	}
	profile.DaysOfWeek = normalizeDays(profile.DaysOfWeek)

	now := s.clock.Now()
	profile.CreatedAt = now
	profile.UpdatedAt = now

	if err := s.storage.CreateProfile(ctx, profile); err != nil {
		return nil, storageErr("create profile", err)
	}
	return profile, nil
}

// GetProfile returns a profile by ID
func (s *ProfileService) GetProfile(ctx context.Context, id string) (*FocusProfile, error) {
	profile, err := s.storage.GetProfile(ctx, id)
	if err != nil {
		return nil, storageErr("get profile", err)
	}
	return profile, nil
}

// ListProfiles returns all profiles
func (s *ProfileService) ListProfiles(ctx context.Context) ([]*FocusProfile, error) {
	profiles, err := s.storage.ListProfiles(ctx)
	if err != nil {
		return nil, storageErr("list profiles", err)
	}
	return profiles, nil
}

// UpdateProfile validates and stores changes to an existing profile
func (s *ProfileService) UpdateProfile(ctx context.Context, profile *FocusProfile) (*FocusProfile, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	profile.DaysOfWeek = normalizeDays(profile.DaysOfWeek)
	profile.UpdatedAt = s.clock.Now()

	if err := s.storage.UpdateProfile(ctx, profile); err != nil {
		return nil, storageErr("update profile", err)
	}
	return profile, nil
}

// DeleteProfile deletes a profile together with its app policies
func (s *ProfileService) DeleteProfile(ctx context.Context, id string) error {
	return storageErr("delete profile", s.storage.DeleteProfile(ctx, id))
}

// Activate turns on manual activation. Other active profiles stay active.
func (s *ProfileService) Activate(ctx context.Context, id string) (*FocusProfile, error) {
	return s.setManual(ctx, id, true)
}

// Deactivate turns off manual activation
func (s *ProfileService) Deactivate(ctx context.Context, id string) (*FocusProfile, error) {
	return s.setManual(ctx, id, false)
}

func (s *ProfileService) setManual(ctx context.Context, id string, active bool) (*FocusProfile, error) {
	profile, err := s.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	if profile.IsManuallyActive == active {
		return profile, nil
	}
	profile.IsManuallyActive = active
	profile.UpdatedAt = s.clock.Now()

	if err := s.storage.UpdateProfile(ctx, profile); err != nil {
		return nil, storageErr("update profile", err)
	}
	return profile, nil
}

// SetPolicy creates or replaces the policy of a profile for one app
func (s *ProfileService) SetPolicy(ctx context.Context, policy *ProfileAppPolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	if _, err := s.GetProfile(ctx, policy.ProfileID); err != nil {
		return err
	}
	return storageErr("set policy", s.storage.SetProfilePolicy(ctx, policy))
}

// RemovePolicy deletes the policy of a profile for one app
func (s *ProfileService) RemovePolicy(ctx context.Context, profileID, packageID string) error {
	return storageErr("delete policy", s.storage.DeleteProfilePolicy(ctx, profileID, packageID))
}

// Policies returns all app policies of a profile
func (s *ProfileService) Policies(ctx context.Context, profileID string) ([]*ProfileAppPolicy, error) {
	policies, err := s.storage.ListProfilePolicies(ctx, profileID)
	if err != nil {
		return nil, storageErr("list policies", err)
	}
	return policies, nil
}

// PackagesIn returns the set of apps referenced by a profile's policies
func (s *ProfileService) PackagesIn(ctx context.Context, profileID string) ([]string, error) {
	if _, err := s.GetProfile(ctx, profileID); err != nil {
		return nil, err
	}
	policies, err := s.Policies(ctx, profileID)
	if err != nil {
		return nil, err
	}
	packages := make([]string, 0, len(policies))
	for _, p := range policies {
		packages = append(packages, p.PackageID)
	}
	return packages, nil
}

// EffectiveProfilesAt returns the profiles in force at instant t
func (s *ProfileService) EffectiveProfilesAt(ctx context.Context, t time.Time) ([]*FocusProfile, error) {
	profiles, err := s.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}
	return EffectiveAt(profiles, t, s.timezone), nil
}

// ActivePoliciesFor returns the policies for packageID across all profiles
// effective at t
func (s *ProfileService) ActivePoliciesFor(ctx context.Context, packageID string, t time.Time) ([]ProfileAppPolicy, error) {
	policies, err := s.storage.ListPoliciesForPackage(ctx, packageID)
	if err != nil {
		return nil, storageErr("list policies", err)
	}
	if len(policies) == 0 {
		return nil, nil
	}

	effective, err := s.EffectiveProfilesAt(ctx, t)
	if err != nil {
		return nil, err
	}
	inForce := make(map[string]bool, len(effective))
	for _, p := range effective {
		inForce[p.ID] = true
	}

	active := make([]ProfileAppPolicy, 0, len(policies))
	for _, p := range policies {
		if inForce[p.ProfileID] {
			active = append(active, *p)
		}
	}
	return active, nil
}

// normalizeDays sorts and de-duplicates weekday numbers
func normalizeDays(days []int) []int {
	seen := make(map[int]bool, len(days))
	out := make([]int, 0, len(days))
	for _, d := range days {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Ints(out)
	return out
}

// String implements fmt.Stringer for log output
func (p *FocusProfile) String() string {
	return fmt.Sprintf("%s(%s)", p.Name, p.ID)
}
