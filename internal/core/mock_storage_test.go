package core

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Mock implementations

type mockStorage struct {
	mu         sync.Mutex
	usage      map[string]*UsageRecord
	limits     map[string]*AppLimit
	profiles   map[string]*FocusProfile
	policies   map[string]map[string]*ProfileAppPolicy // profileID -> packageID -> policy
	breakState *BreakState
	strict     *StrictMode

	failGet    bool
	failWrite  bool
	writeCalls int
}

func newMockStorage() *mockStorage {
	return &mockStorage{
		usage:    make(map[string]*UsageRecord),
		limits:   make(map[string]*AppLimit),
		profiles: make(map[string]*FocusProfile),
		policies: make(map[string]map[string]*ProfileAppPolicy),
	}
}

var errMock = errors.New("mock storage failure")

func usageKey(pkg string, day time.Time) string {
	return pkg + "|" + day.Format("2006-01-02")
}

func (m *mockStorage) GetUsageRecord(ctx context.Context, packageID string, day time.Time) (*UsageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return nil, errMock
	}
	rec, ok := m.usage[usageKey(packageID, day)]
	if !ok {
		return nil, ErrUsageNotFound
	}
	copied := *rec
	return &copied, nil
}

func (m *mockStorage) AddUsage(ctx context.Context, packageID string, day time.Time, delta time.Duration, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCalls++
	if m.failWrite {
		return errMock
	}
	key := usageKey(packageID, day)
	rec, ok := m.usage[key]
	if !ok {
		rec = &UsageRecord{PackageID: packageID, Day: day}
		m.usage[key] = rec
	}
	rec.Duration += delta
	rec.LastUpdated = at
	return nil
}

func (m *mockStorage) SetUsage(ctx context.Context, packageID string, day time.Time, total time.Duration, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCalls++
	if m.failWrite {
		return errMock
	}
	m.usage[usageKey(packageID, day)] = &UsageRecord{PackageID: packageID, Day: day, Duration: total, LastUpdated: at}
	return nil
}

func (m *mockStorage) ListUsageForDay(ctx context.Context, day time.Time) ([]*UsageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*UsageRecord
	for _, rec := range m.usage {
		if rec.Day.Equal(day) {
			copied := *rec
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockStorage) ListDailyTotals(ctx context.Context) ([]DailyTotal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byDay := map[string]*DailyTotal{}
	for _, rec := range m.usage {
		key := rec.Day.Format("2006-01-02")
		if _, ok := byDay[key]; !ok {
			byDay[key] = &DailyTotal{Day: rec.Day}
		}
		byDay[key].Total += rec.Duration
	}
	out := make([]DailyTotal, 0, len(byDay))
	for _, total := range byDay {
		out = append(out, *total)
	}
	return out, nil
}

func (m *mockStorage) GetAppLimit(ctx context.Context, packageID string) (*AppLimit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return nil, errMock
	}
	limit, ok := m.limits[packageID]
	if !ok {
		return nil, ErrAppLimitNotFound
	}
	return limit, nil
}

func (m *mockStorage) ListAppLimits(ctx context.Context) ([]*AppLimit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*AppLimit, 0, len(m.limits))
	for _, l := range m.limits {
		out = append(out, l)
	}
	return out, nil
}

func (m *mockStorage) SaveAppLimit(ctx context.Context, limit *AppLimit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits[limit.PackageID] = limit
	return nil
}

func (m *mockStorage) DeleteAppLimit(ctx context.Context, packageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.limits[packageID]; !ok {
		return ErrAppLimitNotFound
	}
	delete(m.limits, packageID)
	return nil
}

func (m *mockStorage) CreateProfile(ctx context.Context, profile *FocusProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite {
		return errMock
	}
	copied := *profile
	m.profiles[profile.ID] = &copied
	return nil
}

func (m *mockStorage) GetProfile(ctx context.Context, id string) (*FocusProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrProfileNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *mockStorage) ListProfiles(ctx context.Context) ([]*FocusProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return nil, errMock
	}
	out := make([]*FocusProfile, 0, len(m.profiles))
	for _, p := range m.profiles {
		copied := *p
		out = append(out, &copied)
	}
	return out, nil
}

func (m *mockStorage) UpdateProfile(ctx context.Context, profile *FocusProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[profile.ID]; !ok {
		return ErrProfileNotFound
	}
	copied := *profile
	m.profiles[profile.ID] = &copied
	return nil
}

func (m *mockStorage) DeleteProfile(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[id]; !ok {
		return ErrProfileNotFound
	}
	delete(m.profiles, id)
	delete(m.policies, id)
	return nil
}

func (m *mockStorage) SetProfilePolicy(ctx context.Context, policy *ProfileAppPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.policies[policy.ProfileID]; !ok {
		m.policies[policy.ProfileID] = map[string]*ProfileAppPolicy{}
	}
	copied := *policy
	m.policies[policy.ProfileID][policy.PackageID] = &copied
	return nil
}

func (m *mockStorage) DeleteProfilePolicy(ctx context.Context, profileID, packageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.policies[profileID][packageID]; !ok {
		return ErrPolicyNotFound
	}
	delete(m.policies[profileID], packageID)
	return nil
}

func (m *mockStorage) ListProfilePolicies(ctx context.Context, profileID string) ([]*ProfileAppPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ProfileAppPolicy
	for _, p := range m.policies[profileID] {
		copied := *p
		out = append(out, &copied)
	}
	return out, nil
}

func (m *mockStorage) ListPoliciesForPackage(ctx context.Context, packageID string) ([]*ProfileAppPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return nil, errMock
	}
	var out []*ProfileAppPolicy
	for _, byPkg := range m.policies {
		if p, ok := byPkg[packageID]; ok {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockStorage) GetBreakState(ctx context.Context) (*BreakState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return nil, errMock
	}
	if m.breakState == nil {
		return nil, nil
	}
	copied := *m.breakState
	return &copied, nil
}

func (m *mockStorage) SaveBreakState(ctx context.Context, state *BreakState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCalls++
	if m.failWrite {
		return errMock
	}
	copied := *state
	m.breakState = &copied
	return nil
}

func (m *mockStorage) GetStrictMode(ctx context.Context) (*StrictMode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.strict == nil {
		return nil, nil
	}
	copied := *m.strict
	return &copied, nil
}

func (m *mockStorage) SaveStrictMode(ctx context.Context, mode *StrictMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *mode
	m.strict = &copied
	return nil
}

func (m *mockStorage) addProfile(p *FocusProfile, policies map[string]int64) {
	m.profiles[p.ID] = p
	for pkg, limit := range policies {
		if _, ok := m.policies[p.ID]; !ok {
			m.policies[p.ID] = map[string]*ProfileAppPolicy{}
		}
		m.policies[p.ID][pkg] = &ProfileAppPolicy{ProfileID: p.ID, PackageID: pkg, LimitMinutes: limit}
	}
}
