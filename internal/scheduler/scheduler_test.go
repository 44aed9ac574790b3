package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"focusguard/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock implementations

type window struct {
	start, end time.Time
}

type mockSource struct {
	mu      sync.Mutex
	usage   map[string]time.Duration
	err     error
	windows []window
}

func (m *mockSource) QuerySystemUsage(ctx context.Context, start, end time.Time) (map[string]time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows = append(m.windows, window{start, end})
	if m.err != nil {
		return nil, m.err
	}
	return m.usage, nil
}

type mockUsageStorage struct {
	records map[string]time.Duration
}

func newMockUsageStorage() *mockUsageStorage {
	return &mockUsageStorage{records: make(map[string]time.Duration)}
}

func key(pkg string, day time.Time) string {
	return day.Format("2006-01-02") + "|" + pkg
}

func (m *mockUsageStorage) AddUsage(ctx context.Context, packageID string, day time.Time, delta time.Duration, updatedAt time.Time) error {
	m.records[key(packageID, day)] += delta
	return nil
}

func (m *mockUsageStorage) SetUsage(ctx context.Context, packageID string, day time.Time, total time.Duration, updatedAt time.Time) error {
	m.records[key(packageID, day)] = total
	return nil
}

func (m *mockUsageStorage) GetUsageRecord(ctx context.Context, packageID string, day time.Time) (*core.UsageRecord, error) {
	d, ok := m.records[key(packageID, day)]
	if !ok {
		return nil, core.ErrUsageNotFound
	}
	return &core.UsageRecord{PackageID: packageID, Day: day, Duration: d}, nil
}

func (m *mockUsageStorage) ListUsageForDay(ctx context.Context, day time.Time) ([]*core.UsageRecord, error) {
	return nil, nil
}

func (m *mockUsageStorage) ListDailyTotals(ctx context.Context) ([]core.DailyTotal, error) {
	return nil, nil
}

type countingFlusher struct {
	calls int
	err   error
}

func (f *countingFlusher) Flush(ctx context.Context) error {
	f.calls++
	return f.err
}

type panickingSource struct{}

func (panickingSource) QuerySystemUsage(ctx context.Context, start, end time.Time) (map[string]time.Duration, error) {
	panic("usage stats service died")
}

func newTestScheduler(source UsageStatsSource, clock *core.MockClock, flushers ...Flusher) (*Scheduler, *mockUsageStorage) {
	storage := newMockUsageStorage()
	ledger := core.NewUsageLedger(storage, clock, time.UTC)
	return NewScheduler(source, ledger, clock, time.Minute, nil, flushers...), storage
}

func TestScheduler_ReconcilesToday(t *testing.T) {
	clock := core.NewMockClock(time.Date(2026, 10, 12, 14, 30, 0, 0, time.UTC))
	source := &mockSource{usage: map[string]time.Duration{"com.video": 40 * time.Minute}}
	s, storage := newTestScheduler(source, clock)

	storage.records[key("com.video", time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC))] = 30 * time.Minute

	s.Tick(context.Background())

	require.Len(t, source.windows, 1)
	assert.Equal(t, time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC), source.windows[0].start)
	assert.Equal(t, clock.Now(), source.windows[0].end)
	assert.Equal(t, 40*time.Minute, storage.records["2026-10-12|com.video"])
}

func TestScheduler_NeverLowersLocalUsage(t *testing.T) {
	clock := core.NewMockClock(time.Date(2026, 10, 12, 14, 30, 0, 0, time.UTC))
	source := &mockSource{usage: map[string]time.Duration{"com.video": 10 * time.Minute}}
	s, storage := newTestScheduler(source, clock)

	storage.records["2026-10-12|com.video"] = 25 * time.Minute
	s.Tick(context.Background())

	assert.Equal(t, 25*time.Minute, storage.records["2026-10-12|com.video"])
}

func TestScheduler_ClosesPreviousDayOnce(t *testing.T) {
	clock := core.NewMockClock(time.Date(2026, 10, 12, 23, 58, 0, 0, time.UTC))
	source := &mockSource{usage: map[string]time.Duration{}}
	s, _ := newTestScheduler(source, clock)
	ctx := context.Background()

	s.Tick(ctx)
	require.Len(t, source.windows, 1)

	clock.Advance(5 * time.Minute)
	s.Tick(ctx)

	// Yesterday's full window, then today's partial window
	require.Len(t, source.windows, 3)
	assert.Equal(t, window{
		start: time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC),
		end:   time.Date(2026, 10, 13, 0, 0, 0, 0, time.UTC),
	}, source.windows[1])
	assert.Equal(t, time.Date(2026, 10, 13, 0, 0, 0, 0, time.UTC), source.windows[2].start)

	clock.Advance(time.Minute)
	s.Tick(ctx)
	assert.Len(t, source.windows, 4, "previous day is reconciled only once")
}

func TestScheduler_SourceErrorIsRetried(t *testing.T) {
	clock := core.NewMockClock(time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC))
	source := &mockSource{err: errors.New("no usage stats yet")}
	flusher := &countingFlusher{}
	s, storage := newTestScheduler(source, clock, flusher)
	ctx := context.Background()

	s.Tick(ctx)
	assert.Empty(t, storage.records)
	assert.Equal(t, 1, flusher.calls, "flush runs even when reconcile fails")

	source.err = nil
	source.usage = map[string]time.Duration{"com.maps": time.Minute}
	s.Tick(ctx)
	assert.Equal(t, time.Minute, storage.records["2026-10-12|com.maps"])
}

func TestScheduler_FlushErrorsAreLogged(t *testing.T) {
	clock := core.NewMockClock(time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC))
	failing := &countingFlusher{err: errors.New("database is locked")}
	ok := &countingFlusher{}
	s, _ := newTestScheduler(nil, clock, failing, ok)

	s.Tick(context.Background())
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, ok.calls)
}

func TestScheduler_RecoversFromPanic(t *testing.T) {
	clock := core.NewMockClock(time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC))
	s, _ := newTestScheduler(panickingSource{}, clock)

	assert.NotPanics(t, func() { s.Tick(context.Background()) })
	// The mutex was released
	assert.NotPanics(t, func() { s.Tick(context.Background()) })
}

func TestScheduler_StartStop(t *testing.T) {
	source := &mockSource{usage: map[string]time.Duration{}}
	storage := newMockUsageStorage()
	ledger := core.NewUsageLedger(storage, core.RealClock{}, time.UTC)
	s := NewScheduler(source, ledger, core.RealClock{}, 10*time.Millisecond, nil)

	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	s.Stop()
	s.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}

	source.mu.Lock()
	defer source.mu.Unlock()
	assert.NotEmpty(t, source.windows)
}

func TestScheduler_DoneAfterStop(t *testing.T) {
	source := &mockSource{usage: map[string]time.Duration{}}
	ledger := core.NewUsageLedger(newMockUsageStorage(), core.RealClock{}, time.UTC)
	s := NewScheduler(source, ledger, core.RealClock{}, 10*time.Millisecond, nil)

	go s.Start(context.Background())
	s.Stop()

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not finish")
	}
}
