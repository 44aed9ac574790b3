package core

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// UsageLedger is the source of truth for how long each app has been in the
// foreground on each day. It accepts incremental ticks from the monitor and
// periodic bulk reconciliation against the platform's usage statistics.
//
// Both write paths mutate the same (package, day) record, so they are
// serialized by a single ledger-wide lock.
type UsageLedger struct {
	storage  UsageStorage
	clock    Clock
	timezone *time.Location
	mu       sync.Mutex
}

// ReconcileResult summarizes a reconciliation pass
type ReconcileResult struct {
	Updated   []string // system total was larger, local overwritten
	Corrected []string // local total exceeded the daily sanity bound
	Kept      []string // local total trusted
}

// NewUsageLedger creates a new usage ledger
func NewUsageLedger(storage UsageStorage, clock Clock, timezone *time.Location) *UsageLedger {
	if clock == nil {
		clock = RealClock{}
	}
	if timezone == nil {
		timezone = time.UTC
	}
	return &UsageLedger{
		storage:  storage,
		clock:    clock,
		timezone: timezone,
	}
}

// Day normalizes t to local midnight in the ledger's timezone
func (l *UsageLedger) Day(t time.Time) time.Time {
	return NormalizeDate(t, l.timezone)
}

// Timezone returns the location used to split days
func (l *UsageLedger) Timezone() *time.Location {
	return l.timezone
}

// AddUsage adds delta to the record for (packageID, day), creating it if
// absent. This path is always additive.
func (l *UsageLedger) AddUsage(ctx context.Context, packageID string, delta time.Duration, day time.Time) error {
	if packageID == "" {
		return ErrInvalidPackageID
	}
	if delta < 0 {
		return ErrNegativeDelta
	}
	if delta == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.storage.AddUsage(ctx, packageID, l.Day(day), delta, l.clock.Now())
	return storageErr("add usage", err)
}

// Reconcile compares the system-reported totals for day with the local
// totals. The local value is overwritten when the system total is larger or
// when the local total is above MaxDailyUsage; otherwise it is kept.
func (l *UsageLedger) Reconcile(ctx context.Context, day time.Time, observed map[string]time.Duration) (*ReconcileResult, error) {
	normalized := l.Day(day)
	result := &ReconcileResult{}

	// Deterministic order keeps logs and results stable
	packages := make([]string, 0, len(observed))
	for pkg := range observed {
		packages = append(packages, pkg)
	}
	sort.Strings(packages)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	for _, pkg := range packages {
		systemTotal := observed[pkg]
		if pkg == "" || systemTotal < 0 {
			continue
		}

		local := time.Duration(0)
		record, err := l.storage.GetUsageRecord(ctx, pkg, normalized)
		switch {
		case err == nil:
			local = record.Duration
		case errors.Is(err, ErrUsageNotFound):
		default:
			return result, storageErr("get usage", err)
		}

		switch {
		case local > MaxDailyUsage:
			if err := l.storage.SetUsage(ctx, pkg, normalized, systemTotal, now); err != nil {
				return result, storageErr("set usage", err)
			}
			result.Corrected = append(result.Corrected, pkg)
		case systemTotal > local:
			if err := l.storage.SetUsage(ctx, pkg, normalized, systemTotal, now); err != nil {
				return result, storageErr("set usage", err)
			}
			result.Updated = append(result.Updated, pkg)
		default:
			result.Kept = append(result.Kept, pkg)
		}
	}

	return result, nil
}

// TotalFor returns the usage of packageID on day. A missing record is zero.
func (l *UsageLedger) TotalFor(ctx context.Context, packageID string, day time.Time) (time.Duration, error) {
	record, err := l.storage.GetUsageRecord(ctx, packageID, l.Day(day))
	if errors.Is(err, ErrUsageNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, storageErr("get usage", err)
	}
	return record.Duration, nil
}

// UsageForDay returns the per-app records of day, largest first
func (l *UsageLedger) UsageForDay(ctx context.Context, day time.Time) ([]*UsageRecord, error) {
	records, err := l.storage.ListUsageForDay(ctx, l.Day(day))
	if err != nil {
		return nil, storageErr("list usage", err)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Duration == records[j].Duration {
			return records[i].PackageID < records[j].PackageID
		}
		return records[i].Duration > records[j].Duration
	})
	return records, nil
}

// DailyTotals returns the total usage across all apps per day, most recent first
func (l *UsageLedger) DailyTotals(ctx context.Context) ([]DailyTotal, error) {
	totals, err := l.storage.ListDailyTotals(ctx)
	if err != nil {
		return nil, storageErr("list daily totals", err)
	}
	sort.SliceStable(totals, func(i, j int) bool {
		return totals[i].Day.After(totals[j].Day)
	})
	return totals, nil
}

// NormalizeDate normalizes a date to start of day in the given timezone
func NormalizeDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	inTZ := t.In(loc)
	year, month, day := inTZ.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}
