package core

import (
	"time"
)

const minutesPerDay = 24 * 60

// ValidateSchedule checks the schedule fields of a profile
func (p *FocusProfile) ValidateSchedule() error {
	if p.ScheduleStart < 0 || p.ScheduleStart >= minutesPerDay {
		return ErrInvalidSchedule
	}
	if p.ScheduleEnd < 0 || p.ScheduleEnd >= minutesPerDay {
		return ErrInvalidSchedule
	}
	if len(p.DaysOfWeek) == 0 {
		return ErrInvalidSchedule
	}
	for _, d := range p.DaysOfWeek {
		if d < 1 || d > 7 {
			return ErrInvalidSchedule
		}
	}
	return nil
}

// IsScheduledAt reports whether the profile's weekly schedule covers t.
// A malformed schedule is never in force.
func (p *FocusProfile) IsScheduledAt(t time.Time, loc *time.Location) bool {
	if !p.ScheduleEnabled {
		return false
	}
	if p.ValidateSchedule() != nil {
		return false
	}
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)

	if !p.runsOn(isoWeekday(local)) {
		return false
	}

	return inWindow(local.Hour()*60+local.Minute(), p.ScheduleStart, p.ScheduleEnd)
}

// IsEffectiveAt reports whether the profile's policies are in force at t
func (p *FocusProfile) IsEffectiveAt(t time.Time, loc *time.Location) bool {
	return p.IsManuallyActive || p.IsScheduledAt(t, loc)
}

func (p *FocusProfile) runsOn(weekday int) bool {
	for _, d := range p.DaysOfWeek {
		if d == weekday {
			return true
		}
	}
	return false
}

// inWindow checks minute m against [start, end), wrapping past midnight
// when start > end
func inWindow(m, start, end int) bool {
	if start > end {
		// Overnight window (e.g., 23:00 to 07:00)
		return m >= start || m < end
	}
	return m >= start && m < end
}

// isoWeekday converts Go's Sunday-based weekday to 1 = Monday ... 7 = Sunday
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// EffectiveAt returns the profiles effective at instant t.
// It has no side effects and depends only on its arguments.
func EffectiveAt(profiles []*FocusProfile, t time.Time, loc *time.Location) []*FocusProfile {
	effective := make([]*FocusProfile, 0, len(profiles))
	for _, p := range profiles {
		if p.IsEffectiveAt(t, loc) {
			effective = append(effective, p)
		}
	}
	return effective
}

// NextScheduleEnd returns when the current scheduled window of the profile
// ends, or the zero time if the schedule is not in force at now
func (p *FocusProfile) NextScheduleEnd(now time.Time, loc *time.Location) time.Time {
	if !p.IsScheduledAt(now, loc) {
		return time.Time{}
	}
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)

	end := time.Date(local.Year(), local.Month(), local.Day(),
		p.ScheduleEnd/60, p.ScheduleEnd%60, 0, 0, loc)

	if p.ScheduleStart > p.ScheduleEnd {
		current := local.Hour()*60 + local.Minute()
		// Evening part of an overnight window ends tomorrow morning
		if current >= p.ScheduleStart {
			return end.AddDate(0, 0, 1)
		}
	}
	return end
}
