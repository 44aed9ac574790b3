package core

import "math"

// Changes that let an app run longer than before need the strict-mode PIN.
// These predicates compare the stored value with the requested one; a nil
// value means "none stored" or "removed".

// LimitLoosened reports whether next allows more daily time than prev.
// Adding a limit where none existed tightens.
func LimitLoosened(prev, next *AppLimit) bool {
	if prev == nil {
		return false
	}
	if next == nil {
		return true
	}
	return next.LimitMinutes > prev.LimitMinutes
}

// PolicyLoosened reports whether replacing prev with next lets the app run
// longer while the profile is effective. Blocked is strictest, then caps by
// size, then no policy, then explicitly unlimited.
func PolicyLoosened(prev, next *ProfileAppPolicy) bool {
	return policyRank(next) > policyRank(prev)
}

func policyRank(p *ProfileAppPolicy) int64 {
	switch {
	case p == nil:
		return math.MaxInt64 - 1
	case p.LimitMinutes == PolicyUnlimited:
		return math.MaxInt64
	default:
		return p.LimitMinutes
	}
}

// ScheduleNarrowed reports whether next is in force for less of the week
// than prev: disabled, fewer days or a shorter window. A schedule that
// never applied cannot be narrowed.
func ScheduleNarrowed(prev, next *FocusProfile) bool {
	if !prev.scheduleUsable() {
		return false
	}
	if !next.scheduleUsable() {
		return true
	}
	for _, day := range prev.DaysOfWeek {
		if !next.runsOn(day) {
			return true
		}
		for m := 0; m < minutesPerDay; m++ {
			if inWindow(m, prev.ScheduleStart, prev.ScheduleEnd) && !inWindow(m, next.ScheduleStart, next.ScheduleEnd) {
				return true
			}
		}
	}
	return false
}

// ActivationLoosens reports whether turning on a profile with these
// policies can allow an app that was limited before
func ActivationLoosens(policies []*ProfileAppPolicy) bool {
	for _, p := range policies {
		if p.IsUnlimited() {
			return true
		}
	}
	return false
}

func (p *FocusProfile) scheduleUsable() bool {
	return p.ScheduleEnabled && p.ValidateSchedule() == nil
}
