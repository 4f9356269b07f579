package service

import (
	"fmt"
	"time"
	_ "time/tzdata" // settlement times are defined in US-Eastern regardless of host zoneinfo
)

const (
	settlementZone    = "America/New_York"
	settlementWeekday = time.Friday
	settlementHour    = 16
)

// Scheduler computes settlement timestamps for crypto markets. Markets settle
// every Friday at 16:00 US-Eastern.
type Scheduler struct {
	loc     *time.Location
	nowFunc func() time.Time
}

// NewScheduler loads the settlement time zone and returns a Scheduler backed
// by the wall clock.
func NewScheduler() (*Scheduler, error) {
	loc, err := time.LoadLocation(settlementZone)
	if err != nil {
		return nil, fmt.Errorf("service/scheduler: load %s: %w", settlementZone, err)
	}
	return &Scheduler{loc: loc, nowFunc: time.Now}, nil
}

// Now returns the scheduler's notion of the current time.
func (s *Scheduler) Now() time.Time {
	return s.nowFunc()
}

// UpcomingSettlement returns this week's Friday 16:00 US-Eastern when it is
// not yet in the past, otherwise next week's. Weeks start on Monday, so on a
// Saturday or Sunday the answer is the following Friday.
func (s *Scheduler) UpcomingSettlement(now time.Time) time.Time {
	local := now.In(s.loc)

	// Days since Monday, with Sunday as the last day of the week.
	sinceMonday := (int(local.Weekday()) + 6) % 7
	fridayOffset := (int(settlementWeekday)+6)%7 - sinceMonday

	thisWeek := time.Date(local.Year(), local.Month(), local.Day()+fridayOffset,
		settlementHour, 0, 0, 0, s.loc)
	if thisWeek.Before(local) {
		return time.Date(thisWeek.Year(), thisWeek.Month(), thisWeek.Day()+7,
			settlementHour, 0, 0, 0, s.loc)
	}
	return thisWeek
}

// IsEligible reports whether a market whose current resolution time is
// resolutionTime (unix seconds) may be advanced at now.
func (s *Scheduler) IsEligible(resolutionTime int64, now time.Time) bool {
	return resolutionTime <= now.Unix()
}
