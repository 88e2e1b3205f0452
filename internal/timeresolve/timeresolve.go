// Package timeresolve computes the next UTC instant a yearly event must
// fire, given its calendar date, the user's IANA timezone, and a local
// wall-clock time of day.
package timeresolve

import (
	"fmt"
	"time"
)

// NextNotifyUTC returns the next UTC instant, strictly after reference, at
// which an event with the given month/day (from eventDate; the year is
// historical and ignored) and local time-of-day (localHHMM) should fire in
// ianaTZ.
//
// Feb 29 events fall back to Feb 28 in any target year that is not a leap
// year, rather than rolling over into March.
func NextNotifyUTC(eventDate time.Time, ianaTZ, localHHMM string, reference time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(ianaTZ)
	if err != nil {
		return time.Time{}, fmt.Errorf("load timezone %q: %w", ianaTZ, err)
	}

	hour, minute, err := parseHHMM(localHHMM)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse notify_local_time %q: %w", localHHMM, err)
	}

	month, day := eventDate.Month(), eventDate.Day()
	year := reference.In(loc).Year()

	candidate := localCandidate(year, month, day, hour, minute, loc)
	if !candidate.After(reference) {
		year++
		candidate = localCandidate(year, month, day, hour, minute, loc)
	}

	return candidate.UTC(), nil
}

// localCandidate builds the local wall-clock instant for (year, month, day,
// hour, minute) in loc, normalizing Feb 29 to Feb 28 when year is not a
// leap year.
func localCandidate(year int, month time.Month, day, hour, minute int, loc *time.Location) time.Time {
	if month == time.February && day == 29 && !isLeapYear(year) {
		day = 28
	}
	return time.Date(year, month, day, hour, minute, 0, 0, loc)
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

func parseHHMM(s string) (hour, minute int, err error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	if _, err := fmt.Sscanf(s, "%02d:%02d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time of day out of range: %q", s)
	}
	return hour, minute, nil
}
