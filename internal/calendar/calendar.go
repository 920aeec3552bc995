// Package calendar resolves ISO week dates reported by the guest parser into
// Unix timestamps.
//
// Week 1 of a year is the week containing January 4th. Weekdays use the
// guest's numbering, where index 2 is Monday and index 8 is Sunday
// (ISO weekday + 1). All arithmetic is done in UTC.
package calendar

import (
	"time"

	"github.com/woxQAQ/timetable-bridge/pkg/protocol"
)

const secondsPerDay = 24 * 60 * 60

// Monday is the weekday index of Monday in the guest's numbering.
const Monday = 2

// ResolveUTC returns the Unix timestamp of UTC midnight on the given weekday
// of the given ISO week. Week and weekday are not range checked; values outside
// 1..53 and 2..8 step into neighbouring weeks and years.
func ResolveUTC(year, week, weekday int) int64 {
	anchor := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	isoWeekday := (int(anchor.Weekday())+6)%7 + 1

	days := int64(week-1)*7 - int64(isoWeekday-1) + int64(weekday-Monday)
	return anchor.Unix() + days*secondsPerDay
}

// Resolve is ResolveUTC for a guest query, returned as a UTC time.
func Resolve(q protocol.CalendarQuery) time.Time {
	return time.Unix(ResolveUTC(int(q.Year), int(q.Week), int(q.Weekday)), 0).UTC()
}

// WeekdayIndex converts a Go weekday into the guest's weekday index.
func WeekdayIndex(d time.Weekday) int {
	if d == time.Sunday {
		return 8
	}
	return int(d) + 1
}
