package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock is a wall-clock time of day expressed in minutes after midnight.
type Clock int

// ParseClock reads a zero-padded or bare "HH:MM" value.
func ParseClock(raw string) (Clock, error) {
	raw = strings.TrimSpace(raw)
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock %q", raw)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("invalid clock hour %q", raw)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("invalid clock minute %q", raw)
	}
	return Clock(hours*60 + minutes), nil
}

// MustClock is ParseClock for static rule tables.
func MustClock(raw string) Clock {
	c, err := ParseClock(raw)
	if err != nil {
		panic(err)
	}
	return c
}

// String renders the clock in 24-hour zero-padded form, e.g. "09:05".
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// TimeSlot is a bookable interval within a day.
type TimeSlot struct {
	Start Clock
	End   Clock
}

func slot(start, end string) TimeSlot {
	return TimeSlot{Start: MustClock(start), End: MustClock(end)}
}

// MonthDay identifies a fixed calendar day repeating every year.
type MonthDay struct {
	Month time.Month
	Day   int
}

// NthWeekday identifies a holiday such as "fourth Thursday of November".
type NthWeekday struct {
	Month   time.Month
	Weekday time.Weekday
	N       int
}

// PartialDay truncates a date's slots to those starting strictly before Cutoff.
type PartialDay struct {
	MonthDay
	Cutoff Clock
}

// CalendarRules holds the weekly slot templates and the yearly exception tables.
type CalendarRules struct {
	Templates          map[time.Weekday][]TimeSlot
	FixedHolidays      []MonthDay
	NthWeekdayHolidays []NthWeekday
	PartialDays        []PartialDay
}

// DefaultCalendarRules returns the production slot grid: five distinct weekday
// templates with a short Friday, US-style fixed holidays plus Thanksgiving, and
// early closing on Christmas Eve and New Year's Eve.
func DefaultCalendarRules() *CalendarRules {
	return &CalendarRules{
		Templates: map[time.Weekday][]TimeSlot{
			time.Monday: {
				slot("09:00", "10:30"), slot("10:45", "12:15"), slot("13:00", "14:30"),
				slot("14:45", "16:15"), slot("16:30", "18:00"),
			},
			time.Tuesday: {
				slot("08:30", "10:00"), slot("10:15", "11:45"), slot("12:30", "14:00"),
				slot("14:15", "15:45"), slot("16:00", "17:30"),
			},
			time.Wednesday: {
				slot("09:00", "10:30"), slot("11:00", "12:30"), slot("13:30", "15:00"),
				slot("15:30", "17:00"),
			},
			time.Thursday: {
				slot("09:30", "11:00"), slot("11:15", "12:45"), slot("13:30", "15:00"),
				slot("15:15", "16:45"),
			},
			time.Friday: {
				slot("09:00", "10:30"), slot("11:00", "12:30"), slot("13:00", "14:30"),
			},
		},
		FixedHolidays: []MonthDay{
			{Month: time.January, Day: 1},
			{Month: time.July, Day: 4},
			{Month: time.November, Day: 11},
			{Month: time.December, Day: 25},
		},
		NthWeekdayHolidays: []NthWeekday{
			{Month: time.November, Weekday: time.Thursday, N: 4},
		},
		PartialDays: []PartialDay{
			{MonthDay: MonthDay{Month: time.December, Day: 24}, Cutoff: MustClock("13:00")},
			{MonthDay: MonthDay{Month: time.December, Day: 31}, Cutoff: MustClock("13:00")},
		},
	}
}

// SlotsForDate returns the ordered slots offered on date after exceptions.
// The returned slice is owned by the caller.
func (r *CalendarRules) SlotsForDate(date time.Time) []TimeSlot {
	if !isBusinessDay(date) {
		return nil
	}
	template := r.Templates[date.Weekday()]
	if len(template) == 0 {
		return nil
	}
	excluded, cutoffs := r.exceptions(date.Year())
	key := MonthDay{Month: date.Month(), Day: date.Day()}
	if excluded[key] {
		return nil
	}
	if cutoff, ok := cutoffs[key]; ok {
		result := make([]TimeSlot, 0, len(template))
		for _, s := range template {
			if s.Start < cutoff {
				result = append(result, s)
			}
		}
		return result
	}
	result := make([]TimeSlot, len(template))
	copy(result, template)
	return result
}

// IsExcluded reports whether date is a full-day exclusion in its year.
func (r *CalendarRules) IsExcluded(date time.Time) bool {
	excluded, _ := r.exceptions(date.Year())
	return excluded[MonthDay{Month: date.Month(), Day: date.Day()}]
}

func (r *CalendarRules) exceptions(year int) (map[MonthDay]bool, map[MonthDay]Clock) {
	excluded := make(map[MonthDay]bool, len(r.FixedHolidays)+len(r.NthWeekdayHolidays))
	for _, day := range r.FixedHolidays {
		excluded[day] = true
	}
	for _, rule := range r.NthWeekdayHolidays {
		if day, ok := nthWeekdayOf(year, rule); ok {
			excluded[day] = true
		}
	}
	cutoffs := make(map[MonthDay]Clock, len(r.PartialDays))
	for _, partial := range r.PartialDays {
		cutoffs[partial.MonthDay] = partial.Cutoff
	}
	return excluded, cutoffs
}

func nthWeekdayOf(year int, rule NthWeekday) (MonthDay, bool) {
	if rule.N < 1 {
		return MonthDay{}, false
	}
	first := time.Date(year, rule.Month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(rule.Weekday) - int(first.Weekday()) + 7) % 7
	day := first.AddDate(0, 0, offset+7*(rule.N-1))
	if day.Month() != rule.Month {
		return MonthDay{}, false
	}
	return MonthDay{Month: rule.Month, Day: day.Day()}, true
}

func isBusinessDay(date time.Time) bool {
	switch date.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	default:
		return true
	}
}
