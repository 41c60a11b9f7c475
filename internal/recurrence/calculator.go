// Package recurrence holds the pure scheduling math of the generation
// engine: next-due-instant computation and assignment resolution. No I/O,
// no shared state; everything here is deterministic given its inputs.
package recurrence

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"fieldtask/internal/domain"
)

// DefaultTimeOfDay is applied when a rule carries no HH:MM time.
const DefaultTimeOfDay = "09:00"

// NextDueInstant computes the next due instant for rule, anchored at from.
//
// The time-of-day of the result is always rule.Time (default 09:00) with
// seconds zeroed; the date component moves according to the frequency. An
// unrecognized frequency is an error so callers surface it per template
// instead of silently defaulting to some frequency's behavior.
func NextDueInstant(rule *domain.RecurrenceRule, from time.Time) (time.Time, error) {
	if rule == nil {
		return time.Time{}, fmt.Errorf("recurrence rule is required")
	}

	hour, minute := parseTimeOfDay(rule.Time)
	base := time.Date(from.Year(), from.Month(), from.Day(), hour, minute, 0, 0, from.Location())

	switch rule.Frequency {
	case domain.FrequencyDaily, domain.FrequencyCustom:
		// custom is behaviorally identical to daily; the distinction is
		// intent only.
		return base.AddDate(0, 0, intervalOrDefault(rule)), nil

	case domain.FrequencyWeekly:
		return nextWeekly(rule, base), nil

	case domain.FrequencyBiweekly:
		// Fixed 14 days; interval is ignored for biweekly.
		return base.AddDate(0, 0, 14), nil

	case domain.FrequencyMonthly:
		return nextMonthly(rule, base), nil

	default:
		return time.Time{}, fmt.Errorf("unknown recurrence frequency %q", rule.Frequency)
	}
}

// nextWeekly picks the smallest weekday in the rule's day set strictly after
// base's weekday, wrapping to the set's first day next week when none
// remains. The strict comparison makes "today" unselectable by construction,
// even when today is in the set.
func nextWeekly(rule *domain.RecurrenceRule, base time.Time) time.Time {
	days := normalizeDaysOfWeek(rule.DaysOfWeek)
	if len(days) == 0 {
		return base.AddDate(0, 0, 7)
	}

	weekday := int(base.Weekday())
	for _, d := range days {
		if d > weekday {
			return base.AddDate(0, 0, d-weekday)
		}
	}
	return base.AddDate(0, 0, 7-weekday+days[0])
}

// nextMonthly advances by interval months, landing on dayOfMonth when set.
// The day is clamped to the target month's length in both cases: clamping
// the source day as well keeps Jan 31 + 1 month at Feb 28/29 instead of the
// AddDate normalization into early March.
func nextMonthly(rule *domain.RecurrenceRule, base time.Time) time.Time {
	firstOfTarget := time.Date(base.Year(), base.Month()+time.Month(intervalOrDefault(rule)), 1,
		base.Hour(), base.Minute(), 0, 0, base.Location())
	lastDay := daysInMonth(firstOfTarget.Year(), firstOfTarget.Month())

	day := base.Day()
	if rule.DayOfMonth > 0 {
		day = rule.DayOfMonth
	}
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day,
		base.Hour(), base.Minute(), 0, 0, base.Location())
}

func intervalOrDefault(rule *domain.RecurrenceRule) int {
	if rule.Interval > 0 {
		return rule.Interval
	}
	return 1
}

// normalizeDaysOfWeek sorts, dedups and drops out-of-range ordinals.
func normalizeDaysOfWeek(days []int) []int {
	out := make([]int, 0, len(days))
	seen := [7]bool{}
	for _, d := range days {
		if d < 0 || d > 6 || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}

// parseTimeOfDay parses "HH:MM"; anything malformed falls back to the
// 09:00 default so the calculator stays total.
func parseTimeOfDay(s string) (hour, minute int) {
	if s == "" {
		s = DefaultTimeOfDay
	}
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 9, 0
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 9, 0
	}
	return h, m
}

func daysInMonth(year int, month time.Month) int {
	// Day 0 of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
