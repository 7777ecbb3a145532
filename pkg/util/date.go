package util

import (
	"fmt"
	"strconv"
	"time"
)

// Taipei is Taiwan Standard Time. Taiwan observes no daylight saving.
var Taipei = time.FixedZone("Asia/Taipei", 8*60*60)

// Day returns the calendar day of t in Taipei as UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.In(Taipei).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts 2006-01-02, 20060102, RFC3339 and unix seconds.
func ParseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02", "20060102"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return Day(t), true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return Day(time.Unix(ts, 0)), true
	}
	return time.Time{}, false
}

// ParseDateDefault parses a date or returns def.
func ParseDateDefault(s string, def time.Time) time.Time {
	if t, ok := ParseDate(s); ok {
		return t
	}
	return def
}

// PeriodStart returns the first calendar day covered by period, counted back from now.
// "max" returns the zero time.
func PeriodStart(period string, now time.Time) (time.Time, error) {
	today := Day(now)
	switch period {
	case "1mo":
		return today.AddDate(0, -1, 0), nil
	case "3mo":
		return today.AddDate(0, -3, 0), nil
	case "6mo":
		return today.AddDate(0, -6, 0), nil
	case "1y":
		return today.AddDate(-1, 0, 0), nil
	case "2y":
		return today.AddDate(-2, 0, 0), nil
	case "5y":
		return today.AddDate(-5, 0, 0), nil
	case "max":
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("unknown period %q", period)
	}
}

// IsWeekday reports Monday through Friday.
func IsWeekday(d time.Time) bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// PrevWeekday returns the closest weekday strictly before d.
func PrevWeekday(d time.Time) time.Time {
	d = d.AddDate(0, 0, -1)
	for !IsWeekday(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// LatestTradingDay is the most recent weekday whose bar should be published at now.
// Before publishHour (Taipei) today's bar is not expected yet. Exchange holidays are
// not modelled; a fetch that returns nothing new on a holiday leaves the cache as is.
func LatestTradingDay(now time.Time, publishHour int) time.Time {
	local := now.In(Taipei)
	d := Day(now)
	if local.Hour() < publishHour {
		d = d.AddDate(0, 0, -1)
	}
	for !IsWeekday(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// RecentWeekdays returns the n weekdays ending at end (inclusive), oldest first.
func RecentWeekdays(end time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	out := make([]time.Time, n)
	d := end
	if !IsWeekday(d) {
		d = PrevWeekday(d)
	}
	for i := n - 1; i >= 0; i-- {
		out[i] = d
		d = PrevWeekday(d)
	}
	return out
}
