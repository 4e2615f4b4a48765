package dates

import (
	"fmt"
	"strings"
	"time"
)

// Layout is the wire format for calendar dates across the TimeCamp API.
const Layout = "2006-01-02"

// TimestampLayout is the wire format for date-time fields such as
// last_modify and activity end times.
const TimestampLayout = "2006-01-02 15:04:05"

// Layouts accepted by Parse, in order. Day-first forms win over
// month-first for ambiguous input.
var layouts = []string{
	Layout,
	"02/01/2006",
	"01/02/2006",
	"02-01-2006",
	"01-02-2006",
}

// Parse turns a date argument into a calendar day at midnight UTC. The
// literal "yesterday" resolves against now; anything else must match one
// of the accepted layouts.
func Parse(value string, now time.Time) (time.Time, error) {
	v := strings.TrimSpace(value)
	if strings.EqualFold(v, "yesterday") {
		y := now.AddDate(0, 0, -1)
		return time.Date(y.Year(), y.Month(), y.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q (expected YYYY-MM-DD or \"yesterday\")", value)
}

// Format renders t as YYYY-MM-DD.
func Format(t time.Time) string {
	return t.Format(Layout)
}

// Range lists every day from from through to inclusive, formatted per
// Layout. A to before from yields an empty list.
func Range(from, to time.Time) []string {
	var days []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, Format(d))
	}
	return days
}

// WeekKey renders the ISO week of t, e.g. "2024_W07". Weekly storage
// objects are bucketed by this key.
func WeekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d_W%02d", year, week)
}

// ExtractDay reads the calendar day out of a date or timestamp string:
// the leading YYYY-MM-DD when present, otherwise one of the slashed
// layouts. Time components are discarded.
func ExtractDay(value string) (time.Time, bool) {
	v := strings.TrimSpace(value)
	if len(v) >= len(Layout) && v[4] == '-' && v[7] == '-' {
		t, err := time.Parse(Layout, v[:len(Layout)])
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	for _, layout := range []string{"02/01/2006", "01/02/2006"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
