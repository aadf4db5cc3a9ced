package schema

import (
	"strings"
	"time"
)

// ISODate is the canonical storage form of Date values.
const ISODate = "2006-01-02"

// DatePreference breaks ties for ambiguous numeric dates such as 03/04/2024.
type DatePreference string

const (
	DateUS DatePreference = "us" // month first
	DateEU DatePreference = "eu" // day first
)

// ParseDatePreference maps "", "auto" and "us" to DateUS and "eu" to DateEU.
func ParseDatePreference(s string) (DatePreference, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto", "us":
		return DateUS, true
	case "eu":
		return DateEU, true
	default:
		return DateUS, false
	}
}

var isoLayouts = []string{
	"2006-1-2",
	"2006/1/2",
}

// Spreadsheet exports of date cells (format code 14) come through as m-d-yy.
var monthFirstLayouts = []string{
	"1/2/2006",
	"1/2/06",
	"1-2-06",
	"1-2-2006",
}

var dayFirstLayouts = []string{
	"2/1/2006",
	"2/1/06",
	"2.1.2006",
	"2.1.06",
	"2-1-2006",
}

var textualLayouts = []string{
	"2-Jan-06",
	"2-Jan-2006",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// Date-times are dates only when the time of day is midnight.
var dateTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"1/2/06 15:04",
	"1/2/2006 15:04:05",
}

func layoutsFor(pref DatePreference) [][]string {
	if pref == DateEU {
		return [][]string{isoLayouts, dayFirstLayouts, monthFirstLayouts, textualLayouts}
	}
	return [][]string{isoLayouts, monthFirstLayouts, dayFirstLayouts, textualLayouts}
}

// ParseDate tries the known layouts in preference order and returns the first
// match.
func ParseDate(s string, pref DatePreference) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, group := range layoutsFor(pref) {
		for _, lay := range group {
			if t, err := time.Parse(lay, s); err == nil {
				return t, true
			}
		}
	}
	for _, lay := range dateTimeLayouts {
		t, err := time.Parse(lay, s)
		if err != nil {
			continue
		}
		if h, m, sec := t.Clock(); h == 0 && m == 0 && sec == 0 && t.Nanosecond() == 0 {
			return t, true
		}
		return time.Time{}, false
	}
	return time.Time{}, false
}
