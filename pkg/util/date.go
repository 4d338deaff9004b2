package util

import (
    "strings"
    "time"
)

var monthAbbrevs = map[string]time.Month{
    "JAN": time.January, "FEB": time.February, "MAR": time.March,
    "APR": time.April, "MAY": time.May, "JUN": time.June,
    "JUL": time.July, "AUG": time.August, "SEP": time.September,
    "OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// ParseMonthAbbrev maps a three-letter month abbreviation ("JAN".."DEC",
// case-insensitive) to its time.Month. Returns (0, false) when unknown.
func ParseMonthAbbrev(s string) (time.Month, bool) {
    m, ok := monthAbbrevs[strings.ToUpper(strings.TrimSpace(s))]
    return m, ok
}

// MonthAbbrev returns the upper-case three-letter abbreviation of a month.
func MonthAbbrev(m time.Month) string {
    return strings.ToUpper(m.String()[:3])
}

// MonthStart returns midnight UTC on the first day of the given month.
func MonthStart(year int, month time.Month) time.Time {
    return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}

// DaysUntil returns the whole days from `from` until the start of the given
// delivery month, never negative.
func DaysUntil(from time.Time, year int, month time.Month) int {
    d := int(MonthStart(year, month).Sub(from).Hours() / 24)
    if d < 0 {
        return 0
    }
    return d
}

// NextDeliveryYear picks the year for a delivery month: the current year if
// the month has not yet started, otherwise the next.
func NextDeliveryYear(now time.Time, month time.Month) int {
    if MonthStart(now.Year(), month).After(now) {
        return now.Year()
    }
    return now.Year() + 1
}
