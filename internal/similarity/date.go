package similarity

import (
	"strings"
	"time"
)

// DateResult reports the calendar comparison of two raw values. FormatChange
// is non-empty only when both sides parsed through different layouts.
type DateResult struct {
	Similarity   float64
	IsDate       bool
	FormatChange string // e.g. "DD/MM/YYYY -> ISO"
}

type dateLayout struct {
	name   string
	layout string
}

// Ordered: the first layout that parses wins, so DD/MM is preferred over
// MM/DD for ambiguous values like 03/04/2024.
var dateLayouts = []dateLayout{
	{"ISO", "2006-01-02"},
	{"ISO_SLASH", "2006/01/02"},
	{"DD/MM/YYYY", "02/01/2006"},
	{"MM/DD/YYYY", "01/02/2006"},
	{"DD-MM-YYYY", "02-01-2006"},
	{"DD.MM.YYYY", "02.01.2006"},
	{"YYYYMMDD", "20060102"},
	{"D_MONTH_YYYY", "2 January 2006"},
	{"MONTH_D_YYYY", "January 2, 2006"},
	{"DD_MON_YYYY", "02 Jan 2006"},
}

func parseDate(s string) (time.Time, string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, "", false
	}
	for _, dl := range dateLayouts {
		if t, err := time.Parse(dl.layout, s); err == nil {
			return t, dl.name, true
		}
	}
	// Generic fallback for timestamp-bearing values.
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, "GENERIC", true
		}
	}
	return time.Time{}, "", false
}

// Date scores two values as calendar dates: 1 for the same calendar day
// (reporting the layout pair when it changed), decaying linearly to 0 over a
// one-year absolute day difference. Either side failing to parse yields
// IsDate=false.
func Date(a, b string) DateResult {
	ta, fa, okA := parseDate(a)
	tb, fb, okB := parseDate(b)
	if !okA || !okB {
		return DateResult{}
	}
	res := DateResult{IsDate: true}
	if fa != fb {
		res.FormatChange = fa + " -> " + fb
	}

	da := ta.Truncate(24 * time.Hour)
	db := tb.Truncate(24 * time.Hour)
	days := da.Sub(db).Hours() / 24
	if days < 0 {
		days = -days
	}
	if days == 0 {
		res.Similarity = 1
		return res
	}
	if days >= 365 {
		return res
	}
	res.Similarity = 1 - days/365
	return res
}
