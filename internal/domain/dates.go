package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are the calendar date formats accepted from integrations, in
// order of preference. Day-first is assumed for slashed dates.
var dateLayouts = []string{
	DateLayout,
	"02/01/2006",
	"2/1/2006",
	"02.01.2006",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseDate normalizes an incoming date to YYYY-MM-DD. Timestamps keep the
// calendar day in which they were written.
func ParseDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", &ErrValidation{Field: "date", Message: "date is required"}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DateLayout), nil
		}
	}
	return "", &ErrValidation{Field: "date", Message: fmt.Sprintf("unrecognized date %q (use YYYY-MM-DD or DD/MM/YYYY)", s)}
}

// ParsePosted converts an aggregator "posted" value, either a unix timestamp
// (seconds) or a date string, to YYYY-MM-DD in UTC.
func ParsePosted(v any) (string, error) {
	var secs float64
	switch p := v.(type) {
	case float64:
		secs = p
	case int64:
		secs = float64(p)
	case int:
		secs = float64(p)
	case json.Number:
		f, err := p.Float64()
		if err != nil {
			return "", &ErrValidation{Field: "posted", Message: fmt.Sprintf("invalid timestamp %q", p)}
		}
		secs = f
	case string:
		if n, err := strconv.ParseInt(p, 10, 64); err == nil {
			secs = float64(n)
			break
		}
		return ParseDate(p)
	default:
		return "", &ErrValidation{Field: "posted", Message: "posted must be a unix timestamp or a date"}
	}
	if secs <= 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return "", &ErrValidation{Field: "posted", Message: "posted must be a positive unix timestamp"}
	}
	return time.Unix(int64(secs), 0).UTC().Format(DateLayout), nil
}

// DaysBetween returns b − a in whole calendar days.
func DaysBetween(a, b time.Time) int {
	a = time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	b = time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(math.Round(b.Sub(a).Hours() / 24))
}
