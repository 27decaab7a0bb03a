package document

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"journal-sync/internal/errs"
)

var (
	yearRe  = regexp.MustCompile(`^\d{4}$`)
	monthRe = regexp.MustCompile(`^\d{4}-\d{2}$`)
	dayRe   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

	// "2024-01-10 (dinner with Bob)"
	contextDateRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\s*\((.*)\)\s*$`)
)

// ParseEntryDate normalizes the required entry date. It accepts YYYY-MM-DD or
// an RFC 3339 timestamp, keeping only the calendar day.
func ParseEntryDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errs.Invalid("date", "is required")
	}
	if t, err := time.Parse(DateLayout, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, errs.Invalid("date", "cannot normalize %q to YYYY-MM-DD", raw)
}

// ParseDay validates a full calendar date string and returns it canonically.
func ParseDay(field, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !dayRe.MatchString(raw) {
		return "", errs.Invalid(field, "expected YYYY-MM-DD, got %q", raw)
	}
	if _, err := time.Parse(DateLayout, raw); err != nil {
		return "", errs.Invalid(field, "invalid date %q", raw)
	}
	return raw, nil
}

// ParseFlexibleDate validates a date of year, month or day granularity.
func ParseFlexibleDate(field, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case yearRe.MatchString(raw):
		return raw, nil
	case monthRe.MatchString(raw):
		if _, err := time.Parse("2006-01", raw); err != nil {
			return "", errs.Invalid(field, "invalid month %q", raw)
		}
		return raw, nil
	case dayRe.MatchString(raw):
		return ParseDay(field, raw)
	}
	return "", errs.Invalid(field, "expected YYYY, YYYY-MM or YYYY-MM-DD, got %q", raw)
}

// splitDateContext splits "YYYY-MM-DD (context)" into its parts.
func splitDateContext(raw string) (date, context string, ok bool) {
	m := contextDateRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return "", "", false
	}
	return m[1], strings.TrimSpace(m[2]), true
}

func formatDateContext(date, context string) string {
	if context == "" {
		return date
	}
	return fmt.Sprintf("%s (%s)", date, context)
}
