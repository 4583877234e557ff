// Package validation holds the pure input checks applied to patient and
// appointment data before anything is resolved or written.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
)

const maxAgeYears = 150

var phonePattern = regexp.MustCompile(`^55\d{10,11}$`)

// Error is a client-correctable validation failure.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) *Error {
	return &Error{Field: field, Reason: reason}
}

// NormalizePhone drops whitespace and punctuation, keeping any other rune so
// that stray letters still fail validation.
func NormalizePhone(raw string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || r == '+' {
			return -1
		}
		return r
	}, raw)
}

// ValidatePhone returns the normalized phone when it has the form
// 55 + area code (2 digits) + subscriber (8 or 9 digits).
func ValidatePhone(raw string) (string, error) {
	phone := NormalizePhone(raw)
	if !phonePattern.MatchString(phone) {
		return "", invalid("phone", "phone must be 55 + area code + number (e.g. 5548991234567)")
	}
	return phone, nil
}

// ValidateBirthDate accepts YYYY-MM-DD, DD/MM/YYYY or an RFC 3339 timestamp
// and returns the canonical YYYY-MM-DD form.
func ValidateBirthDate(raw string, now time.Time) (string, error) {
	birth, ok := parseDate(strings.TrimSpace(raw))
	if !ok {
		return "", invalid("birth_date", "invalid birth date, use DD/MM/YYYY or YYYY-MM-DD")
	}

	age := ageAt(birth, now)
	if age < 0 || age > maxAgeYears {
		return "", invalid("birth_date", "birth date out of range (0-150 years)")
	}

	return birth.Format(time.DateOnly), nil
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range []string{time.DateOnly, "02/01/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// ageAt counts completed years; a birth date after now yields a negative age.
func ageAt(birth, now time.Time) int {
	ny, nm, nd := now.Date()
	by, bm, bd := birth.Date()

	nowDay := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	birthDay := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	if birthDay.After(nowDay) {
		return -1
	}

	age := ny - by
	if nm < bm || (nm == bm && nd < bd) {
		age--
	}
	return age
}

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseTimestamp reads an RFC 3339 timestamp, or a zone-less local timestamp
// interpreted in loc.
func ParseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, invalid("scheduled_at", "invalid appointment date, use ISO 8601")
}

// ValidateAppointmentDate rejects unparsable timestamps and timestamps before
// the start of now's day in loc.
func ValidateAppointmentDate(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	t, err := ParseTimestamp(raw, loc)
	if err != nil {
		return time.Time{}, err
	}

	local := now.In(loc)
	y, m, d := local.Date()
	startOfToday := time.Date(y, m, d, 0, 0, 0, 0, loc)

	if t.Before(startOfToday) {
		return time.Time{}, invalid("scheduled_at", "appointment date cannot be in the past")
	}
	return t, nil
}

// ParseDay reads a YYYY-MM-DD date as midnight in loc.
func ParseDay(raw string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(raw), loc)
	if err != nil {
		return time.Time{}, invalid("date", "invalid date, use YYYY-MM-DD")
	}
	return t, nil
}
