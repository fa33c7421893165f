// Package validation holds the format checks shared by the wizard, the
// respondent flow and the HTTP layer. Every function is pure.
package validation

import (
	"regexp"
	"strings"
	"time"
	"unicode"
)

var (
	emailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern  = regexp.MustCompile(`^\+?[0-9\s\-()]{7,20}$`)
	domainPattern = regexp.MustCompile(`^(?i)([a-z0-9]([a-z0-9-]*[a-z0-9])?\.)+[a-z]{2,}$`)
)

const (
	MonthLayout = "2006-01"
	DateLayout  = "2006-01-02"
)

// NormalizeEmail normalizes email addresses (lowercase and trim)
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeDomain lowercases a company domain and strips a scheme, "www." and
// any path the user pasted along with it.
func NormalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "www.")
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	return d
}

// NormalizePhone keeps a leading + and the digits.
func NormalizePhone(phone string) string {
	cleaned := strings.TrimSpace(phone)
	if cleaned == "" {
		return ""
	}

	var result strings.Builder
	for i, r := range cleaned {
		if i == 0 && r == '+' {
			result.WriteRune(r)
		} else if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}

	return result.String()
}

func IsValidEmail(email string) bool {
	return emailPattern.MatchString(strings.TrimSpace(email))
}

// IsValidPhone accepts formatted numbers such as "010-1234-5678" or
// "+82 10 1234 5678" as long as seven or more digits remain.
func IsValidPhone(phone string) bool {
	p := strings.TrimSpace(phone)
	if !phonePattern.MatchString(p) {
		return false
	}
	digits := strings.TrimPrefix(NormalizePhone(p), "+")
	return len(digits) >= 7
}

func IsValidDomain(domain string) bool {
	d := NormalizeDomain(domain)
	return len(d) <= 253 && domainPattern.MatchString(d)
}

// ParsePeriod accepts either a month or a full date, which is what the work
// history form produces depending on the picker used.
func ParsePeriod(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(MonthLayout, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
