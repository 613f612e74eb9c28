// Package phone validates and canonicalises North American phone numbers.
package phone

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/user/smsrelay/internal/types"
)

// nanp matches an optional leading country code 1 followed by a 10 digit
// number whose area code and exchange do not start with 0 or 1.
var nanp = regexp.MustCompile(`^1?[2-9]\d{2}[2-9]\d{6}$`)

// Digits strips every non-digit character from raw.
func Digits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsValid reports whether raw is a dialable North American number.
func IsValid(raw string) bool {
	return nanp.MatchString(Digits(raw))
}

// Format returns the +1 prefixed form of raw. It does not validate the
// number plan; only the digit count and the leading 1 are checked.
func Format(raw string) (string, bool) {
	digits := Digits(raw)
	switch {
	case len(digits) == 10:
		return "+1" + digits, true
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits, true
	default:
		return "", false
	}
}

// Canonical validates and formats raw in one step.
func Canonical(raw string) (string, error) {
	if !IsValid(raw) {
		return "", types.ErrInvalidPhone
	}
	formatted, ok := Format(raw)
	if !ok {
		return "", types.ErrInvalidPhone
	}
	return formatted, nil
}

// Sender normalises the configured outbound number. International numbers
// already in +E.164 form are passed through unchanged.
func Sender(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if formatted, err := Canonical(raw); err == nil {
		return formatted, nil
	}
	if strings.HasPrefix(raw, "+") {
		digits := Digits(raw)
		if len(digits) >= 8 && len(digits) <= 15 {
			return "+" + digits, nil
		}
	}
	return "", fmt.Errorf("sender number %q: %w", raw, types.ErrInvalidPhone)
}
