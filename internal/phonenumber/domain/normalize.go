package domain

import "strings"

const (
	minNumberDigits = 3
	maxNumberDigits = 20
)

// NormalizeNumber strips formatting from raw and returns the digits-only form.
func NormalizeNumber(raw string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		case r == '+' && b.Len() == 0:
		default:
			return "", ErrInvalidNumber
		}
	}
	digits := b.String()
	if len(digits) < minNumberDigits || len(digits) > maxNumberDigits {
		return "", ErrInvalidNumber
	}
	return digits, nil
}
