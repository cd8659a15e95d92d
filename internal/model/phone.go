package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// ErrInvalidPhone is returned when a phone number fails E.164 validation.
var ErrInvalidPhone = eris.New("model: invalid phone number")

// NormalizePhone strips separators and validates that the number is in
// international format: leading +, 10 to 20 characters total.
func NormalizePhone(raw string) (string, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, "-", "")
	cleaned = strings.ReplaceAll(cleaned, "(", "")
	cleaned = strings.ReplaceAll(cleaned, ")", "")

	if !strings.HasPrefix(cleaned, "+") {
		return "", eris.Wrapf(ErrInvalidPhone, "%q must start with +", raw)
	}
	if len(cleaned) < 10 || len(cleaned) > 20 {
		return "", eris.Wrapf(ErrInvalidPhone, "%q has invalid length", raw)
	}
	for _, r := range cleaned[1:] {
		if r < '0' || r > '9' {
			return "", eris.Wrapf(ErrInvalidPhone, "%q contains non-digit", raw)
		}
	}
	return cleaned, nil
}

// LastDigits returns the trailing n digits of a phone number, used for
// placeholder contact names.
func LastDigits(phone string, n int) string {
	if len(phone) <= n {
		return strings.TrimPrefix(phone, "+")
	}
	return phone[len(phone)-n:]
}
