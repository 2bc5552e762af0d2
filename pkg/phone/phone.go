// Package phone normalizes Kenyan subscriber numbers into the 2547XXXXXXXX /
// 2541XXXXXXXX shape the M-Pesa STK push API expects.
package phone

import (
	"errors"
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "KE"

var (
	// ErrInvalid is returned for any input that cannot become a subscriber number.
	ErrInvalid = errors.New("phone must be a valid Safaricom subscriber number (2547XXXXXXXX or 2541XXXXXXXX)")

	subscriberRe = regexp.MustCompile(`^254(7|1)\d{8}$`)
	allowedRe    = regexp.MustCompile(`^\+?[0-9 ()\-.]+$`)
)

// Normalize converts local (07..., 01..., 7...) and international (+254..., 254...)
// forms into the provider's subscriber-number shape.
func Normalize(raw string) (string, error) {
	input := strings.TrimSpace(raw)
	if input == "" || !allowedRe.MatchString(input) {
		return "", ErrInvalid
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, input)
	if strings.HasPrefix(input, "+") || (strings.HasPrefix(digits, "254") && len(digits) == 12) {
		digits = "+" + digits
	}

	num, err := phonenumbers.Parse(digits, defaultRegion)
	if err != nil {
		return "", ErrInvalid
	}
	normalized := strings.TrimPrefix(phonenumbers.Format(num, phonenumbers.E164), "+")
	if !subscriberRe.MatchString(normalized) {
		return "", ErrInvalid
	}
	return normalized, nil
}

// IsSubscriber reports whether value is already in normalized form.
func IsSubscriber(value string) bool {
	return subscriberRe.MatchString(value)
}
