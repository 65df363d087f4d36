package whatsapp

import (
	"fmt"
	"strings"
	"unicode"
)

const localDigits = 8

// PhoneNormalizer returns a function that reduces a phone number to digits
// and prefixes countryCode to local eight digit numbers.
func PhoneNormalizer(countryCode string) func(string) (string, error) {
	return func(raw string) (string, error) {
		digits := strings.Map(func(r rune) rune {
			if unicode.IsDigit(r) {
				return r
			}
			return -1
		}, raw)
		digits = strings.TrimPrefix(digits, "00")

		switch {
		case len(digits) == localDigits:
			return countryCode + digits, nil
		case len(digits) > localDigits && len(digits) <= 15:
			return digits, nil
		default:
			return "", fmt.Errorf("invalid phone number %q", raw)
		}
	}
}
