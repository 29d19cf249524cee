package validation

import (
	"errors"
	"strings"
	"time"
)

// DateLayout is the accepted departure date format.
const DateLayout = "2006-01-02"

// ErrCodeEmpty is returned when a code is empty or whitespace-only after trim.
var ErrCodeEmpty = errors.New("code is required")

// ErrCodeInvalid is returned when a code is not exactly three ASCII letters.
var ErrCodeInvalid = errors.New("code must be three letters")

// ErrDateInvalid is returned when a date is not a calendar date in YYYY-MM-DD form.
var ErrDateInvalid = errors.New("date must be YYYY-MM-DD")

// ValidateIATACode trims the input and accepts a three-letter airport or city code in
// either case. Returns the trimmed, upper-cased code.
func ValidateIATACode(input string) (string, error) {
	return validateThreeLetters(input)
}

// ValidateCurrency accepts a three-letter ISO 4217 style currency code in either case.
// Returns the trimmed, upper-cased code.
func ValidateCurrency(input string) (string, error) {
	return validateThreeLetters(input)
}

// ValidateDate parses a YYYY-MM-DD date as midnight UTC.
func ValidateDate(input string) (time.Time, error) {
	s := strings.TrimSpace(input)
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, ErrDateInvalid
	}
	return t, nil
}

func validateThreeLetters(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrCodeEmpty
	}
	if len(s) != 3 {
		return "", ErrCodeInvalid
	}
	for i := 0; i < len(s); i++ {
		if !isASCIILetter(s[i]) {
			return "", ErrCodeInvalid
		}
	}
	return strings.ToUpper(s), nil
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
