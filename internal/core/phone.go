package core

import (
	"regexp"
	"strings"
)

const (
	// PhoneField is the column that is always normalized and used as the
	// deduplication key.
	PhoneField = "Phone 1 - Value"

	// PhoneDelimiter separates multiple numbers within one cell.
	PhoneDelimiter = ":::"

	// CountryPrefix is removed from every number before digits are kept.
	CountryPrefix = "+91"

	// PhoneDigits is how many trailing digits a normalized number keeps.
	PhoneDigits = 10

	// PhoneJoiner joins the normalized numbers of one cell.
	PhoneJoiner = ", "
)

var nonDigits = regexp.MustCompile(`[^0-9]`)

// NormalizePhone removes every "+91", drops all non-digit characters and
// keeps the last 10 digits. Shorter results are returned as they are.
func NormalizePhone(raw string) string {
	if raw == "" {
		return ""
	}

	digits := nonDigits.ReplaceAllString(strings.ReplaceAll(raw, CountryPrefix, ""), "")
	if len(digits) > PhoneDigits {
		digits = digits[len(digits)-PhoneDigits:]
	}
	return digits
}

// NormalizePhoneList splits raw on ":::", normalizes every piece and returns
// the distinct non-empty numbers in order of first occurrence.
func NormalizePhoneList(raw string) []string {
	pieces := strings.Split(raw, PhoneDelimiter)

	seen := make(map[string]bool, len(pieces))
	numbers := make([]string, 0, len(pieces))
	for _, piece := range pieces {
		n := NormalizePhone(piece)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		numbers = append(numbers, n)
	}
	return numbers
}

// FormatPhoneField returns the output value of the phone column for a raw
// cell value. Only non-empty strings are normalized; missing, numeric and
// other values produce "".
func FormatPhoneField(value any) string {
	s, ok := value.(string)
	if !ok || s == "" {
		return ""
	}
	return strings.Join(NormalizePhoneList(s), PhoneJoiner)
}
