// Package phone normalizes Kenyan mobile numbers into the MSISDN form
// the Daraja API expects (2547XXXXXXXX / 2541XXXXXXXX).
package phone

import (
	"regexp"
	"strings"
)

var msisdnPattern = regexp.MustCompile(`^254(7|1)\d{8}$`)

// Normalize converts "07...", "+2547..." or "2547..." into "2547...".
// Returns false when the result is not a valid Kenyan mobile number.
func Normalize(raw string) (string, bool) {
	number := strings.TrimSpace(raw)
	number = strings.ReplaceAll(number, " ", "")
	number = strings.ReplaceAll(number, "-", "")

	switch {
	case strings.HasPrefix(number, "+254"):
		number = "254" + number[4:]
	case strings.HasPrefix(number, "0"):
		number = "254" + number[1:]
	}

	if !msisdnPattern.MatchString(number) {
		return "", false
	}
	return number, true
}
