// Package phone normalizes and validates subscriber phone numbers to a
// single canonical E.164-without-plus form, used as the system's one
// identity key (user id lookup, session key, lock owner tag).
package phone

import (
	"regexp"
	"strings"

	"ticketconcierge/internal/bookingerr"
)

// subscriberPrefix matches the 9-digit subscriber portion after the 254
// country code: Safaricom/Airtel/Telkom ranges used by the operator.
var subscriberPrefix = regexp.MustCompile(`^(7[0-9]|1[01])[0-9]{7}$`)

const countryCode = "254"

// Normalize strips whitespace/hyphens, drops a leading '+', and rewrites the
// remainder into the 254XXXXXXXXX form. It returns bookingerr(InvalidPhone)
// if the result doesn't resolve to a plausible subscriber number.
func Normalize(raw string) (string, error) {
	s := strings.ReplaceAll(raw, " ", "")
	s = strings.ReplaceAll(s, "-", "")
	s = strings.TrimPrefix(s, "+")

	if s == "" {
		return "", bookingerr.New(bookingerr.InvalidPhone, "empty phone number")
	}

	var normalized string
	switch {
	case strings.HasPrefix(s, countryCode):
		normalized = s
	case strings.HasPrefix(s, "0"):
		normalized = countryCode + s[1:]
	case len(s) == 9:
		normalized = countryCode + s
	default:
		return "", bookingerr.New(bookingerr.InvalidPhone, "unrecognized phone format: "+raw)
	}

	if !Validate(normalized) {
		return "", bookingerr.New(bookingerr.InvalidPhone, "invalid subscriber number: "+raw)
	}
	return normalized, nil
}

// Validate reports whether a normalized (254-prefixed) phone number has a
// plausible 9-digit subscriber portion.
func Validate(normalized string) bool {
	if !strings.HasPrefix(normalized, countryCode) {
		return false
	}
	subscriber := normalized[len(countryCode):]
	return subscriberPrefix.MatchString(subscriber)
}

// Mask renders a phone number for logs, revealing only the first four digits
// (country code plus the leading subscriber digit) and the last three, e.g.
// "254712345678" -> "2547****678".
func Mask(normalized string) string {
	if len(normalized) < 7 {
		return "***"
	}
	head := normalized[:4]
	tail := normalized[len(normalized)-3:]
	return head + "****" + tail
}
