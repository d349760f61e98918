// Package resolve turns raw platform identifiers into canonical phone numbers.
package resolve

import (
	"regexp"
	"strings"
)

// canonicalPattern is what a deliverable phone number looks like: digits only,
// 10 to 15 of them. Anything else is an opaque platform identifier.
var canonicalPattern = regexp.MustCompile(`^\d{10,15}$`)

// IsCanonical reports whether s is a canonical phone number.
func IsCanonical(s string) bool {
	return canonicalPattern.MatchString(s)
}

var nonDigits = regexp.MustCompile(`\D`)

// Digits strips every non-digit character from s.
func Digits(s string) string {
	return nonDigits.ReplaceAllString(s, "")
}

// FormatPhoneNumber normalizes a free-form phone number into the chat
// addressing form <digits>@c.us. Returns "" when the number cannot be a
// deliverable address (fewer than 10 or more than 15 digits).
func FormatPhoneNumber(phoneNumber string) string {
	cleaned := Digits(phoneNumber)
	if !IsCanonical(cleaned) {
		return ""
	}
	return cleaned + "@c.us"
}

// UserPart returns the portion of a JID before the domain suffix.
// "12345@s.whatsapp.net" -> "12345"; inputs without a suffix pass through.
func UserPart(jid string) string {
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		return jid[:i]
	}
	return jid
}
