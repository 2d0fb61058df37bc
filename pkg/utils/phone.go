package utils

import "strings"

// DigitsOnly strips everything but ASCII digits.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PhoneKey is the comparison key for a phone number: "1" followed by its last ten digits.
// Inputs with fewer than ten digits are returned as bare digits.
func PhoneKey(s string) string {
	d := DigitsOnly(s)
	if len(d) < 10 {
		return d
	}
	return "1" + d[len(d)-10:]
}

// DialNumber renders a number the way the telephony API expects it: digits only,
// with the US country code added to bare ten-digit numbers.
func DialNumber(s string) string {
	d := DigitsOnly(s)
	if len(d) == 10 {
		return "1" + d
	}
	return d
}

// FormatPhone renders US numbers as "+1 (XXX) XXX-XXXX" and anything else as "+<digits>".
// It returns "" when s has no digits.
func FormatPhone(s string) string {
	d := DialNumber(s)
	if d == "" {
		return ""
	}
	if len(d) == 11 && d[0] == '1' {
		return "+1 (" + d[1:4] + ") " + d[4:7] + "-" + d[7:]
	}
	return "+" + d
}
