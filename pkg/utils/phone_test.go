package utils

import "testing"

func TestFormatPhone(t *testing.T) {
	cases := map[string]string{
		"(555) 123-4567":   "+1 (555) 123-4567",
		"1-555-123-4567":   "+1 (555) 123-4567",
		"+44 20 7946 0958": "+442079460958",
		"ext only":         "",
	}
	for in, want := range cases {
		if got := FormatPhone(in); got != want {
			t.Fatalf("FormatPhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPhoneKey(t *testing.T) {
	if got := PhoneKey("+1 (347) 200-5533"); got != "13472005533" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := PhoneKey("3472005533"); got != "13472005533" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := PhoneKey("12345"); got != "12345" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestDialNumber(t *testing.T) {
	if got := DialNumber("(555) 123-4567"); got != "15551234567" {
		t.Fatalf("unexpected dial number %q", got)
	}
	if got := DialNumber("+15551234567"); got != "15551234567" {
		t.Fatalf("unexpected dial number %q", got)
	}
}
