package ident

import "testing"

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"+55 (11) 98765-4321", "5511987654321"},
		{"555123456", "555123456"},
		{"0555123456", "0555123456"},  // 10 digits, leading zero kept
		{"05551234567", "5551234567"}, // 11 digits, trunk zero trimmed
		{"123456", ""},                // too short
		{"12345678901234567890", ""},  // too long
		{"no digits here", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizePhone(tt.raw); got != tt.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestNormalizePhoneIdempotent(t *testing.T) {
	inputs := []string{"+55 11 98765-4321", "0555123456", "05551234567", "555123456"}
	for _, raw := range inputs {
		once := NormalizePhone(raw)
		twice := NormalizePhone(once)
		if once != twice {
			t.Errorf("NormalizePhone not idempotent for %q: %q != %q", raw, once, twice)
		}
	}
}

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"555123456:12@s.example.net", "555123456@s.example.net"},
		{"555123456@s.whatsapp.net", "555123456@s.whatsapp.net"},
		{"05551234567:3@s.whatsapp.net", "5551234567@s.whatsapp.net"},
		{"555123456", ""},           // no domain
		{"555123456@", ""},          // empty domain
		{"abc:1@s.example.net", ""}, // local part not a phone
	}
	for _, tt := range tests {
		if got := NormalizeAddress(tt.raw); got != tt.want {
			t.Errorf("NormalizeAddress(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestPhonePart(t *testing.T) {
	if got := PhonePart("555123456@s.example.net"); got != "555123456" {
		t.Errorf("PhonePart = %q, want 555123456", got)
	}
	if got := PhonePart("555123456"); got != "" {
		t.Errorf("PhonePart without domain = %q, want empty", got)
	}
}

func TestCanonicalAddressFor(t *testing.T) {
	if got := CanonicalAddressFor("555123456", ""); got != "555123456@s.whatsapp.net" {
		t.Errorf("default domain: got %q", got)
	}
	if got := CanonicalAddressFor("555123456", "999:4@s.example.net"); got != "555123456@s.whatsapp.net" {
		// existing address does not normalize (local part too short), fall back
		t.Errorf("invalid existing: got %q", got)
	}
	if got := CanonicalAddressFor("555123456", "5559999999:4@s.example.net"); got != "555123456@s.example.net" {
		t.Errorf("domain reuse: got %q", got)
	}
}
