// Package ident normalizes the heterogeneous identifiers that arrive on the
// wire (raw phone strings, protocol addresses with device and domain suffixes)
// into the canonical forms the store keys on. All functions are pure.
package ident

import "strings"

// DefaultDomain is the transport's standard one-to-one messaging domain.
const DefaultDomain = "s.whatsapp.net"

const (
	minPhoneDigits = 7
	maxPhoneDigits = 15
)

// NormalizePhone strips a raw phone string down to digits, trims a leading
// zero left over from trunk-prefixed numbers longer than ten digits, and
// returns "" if the result is not a plausible phone number.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > 10 && digits[0] == '0' {
		digits = digits[1:]
	}
	if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return ""
	}
	return digits
}

// NormalizeAddress canonicalizes a protocol address: the device suffix
// (":NN" in the local part) is stripped and the local part is normalized as a
// phone. Returns "" if the address has no domain or the local part is not a
// valid phone.
func NormalizeAddress(raw string) string {
	local, domain, ok := strings.Cut(raw, "@")
	if !ok || domain == "" {
		return ""
	}
	if i := strings.IndexByte(local, ':'); i >= 0 {
		local = local[:i]
	}
	phone := NormalizePhone(local)
	if phone == "" {
		return ""
	}
	return phone + "@" + domain
}

// PhonePart returns the phone component of a canonical address, or "" if the
// address is not canonical.
func PhonePart(address string) string {
	local, _, ok := strings.Cut(address, "@")
	if !ok {
		return ""
	}
	return NormalizePhone(local)
}

// CanonicalAddressFor builds the canonical address for a phone. If an existing
// address is given and normalizes, its domain is reused; otherwise the default
// one-to-one domain applies.
func CanonicalAddressFor(phone, existingAddress string) string {
	domain := DefaultDomain
	if existingAddress != "" {
		if norm := NormalizeAddress(existingAddress); norm != "" {
			_, domain, _ = strings.Cut(norm, "@")
		}
	}
	return phone + "@" + domain
}
