// Package phone normalizes sender addresses so that block-list lookups,
// directory lookups and thread derivation agree on what "the same number" is.
package phone

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// comparableDigits is how many trailing digits identify a number regardless
// of country or trunk prefix.
const comparableDigits = 9

// UnknownThreadID is the thread used for events without a sender address.
const UnknownThreadID int64 = 1

// Normalize strips formatting from an address. Numeric addresses keep a
// leading '+' and their digits; alphanumeric sender IDs are lowercased.
func Normalize(address string) string {
	address = strings.TrimSpace(address)
	if address == "" {
		return ""
	}
	if !isNumeric(address) {
		return strings.ToLower(address)
	}

	var sb strings.Builder
	for i, r := range address {
		switch {
		case r == '+' && i == 0:
			sb.WriteRune(r)
		case r >= '0' && r <= '9':
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// Comparable returns the key used to match an address against the block-list
// and the contact directory.
func Comparable(address string) string {
	n := Normalize(address)
	if n == "" || !isNumeric(n) {
		return n
	}
	n = strings.TrimPrefix(n, "+")
	if len(n) > comparableDigits {
		n = n[len(n)-comparableDigits:]
	}
	return n
}

// Equal reports whether two addresses refer to the same sender.
func Equal(a, b string) bool {
	ca, cb := Comparable(a), Comparable(b)
	return ca != "" && ca == cb
}

// ThreadID derives a stable conversation identifier from an address.
// Addresses that are Equal share a thread. The result is always >= 1; the
// empty address maps to UnknownThreadID.
func ThreadID(address string) int64 {
	n := Comparable(address)
	if n == "" {
		return UnknownThreadID
	}
	h := fnv.New64a()
	h.Write([]byte(n))
	id := int64(h.Sum64() >> 1)
	if id <= UnknownThreadID {
		id += UnknownThreadID + 1
	}
	return id
}

// isNumeric reports whether s looks like a phone number: only digits,
// separators and an optional leading '+'.
func isNumeric(s string) bool {
	digits := 0
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')' || r == '/':
		case unicode.IsSpace(r):
		default:
			return false
		}
	}
	return digits > 0
}
