// Package roomcode mints and validates Bonfire's 6-character room
// identifiers. No teacher equivalent exists (the teacher takes caller-
// supplied room ids as path params); this package is grounded directly on
// spec.md §3 and §8.
package roomcode

import (
	"crypto/rand"
	"strings"

	"github.com/Novapool/bonfire/internal/domain"
)

// Alphabet excludes visually ambiguous characters: O, I, 0, 1.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Length is the fixed length of every minted room code.
const Length = 6

// Generate mints a random 6-character code drawn from Alphabet using a
// cryptographically secure random source. It does not check for collisions
// against any catalog — callers (RoomManager) are responsible for retrying
// on collision, per spec.md §4.4's bounded-retry policy.
func Generate() (domain.RoomId, error) {
	buf := make([]byte, Length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, Length)
	for i, b := range buf {
		out[i] = Alphabet[int(b)%len(Alphabet)]
	}
	return domain.RoomId(out), nil
}

// IsValid reports whether code is exactly Length characters, all drawn from
// Alphabet, with no normalization applied (callers should Normalize first
// if the input may carry case or whitespace).
func IsValid(code domain.RoomId) bool {
	s := string(code)
	if len(s) != Length {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune(Alphabet, r) {
			return false
		}
	}
	return true
}

// Normalize trims surrounding whitespace and uppercases code, accepting
// lowercase input. Idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(code string) domain.RoomId {
	return domain.RoomId(strings.ToUpper(strings.TrimSpace(code)))
}
