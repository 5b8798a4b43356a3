package relay

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// SessionIDLength is the number of characters in a generated session id.
const SessionIDLength = 16

const sessionIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Source produces uniformly distributed values in [0, n).
type Source interface {
	Intn(n int) int
}

// cryptoSource implements Source using crypto/rand.
//
// Invariant: All values produced are cryptographically secure and uniformly
// distributed in [0, n) for any n > 0.
type cryptoSource struct{}

// NewCryptoSource returns a Source backed by crypto/rand.
//
// Postcondition: Every value returned by Intn is in [0, n).
func NewCryptoSource() Source {
	return cryptoSource{}
}

// Intn returns a cryptographically secure random int in [0, n).
//
// Precondition: n > 0. Panics if n <= 0 or if crypto/rand fails.
func (cryptoSource) Intn(n int) int {
	if n <= 0 {
		panic("relay: Intn called with n <= 0")
	}
	val, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("relay: crypto/rand failure: " + err.Error())
	}
	return int(val.Int64())
}

// NewSessionID draws a SessionIDLength-character alphanumeric id from src.
//
// Postcondition: The result has exactly SessionIDLength characters, each in [A-Za-z0-9].
func NewSessionID(src Source) string {
	var b strings.Builder
	b.Grow(SessionIDLength)
	for range SessionIDLength {
		b.WriteByte(sessionIDAlphabet[src.Intn(len(sessionIDAlphabet))])
	}
	return b.String()
}

// IsSessionID reports whether s has the shape of a generated session id.
func IsSessionID(s string) bool {
	if len(s) != SessionIDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(sessionIDAlphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}
