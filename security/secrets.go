// Package security provides the credential primitives shared by the OAuth
// engine and its storage backends: cryptographically random identifier
// generation and constant-time secret comparison.
package security

import (
	"crypto/rand"
	"crypto/subtle"
	"math/big"
)

// Corpus is the alphabet for generated identifiers and secrets.
const Corpus = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomString returns a cryptographically random string of length n drawn
// from Corpus. It panics only if the platform entropy source is broken,
// which is not a recoverable condition.
func RandomString(n int) string {
	out := make([]byte, n)
	max := big.NewInt(int64(len(Corpus)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("security: entropy source unavailable: " + err.Error())
		}
		out[i] = Corpus[idx.Int64()]
	}
	return string(out)
}

// SecretEqual compares two secrets in constant time. Empty strings never
// match anything, including each other.
func SecretEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
