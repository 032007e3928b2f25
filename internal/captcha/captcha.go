// Package captcha implements the text challenge shown on the login and sign-up forms.
package captcha

import (
	"crypto/rand"
	"crypto/subtle"
	"math/big"
)

// Alphabet is the character set of challenges.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Length of a challenge.
const Length = 6

// New returns a fresh challenge.
func New() (string, error) {
	size := big.NewInt(int64(len(Alphabet)))
	out := make([]byte, Length)
	for i := range out {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		out[i] = Alphabet[n.Int64()]
	}
	return string(out), nil
}

// Check compares the answer with the challenge, case-sensitively.
// An empty challenge never matches.
func Check(challenge, answer string) bool {
	if challenge == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(challenge), []byte(answer)) == 1
}
