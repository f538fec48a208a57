package opins

import (
	"crypto/rand"
	"math/big"
)

const (
	// LinkIDLength is the number of characters in a share link id.
	LinkIDLength = 8

	linkIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var alphabetSize = big.NewInt(int64(len(linkIDAlphabet)))

// GenerateLinkID returns a random link id. Each character is sampled
// independently and uniformly from the 62-symbol alphabet.
func GenerateLinkID() (string, error) {
	b := make([]byte, LinkIDLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", err
		}
		b[i] = linkIDAlphabet[n.Int64()]
	}
	return string(b), nil
}

// ValidLinkID reports whether s has the shape of a generated link id.
func ValidLinkID(s string) bool {
	if len(s) != LinkIDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
