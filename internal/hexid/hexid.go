// Package hexid generates short random hex identifiers used as id suffixes.
package hexid

import (
	"crypto/rand"
	"encoding/hex"
)

// New returns 8 lowercase hex characters.
func New() string {
	return random(4)
}

// Short returns 4 lowercase hex characters, the suffix of worker ids.
func Short() string {
	return random(2)
}

func random(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("hexid: crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
