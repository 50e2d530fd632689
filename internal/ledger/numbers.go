package ledger

import (
	"crypto/rand"
	"fmt"
)

const (
	refAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	refLen        = 8
	accountDigits = 12

	// Collisions are astronomically unlikely but still a correctness concern:
	// generated numbers are only final once the store's unique constraint
	// accepts them, and generation retries this many times before reporting
	// the store as degraded.
	maxGenerateAttempts = 5
)

func randomString(alphabet string, n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out), nil
}

// newReference samples a client-facing reference number, TRX- plus eight
// uppercase alphanumerics.
func newReference() (string, error) {
	s, err := randomString(refAlphabet, refLen)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("TRX-%s", s), nil
}

// newAccountNumber samples a 12-digit account number.
func newAccountNumber() (string, error) {
	return randomString("0123456789", accountDigits)
}
