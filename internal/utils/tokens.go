package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	resetCodeMin = 100000
	resetCodeMax = 999999
)

// NewResetCode returns a six digit code drawn uniformly from [100000, 999999].
func NewResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(resetCodeMax-resetCodeMin+1))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+resetCodeMin), nil
}

// HashToken returns the hex SHA-256 digest stored in place of a secret.
func HashToken(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// EqualDigest compares two digests in constant time.
func EqualDigest(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
