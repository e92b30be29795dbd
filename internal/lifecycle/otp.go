package lifecycle

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
)

// CodeLength is the number of digits in a one-time code.
const CodeLength = 4

var codeSpace = big.NewInt(10_000)

var (
	ErrOTPMismatch          = errors.New("one-time code does not match")
	ErrCancellationDeadline = errors.New("cancellation deadline has passed")
)

// GenerateCode draws a code uniformly from 0000-9999.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}

// ValidCodeFormat reports whether s has the shape of a one-time code.
func ValidCodeFormat(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// CodesMatch compares an issued code with a submitted one. An empty issued
// code never matches.
func CodesMatch(issued, submitted string) bool {
	if issued == "" || len(issued) != len(submitted) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(issued), []byte(submitted)) == 1
}
