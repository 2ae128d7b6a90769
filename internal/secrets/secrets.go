// Package secrets produces the random material behind verification flows:
// opaque URL-safe tokens for link flows and fixed-length numeric codes for
// OTP entry. Generation is pure; errors surface only when the entropy source
// fails, which callers treat as fatal.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"math/big"
	"strings"
)

const tokenBytes = 32

// GenerateToken returns a URL-safe token with 32 bytes of entropy.
func GenerateToken() (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// GenerateOTP returns a uniformly random digit string of exactly length
// digits. Leading zeros are preserved.
func GenerateOTP(length int) (string, error) {
	if length < 4 || length > 10 {
		return "", errors.New("otp length out of range")
	}

	var b strings.Builder
	b.Grow(length)

	max := big.NewInt(10)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	return b.String(), nil
}
