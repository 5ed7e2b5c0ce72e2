package service

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/binary"
	"fmt"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
)

// HOTPCodeGenerator derives each access code from a fresh random key and
// counter, so codes are independent of one another.
type HOTPCodeGenerator struct {
	digits otp.Digits
}

func NewCodeGenerator(length int) *HOTPCodeGenerator {
	if length <= 0 {
		length = 6
	}
	return &HOTPCodeGenerator{digits: otp.Digits(length)}
}

func (g *HOTPCodeGenerator) Generate() (string, error) {
	key := make([]byte, 20)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to read random key: %w", err)
	}
	var counter [8]byte
	if _, err := rand.Read(counter[:]); err != nil {
		return "", fmt.Errorf("failed to read random counter: %w", err)
	}

	code, err := hotp.GenerateCodeCustom(
		base32.StdEncoding.EncodeToString(key),
		binary.BigEndian.Uint64(counter[:]),
		hotp.ValidateOpts{Digits: g.digits, Algorithm: otp.AlgorithmSHA1},
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate access code: %w", err)
	}
	return code, nil
}
