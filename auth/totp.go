// Package auth generates time-based one-time passwords and assembles
// VPN passwords from a stored PIN and the current OTP.
package auth

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"hash"
	"strings"
	"time"

	"github.com/ocguard/ocguard/common"
)

// Algorithm selects the HMAC hash used for OTP generation.
type Algorithm string

const (
	AlgorithmSHA1   Algorithm = "SHA1"
	AlgorithmSHA256 Algorithm = "SHA256"
	AlgorithmSHA512 Algorithm = "SHA512"
)

const (
	// otpPeriod is the time step in seconds (RFC 6238 default).
	otpPeriod = 30
	// otpDigits is the number of digits in a generated code.
	otpDigits = 6
)

// TOTP generates one-time passwords from a shared secret.
type TOTP struct {
	key       []byte
	algorithm Algorithm
}

// NewTOTP creates a generator from a base32-encoded secret.
// Whitespace and case in the secret are normalized before decoding.
func NewTOTP(secret string, algorithm Algorithm) (*TOTP, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(secret, " ", ""))
	normalized = strings.TrimRight(normalized, "=")
	if normalized == "" {
		return nil, common.WrapError(common.ErrInvalidSecret, "secret is empty")
	}

	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(normalized)
	if err != nil {
		return nil, common.WrapError(common.ErrInvalidSecret, "secret is not valid base32")
	}

	switch algorithm {
	case AlgorithmSHA1, AlgorithmSHA256, AlgorithmSHA512:
	case "":
		algorithm = AlgorithmSHA1
	default:
		return nil, common.WrapError(common.ErrInvalidSecret,
			fmt.Sprintf("unsupported algorithm %q", algorithm))
	}

	return &TOTP{key: key, algorithm: algorithm}, nil
}

// Generate returns the current 6-digit code.
func (t *TOTP) Generate() string {
	return t.GenerateAt(time.Now())
}

// GenerateAt returns the code for a given moment.
func (t *TOTP) GenerateAt(at time.Time) string {
	counter := uint64(at.Unix()) / otpPeriod
	return t.generateCounter(counter)
}

// Remaining returns the seconds of validity left in the current period.
func (t *TOTP) Remaining() int {
	return otpPeriod - int(time.Now().Unix()%otpPeriod)
}

func (t *TOTP) generateCounter(counter uint64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(t.hashFunc(), t.key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	// Dynamic truncation per RFC 4226.
	offset := sum[len(sum)-1] & 0x0f
	code := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	return fmt.Sprintf("%06d", code%1000000)
}

func (t *TOTP) hashFunc() func() hash.Hash {
	switch t.algorithm {
	case AlgorithmSHA256:
		return sha256.New
	case AlgorithmSHA512:
		return sha512.New
	default:
		return sha1.New
	}
}
