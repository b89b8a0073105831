package auth

import (
	"encoding/base32"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ocguard/ocguard/common"
)

// Secrets from the RFC 6238 appendix; each algorithm uses the ASCII seed
// repeated to its block size.
func rfcSecret(size int) string {
	seed := "12345678901234567890"
	repeated := strings.Repeat(seed, size/len(seed)+1)[:size]
	return base32.StdEncoding.EncodeToString([]byte(repeated))
}

func TestTOTP_RFC6238Vectors(t *testing.T) {
	// Expected values are the low six digits of the RFC's 8-digit codes.
	tests := []struct {
		algorithm Algorithm
		size      int
		unix      int64
		want      string
	}{
		{AlgorithmSHA1, 20, 59, "287082"},
		{AlgorithmSHA1, 20, 1111111109, "081804"},
		{AlgorithmSHA1, 20, 1234567890, "005924"},
		{AlgorithmSHA1, 20, 2000000000, "279037"},
		{AlgorithmSHA256, 32, 59, "119246"},
		{AlgorithmSHA256, 32, 1111111109, "084774"},
		{AlgorithmSHA256, 32, 1234567890, "819424"},
		{AlgorithmSHA512, 64, 59, "693936"},
		{AlgorithmSHA512, 64, 1111111109, "091201"},
		{AlgorithmSHA512, 64, 2000000000, "618901"},
	}

	for _, tt := range tests {
		t.Run(string(tt.algorithm)+"/"+tt.want, func(t *testing.T) {
			totp, err := NewTOTP(rfcSecret(tt.size), tt.algorithm)
			if err != nil {
				t.Fatalf("NewTOTP() error = %v", err)
			}
			got := totp.GenerateAt(time.Unix(tt.unix, 0))
			if got != tt.want {
				t.Errorf("GenerateAt(%d) = %q, want %q", tt.unix, got, tt.want)
			}
		})
	}
}

func TestNewTOTP_SecretNormalization(t *testing.T) {
	reference, err := NewTOTP("JBSWY3DPEHPK3PXP", AlgorithmSHA1)
	if err != nil {
		t.Fatalf("NewTOTP() error = %v", err)
	}

	variants := []string{
		"jbswy3dpehpk3pxp",
		"JBSW Y3DP EHPK 3PXP",
		"JBSWY3DPEHPK3PXP====",
	}

	at := time.Unix(1700000000, 0)
	want := reference.GenerateAt(at)
	for _, secret := range variants {
		totp, err := NewTOTP(secret, AlgorithmSHA1)
		if err != nil {
			t.Errorf("NewTOTP(%q) error = %v", secret, err)
			continue
		}
		if got := totp.GenerateAt(at); got != want {
			t.Errorf("NewTOTP(%q) code = %q, want %q", secret, got, want)
		}
	}
}

func TestNewTOTP_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		secret    string
		algorithm Algorithm
	}{
		{"empty secret", "", AlgorithmSHA1},
		{"non-base32", "not!valid!", AlgorithmSHA1},
		{"bad algorithm", "JBSWY3DPEHPK3PXP", Algorithm("MD5")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTOTP(tt.secret, tt.algorithm)
			if err == nil {
				t.Error("NewTOTP() should fail")
			}
			if !errors.Is(err, common.ErrInvalidSecret) {
				t.Errorf("error should wrap ErrInvalidSecret, got %v", err)
			}
		})
	}
}

func TestNewTOTP_DefaultAlgorithm(t *testing.T) {
	totp, err := NewTOTP("JBSWY3DPEHPK3PXP", "")
	if err != nil {
		t.Fatalf("NewTOTP() error = %v", err)
	}
	if totp.algorithm != AlgorithmSHA1 {
		t.Errorf("default algorithm = %q, want SHA1", totp.algorithm)
	}
}

func TestValidatePIN(t *testing.T) {
	tests := []struct {
		pin     string
		wantErr bool
	}{
		{"1234", false},
		{"0000", false},
		{"123", true},
		{"12345", true},
		{"12a4", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.pin, func(t *testing.T) {
			err := ValidatePIN(tt.pin)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePIN(%q) error = %v, wantErr %v", tt.pin, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, common.ErrInvalidPin) {
				t.Errorf("error should wrap ErrInvalidPin, got %v", err)
			}
		})
	}
}

func TestBuildPassword(t *testing.T) {
	totp, err := NewTOTP("JBSWY3DPEHPK3PXP", AlgorithmSHA1)
	if err != nil {
		t.Fatal(err)
	}

	password, err := BuildPassword("1234", totp)
	if err != nil {
		t.Fatalf("BuildPassword() error = %v", err)
	}

	if len(password) != 10 {
		t.Errorf("password length = %d, want 10", len(password))
	}
	if !strings.HasPrefix(password, "1234") {
		t.Errorf("password should start with the PIN, got %q", password)
	}
	for _, r := range password {
		if r < '0' || r > '9' {
			t.Errorf("password should be all digits, got %q", password)
			break
		}
	}

	if _, err := BuildPassword("12", totp); err == nil {
		t.Error("BuildPassword should reject an invalid PIN")
	}
}
