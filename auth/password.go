package auth

import (
	"fmt"

	"github.com/ocguard/ocguard/common"
)

const (
	pinLength      = 4
	passwordLength = pinLength + otpDigits
)

// ValidatePIN checks that a PIN is exactly four digits.
func ValidatePIN(pin string) error {
	if len(pin) != pinLength {
		return common.WrapError(common.ErrInvalidPin,
			fmt.Sprintf("PIN must be %d digits", pinLength))
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return common.WrapError(common.ErrInvalidPin, "PIN must contain only digits")
		}
	}
	return nil
}

// BuildPassword assembles the VPN password by concatenating the PIN with
// the current one-time code. The result is always ten digits.
func BuildPassword(pin string, totp *TOTP) (string, error) {
	if err := ValidatePIN(pin); err != nil {
		return "", err
	}

	password := pin + totp.Generate()
	if len(password) != passwordLength {
		return "", common.WrapError(common.ErrInvalidSecret, "generated password has wrong length")
	}
	return password, nil
}
