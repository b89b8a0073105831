package cli

import (
	"context"

	"github.com/ocguard/ocguard/auth"
	"github.com/ocguard/ocguard/common"
	"github.com/ocguard/ocguard/keyring"
	"github.com/ocguard/ocguard/vpn"
)

// credentialProvider assembles a fresh PIN+OTP password from the stored
// credentials on every call. One-time codes expire in seconds, so
// nothing is cached between attempts.
func credentialProvider() vpn.CredentialProvider {
	return func(_ context.Context) (vpn.Credentials, error) {
		pin, err := keyring.Get(keyring.KeyPIN)
		if err != nil {
			return vpn.Credentials{}, common.WrapError(common.ErrCredentialsNotFound,
				"no stored PIN, run 'ocguard setup' first")
		}
		secret, err := keyring.Get(keyring.KeyOTPSecret)
		if err != nil {
			return vpn.Credentials{}, common.WrapError(common.ErrCredentialsNotFound,
				"no stored OTP secret, run 'ocguard setup' first")
		}
		algorithm, _ := keyring.Get(keyring.KeyOTPAlgorithm)

		totp, err := auth.NewTOTP(secret, auth.Algorithm(algorithm))
		if err != nil {
			return vpn.Credentials{}, err
		}
		password, err := auth.BuildPassword(pin, totp)
		if err != nil {
			return vpn.Credentials{}, err
		}
		return vpn.Credentials{Password: password}, nil
	}
}
