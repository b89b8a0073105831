package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ocguard/ocguard/auth"
	"github.com/ocguard/ocguard/common"
	"github.com/ocguard/ocguard/config"
	"github.com/ocguard/ocguard/keyring"
)

func newSetupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Configure the VPN connection and store credentials",
		Long: "Walks through server, account and credential setup. The PIN " +
			"and OTP secret go to the system keyring; nothing sensitive is " +
			"written to the config file.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSetup(cmd)
		},
	}
}

func runSetup(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		// A broken config should not block setup, it is about to be
		// rewritten anyway.
		common.LogWarn("Starting setup from defaults: %v", err)
		cfg = config.DefaultConfig()
	}

	out := cmd.OutOrStdout()
	reader := bufio.NewReader(cmd.InOrStdin())

	fmt.Fprintln(out, "ocguard setup")
	fmt.Fprintln(out)

	cfg.Server, err = prompt(reader, out, "VPN server", cfg.Server)
	if err != nil {
		return err
	}
	cfg.Username, err = prompt(reader, out, "Username", cfg.Username)
	if err != nil {
		return err
	}
	cfg.Protocol, err = prompt(reader, out, "Protocol (f5, anyconnect, gp)", cfg.Protocol)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	pin, err := promptSecret(out, "PIN")
	if err != nil {
		return err
	}
	if err := auth.ValidatePIN(pin); err != nil {
		return err
	}

	secret, err := promptSecret(out, "OTP secret (base32)")
	if err != nil {
		return err
	}
	algorithm, err := prompt(reader, out, "OTP algorithm (SHA1, SHA256, SHA512)", string(auth.AlgorithmSHA1))
	if err != nil {
		return err
	}
	algorithm = strings.ToUpper(algorithm)

	totp, err := auth.NewTOTP(secret, auth.Algorithm(algorithm))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Current code: %s (valid for %ds)\n", totp.Generate(), totp.Remaining())

	if err := keyring.Store(keyring.KeyPIN, pin); err != nil {
		return err
	}
	if err := keyring.Store(keyring.KeyOTPSecret, secret); err != nil {
		return err
	}
	if err := keyring.Store(keyring.KeyOTPAlgorithm, algorithm); err != nil {
		return err
	}

	if configPath != "" {
		err = cfg.SaveTo(configPath)
	} else {
		err = cfg.Save()
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Setup complete. Run 'ocguard connect' to establish the connection.")
	return nil
}

func prompt(reader *bufio.Reader, out io.Writer, label, current string) (string, error) {
	if current != "" {
		fmt.Fprintf(out, "%s [%s]: ", label, current)
	} else {
		fmt.Fprintf(out, "%s: ", label)
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", common.WrapError(err, "failed to read input")
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return current, nil
	}
	return line, nil
}

func promptSecret(out io.Writer, label string) (string, error) {
	fmt.Fprintf(out, "%s: ", label)
	value, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(out)
	if err != nil {
		return "", common.WrapError(err, "failed to read secret")
	}
	return strings.TrimSpace(string(value)), nil
}
