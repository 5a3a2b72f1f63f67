package cmd

import (
	"bytes"
	"fmt"
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/radumarias/rencfs-desktop/secret"
)

var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Manage vault passwords in the OS keyring",
}

var passwordSetCmd = &cobra.Command{
	Use:   "set ID",
	Short: "Store the password a vault is unlocked with",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		pw, err := promptPassword(int(os.Stdin.Fd()))
		if err != nil {
			return err
		}
		defer memguard.WipeBytes(pw)
		if err := secret.NewKeyring().Save(id, pw); err != nil {
			return fmt.Errorf("failed to store password: %w", err)
		}
		fmt.Printf("Password stored for vault %d\n", id)
		return nil
	},
}

var passwordDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Forget a vault's stored password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return secret.NewKeyring().Delete(id)
	},
}

func init() {
	rootCmd.AddCommand(passwordCmd)
	passwordCmd.AddCommand(passwordSetCmd, passwordDeleteCmd)
}

func promptPassword(fd int) ([]byte, error) {
	fmt.Print("Enter vault password: ")
	password1, err := term.ReadPassword(fd)
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()

	fmt.Print("Confirm vault password: ")
	password2, err := term.ReadPassword(fd)
	if err != nil {
		memguard.WipeBytes(password1)
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()
	defer memguard.WipeBytes(password2)

	if !bytes.Equal(password1, password2) {
		memguard.WipeBytes(password1)
		return nil, fmt.Errorf("passwords do not match")
	}
	if len(password1) == 0 {
		return nil, fmt.Errorf("password cannot be empty")
	}
	return password1, nil
}
