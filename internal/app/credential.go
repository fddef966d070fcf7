package app

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sdis/opsdash/internal/credential"
)

var credentialCmd = &cobra.Command{
	Use:   "credential",
	Short: "Manage secrets stored in the system keyring",
}

var credentialSetCmd = &cobra.Command{
	Use:   "set <key>",
	Short: "Store a secret, read from the terminal or stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := readSecret(cmd)
		if err != nil {
			return err
		}
		if value == "" {
			return fmt.Errorf("empty value for %q", args[0])
		}

		creds, err := credential.Open()
		if err != nil {
			return err
		}
		if err := creds.Set(args[0], value); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stored %q\n", args[0])
		return nil
	},
}

var credentialDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Remove a secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := credential.Open()
		if err != nil {
			return err
		}
		return creds.Delete(args[0])
	},
}

func readSecret(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(cmd.ErrOrStderr(), "Value: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("reading secret: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	return strings.TrimSpace(line), nil
}
