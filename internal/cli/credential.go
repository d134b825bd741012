package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/mail-autoreply/internal/credential"
)

func newCredentialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Manage secrets in the system keyring",
		Long: `Manage secrets in the system keyring.

Known names: ` + strings.Join(credential.Names, ", ") + `

An environment variable with the upper-case name (GROQ_API_KEY, ...)
always takes precedence over the keyring.`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <name>",
			Short: "Store a secret read from stdin",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				name, err := knownName(args[0])
				if err != nil {
					return err
				}
				if isTerminal(os.Stdin) {
					fmt.Fprintf(cmd.ErrOrStderr(), "Value for %s: ", name)
				}
				value, err := readSecret(cmd.InOrStdin())
				if err != nil {
					return err
				}
				if err := credential.Set(name, value); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stored %s.\n", name)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <name>",
			Short: "Remove a secret from the keyring",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				name, err := knownName(args[0])
				if err != nil {
					return err
				}
				if err := credential.Delete(name); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", name)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "Show which secrets are available",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				out := cmd.OutOrStdout()
				for _, name := range credential.Names {
					fmt.Fprintf(out, "%-28s %s\n", name, credentialSource(name))
				}
				return nil
			},
		},
	)

	return cmd
}

func knownName(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if !credential.Known(name) {
		return "", fmt.Errorf("unknown credential %q: want one of %s", name, strings.Join(credential.Names, ", "))
	}
	return name, nil
}

// readSecret reads the first line of r. An empty value is an error.
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading value: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errors.New("empty value")
	}
	return line, nil
}

func credentialSource(name string) string {
	if strings.TrimSpace(os.Getenv(credential.EnvName(name))) != "" {
		return "environment"
	}
	if v, err := credential.Get(name); err == nil && v != "" {
		return "keyring"
	}
	return "missing"
}
