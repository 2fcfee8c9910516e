package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dhcgn/imap-otp/config"
	"github.com/dhcgn/imap-otp/credential"
	"github.com/dhcgn/imap-otp/report"
)

// StoreOpener returns the credential store the keyring commands work on.
type StoreOpener func() (*credential.Store, error)

// NewKeyringCommand returns the command group that manages the stored app password.
func NewKeyringCommand(open StoreOpener) *cobra.Command {
	keyringCmd := &cobra.Command{
		Use:   "keyring",
		Short: "Manage the IMAP password stored in the OS keyring",
	}
	keyringCmd.PersistentFlags().String("imap-user", "", "IMAP username the password belongs to (falls back to IMAP_USER or GMAIL_USERNAME)")

	keyringCmd.AddCommand(&cobra.Command{
		Use:   "set",
		Short: "Store the password, read from the terminal or the first line of stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runKeyring(cmd, open, func(store *credential.Store, user string) (string, error) {
				password, err := readPassword(cmd)
				if err != nil {
					return "", err
				}
				if err := store.SetPassword(user, password); err != nil {
					return "", err
				}
				return "Stored password for " + user, nil
			})
		},
	})

	keyringCmd.AddCommand(&cobra.Command{
		Use:   "delete",
		Short: "Remove the stored password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runKeyring(cmd, open, func(store *credential.Store, user string) (string, error) {
				if err := store.Delete(user); err != nil {
					return "", err
				}
				return "Removed password for " + user, nil
			})
		},
	})

	return keyringCmd
}

func runKeyring(cmd *cobra.Command, open StoreOpener, action func(*credential.Store, string) (string, error)) error {
	printer := report.New(cmd.OutOrStdout(), false)

	cfg, err := config.LoadConfig(cmd, nil)
	if err != nil {
		return Exit(printer.Error(err))
	}
	printer = report.New(cmd.OutOrStdout(), cfg.Pretty)

	if cfg.IMAPUser == "" {
		return Exit(printer.Error(fmt.Errorf("%w: --imap-user is required", config.ErrConfig)))
	}

	store, err := open()
	if err != nil {
		return Exit(printer.Error(err))
	}

	msg, err := action(store, cfg.IMAPUser)
	if err != nil {
		return Exit(printer.Error(err))
	}

	if cfg.Pretty {
		pterm.Success.WithWriter(cmd.OutOrStdout()).Println(msg)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), msg)
	}
	return nil
}

// readPassword prompts without echo on a terminal and otherwise takes the first line
// of stdin.
func readPassword(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	if file, ok := in.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "IMAP password: ")
		password, err := term.ReadPassword(int(file.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(password), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
