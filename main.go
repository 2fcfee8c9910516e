package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dhcgn/imap-otp/cmd"
	"github.com/dhcgn/imap-otp/config"
	"github.com/dhcgn/imap-otp/credential"
	"github.com/dhcgn/imap-otp/extract"
	"github.com/dhcgn/imap-otp/imap"
	"github.com/dhcgn/imap-otp/mbox"
	"github.com/dhcgn/imap-otp/report"
	"github.com/dhcgn/imap-otp/runner"
)

const rootLong = "Search the mailbox for the newest email from --sender and print the verification\n" +
	"code that follows --phrase.\n\n" + report.OutputHelp

func main() {
	rootCmd := &cobra.Command{
		Use:           "imap-otp",
		Short:         "Print the verification code from the latest email of a sender",
		Long:          rootLong,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(c *cobra.Command, args []string) error {
			printer := report.New(c.OutOrStdout(), false)

			cfg, err := config.LoadConfig(c, keyringSecrets{})
			if err != nil {
				return cmd.Exit(printer.Error(err))
			}
			printer = report.New(c.OutOrStdout(), cfg.Pretty)

			logger, cleanup, err := cmd.SetupLogger(cfg, c.ErrOrStderr())
			if err != nil {
				return cmd.Exit(printer.Error(err))
			}
			defer func() {
				_ = cleanup()
			}()

			slog.SetDefault(logger)
			logger.Info("starting imap-otp", "source", source(cfg), "folder", cfg.Folder, "sender", cfg.Sender)

			res, err := run(c.Context(), cfg, logger)
			if err != nil {
				logger.Error("retrieval failed", "err", err)
			}
			return cmd.Exit(printer.Result(res, err))
		},
	}

	config.RegisterPersistentFlags(rootCmd)
	config.RegisterFlags(rootCmd)
	rootCmd.AddCommand(cmd.NewDecodeCommand())
	rootCmd.AddCommand(cmd.NewKeyringCommand(credential.Open))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		var exitErr *report.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(report.ExitFailure)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) (runner.Result, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	decoder, err := extract.New(extract.Options{Phrase: cfg.Phrase, Fallbacks: cfg.Fallbacks})
	if err != nil {
		return runner.Result{}, fmt.Errorf("extract.New: %w", err)
	}

	r, err := runner.New(runner.Options{Folder: cfg.Folder, Sender: cfg.Sender}, opener(cfg, logger), decoder, logger)
	if err != nil {
		return runner.Result{}, fmt.Errorf("runner.New: %w", err)
	}

	return r.Run(ctx)
}

func opener(cfg config.Config, logger *slog.Logger) runner.Opener {
	if cfg.MboxPath != "" {
		return func(ctx context.Context) (runner.Mailbox, error) {
			archive, err := mbox.Open(ctx, mbox.Options{Path: cfg.MboxPath}, logger)
			if err != nil {
				return nil, err
			}
			return archive, nil
		}
	}

	opts := imap.Options{
		Host:               cfg.IMAPHost,
		Port:               cfg.IMAPPort,
		Username:           cfg.IMAPUser,
		Password:           cfg.IMAPPass,
		UseTLS:             cfg.UseTLS,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	return func(ctx context.Context) (runner.Mailbox, error) {
		session, err := imap.Dial(ctx, opts, logger)
		if err != nil {
			return nil, err
		}
		return session, nil
	}
}

func source(cfg config.Config) string {
	if cfg.MboxPath != "" {
		return "mbox:" + cfg.MboxPath
	}
	return fmt.Sprintf("imap:%s@%s:%d", cfg.IMAPUser, cfg.IMAPHost, cfg.IMAPPort)
}

// keyringSecrets opens the OS keyring only when a lookup is needed.
type keyringSecrets struct{}

func (keyringSecrets) Password(user string) (string, error) {
	store, err := credential.Open()
	if err != nil {
		return "", err
	}
	return store.Password(user)
}
