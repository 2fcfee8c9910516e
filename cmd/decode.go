package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dhcgn/imap-otp/config"
	"github.com/dhcgn/imap-otp/extract"
	"github.com/dhcgn/imap-otp/model"
	"github.com/dhcgn/imap-otp/report"
	"github.com/dhcgn/imap-otp/runner"
)

const decodeLong = "Extract the verification code from a raw .eml file, or from stdin when the\n" +
	"argument is - or missing.\n\n" + report.OutputHelp

// NewDecodeCommand returns the command that extracts the code from a saved message.
func NewDecodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "decode [file|-]",
		Short: "Extract the verification code from a raw .eml file or stdin",
		Long:  decodeLong,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			printer := report.New(cmd.OutOrStdout(), false)

			cfg, err := config.LoadConfig(cmd, nil)
			if err != nil {
				return Exit(printer.Error(err))
			}
			printer = report.New(cmd.OutOrStdout(), cfg.Pretty)

			logger, cleanup, err := SetupLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return Exit(printer.Error(err))
			}
			defer func() {
				_ = cleanup()
			}()

			decoder, err := extract.New(extract.Options{Phrase: cfg.Phrase, Fallbacks: cfg.Fallbacks})
			if err != nil {
				return Exit(printer.Error(err))
			}

			source := "-"
			if len(args) == 1 {
				source = args[0]
			}
			raw, err := readSource(cmd, source)
			if err != nil {
				return Exit(printer.Error(err))
			}
			logger.Debug("decoding message", "source", source, "size", len(raw))

			res := runner.Evaluate(decoder, model.Message{Raw: raw}, logger)
			return Exit(printer.Result(res, nil))
		},
	}
}

func readSource(cmd *cobra.Command, source string) ([]byte, error) {
	if source == "-" {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return raw, nil
	}

	raw, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("read message: %w", err)
	}
	return raw, nil
}

// Exit converts a printed outcome into the error cobra hands back to main.
func Exit(code int) error {
	if code == report.ExitFound {
		return nil
	}
	return &report.ExitError{Code: code}
}
