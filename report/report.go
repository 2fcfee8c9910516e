package report

import (
	"errors"
	"fmt"
	"io"

	"github.com/pterm/pterm"

	"github.com/dhcgn/imap-otp/config"
	"github.com/dhcgn/imap-otp/extract"
	"github.com/dhcgn/imap-otp/model"
	"github.com/dhcgn/imap-otp/runner"
)

// Process exit codes, one per outcome.
const (
	ExitFound          = 0
	ExitFailure        = 1
	ExitConfig         = 2
	ExitNoMessages     = 3
	ExitFetchFailed    = 4
	ExitNoCode         = 5
	ExitConnection     = 6
	ExitAuthentication = 7
)

const (
	msgNoMessages  = "No emails found from that sender."
	msgFetchFailed = "Failed to fetch email."
	msgNoCode      = "No code found in the email."
)

// OutputHelp describes the result line and exit codes for command help.
const OutputHelp = `On success the code is printed exactly as it appears in the email, leading zeros
included (a code of 012345 prints as 012345, not 12345).

Exit codes:
  0  code found
  1  unexpected failure
  2  configuration error
  3  no email from the sender
  4  fetching the email failed
  5  no code in the email
  6  mailbox connection failed
  7  mailbox authentication failed`

// ExitError carries an exit code through cobra back to main after the outcome was
// already printed.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Printer writes the one user-facing line of an invocation.
type Printer struct {
	w      io.Writer
	styled bool
}

// New returns a Printer writing to w. Styled output uses pterm prefixes.
func New(w io.Writer, styled bool) *Printer {
	return &Printer{w: w, styled: styled}
}

// Result prints the outcome of a retrieval and returns its exit code.
func (p *Printer) Result(res runner.Result, err error) int {
	if err != nil {
		return p.Error(err)
	}

	switch res.Status {
	case runner.StatusFound:
		if p.styled {
			pterm.Success.WithWriter(p.w).Println("Extracted code: " + res.Code.String())
		} else {
			fmt.Fprintln(p.w, res.Code.String())
		}
		return ExitFound
	case runner.StatusNoMessages:
		p.warn(msgNoMessages)
		return ExitNoMessages
	case runner.StatusNoCode:
		p.warn(msgNoCode)
		return ExitNoCode
	default:
		return p.Error(fmt.Errorf("unknown result status %v", res.Status))
	}
}

// Error prints a failure and returns the exit code for its kind.
func (p *Printer) Error(err error) int {
	code := Classify(err)

	var line string
	switch code {
	case ExitConfig:
		line = "Configuration error: " + err.Error()
	case ExitAuthentication:
		line = "Authentication failed: " + err.Error()
	case ExitConnection:
		line = "Connection failed: " + err.Error()
	case ExitFetchFailed:
		line = msgFetchFailed
	default:
		line = "Error: " + err.Error()
	}

	if p.styled {
		pterm.Error.WithWriter(p.w).Println(line)
	} else {
		fmt.Fprintln(p.w, line)
	}
	return code
}

// Classify maps an error to its exit code.
func Classify(err error) int {
	switch {
	case err == nil:
		return ExitFound
	case errors.Is(err, config.ErrConfig),
		errors.Is(err, extract.ErrEmptyPhrase),
		errors.Is(err, extract.ErrUnknownCharset):
		return ExitConfig
	case errors.Is(err, model.ErrAuthentication):
		return ExitAuthentication
	case errors.Is(err, model.ErrConnection):
		return ExitConnection
	case errors.Is(err, model.ErrFetch):
		return ExitFetchFailed
	default:
		return ExitFailure
	}
}

func (p *Printer) warn(line string) {
	if p.styled {
		pterm.Warning.WithWriter(p.w).Println(line)
		return
	}
	fmt.Fprintln(p.w, line)
}
