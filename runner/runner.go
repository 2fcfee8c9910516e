package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dhcgn/imap-otp/extract"
	"github.com/dhcgn/imap-otp/model"
)

// Mailbox is the session contract shared by imap.Session and mbox.Archive.
type Mailbox interface {
	SelectFolder(ctx context.Context, name string) error
	SearchBySender(ctx context.Context, address string) ([]model.MessageID, error)
	FetchRaw(ctx context.Context, id model.MessageID) (model.Message, error)
	Close() error
}

// Opener connects to the mailbox. It is called once per Run.
type Opener func(ctx context.Context) (Mailbox, error)

type Status int

const (
	StatusFound Status = iota
	StatusNoMessages
	StatusNoCode
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusNoMessages:
		return "no-messages"
	case StatusNoCode:
		return "no-code"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the outcome of a retrieval that did not fail. Code is only meaningful
// when Status is StatusFound.
type Result struct {
	Status    Status
	MessageID model.MessageID
	Code      extract.Code
}

type Options struct {
	Folder string
	Sender string
}

type Runner struct {
	opts    Options
	open    Opener
	decoder *extract.Decoder
	logger  *slog.Logger
}

func New(opts Options, open Opener, decoder *extract.Decoder, logger *slog.Logger) (*Runner, error) {
	opts.Folder = strings.TrimSpace(opts.Folder)
	opts.Sender = strings.TrimSpace(opts.Sender)

	switch {
	case opts.Folder == "":
		return nil, errors.New("runner: folder is empty")
	case opts.Sender == "":
		return nil, errors.New("runner: sender is empty")
	case open == nil:
		return nil, errors.New("runner: opener is nil")
	case decoder == nil:
		return nil, errors.New("runner: decoder is nil")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Runner{opts: opts, open: open, decoder: decoder, logger: logger}, nil
}

// Run performs one retrieval: open, select, search, fetch the latest match, decode.
// Once the mailbox is open it is closed exactly once, whatever the outcome.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	mailbox, err := r.open(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("open mailbox: %w", err)
	}
	defer func() {
		if err := mailbox.Close(); err != nil {
			r.logger.Warn("closing mailbox failed", "err", err)
		}
	}()

	if err := mailbox.SelectFolder(ctx, r.opts.Folder); err != nil {
		return Result{}, err
	}

	ids, err := mailbox.SearchBySender(ctx, r.opts.Sender)
	if err != nil {
		return Result{}, err
	}
	r.logger.Debug("search finished", "folder", r.opts.Folder, "sender", r.opts.Sender, "matches", len(ids))

	if len(ids) == 0 {
		r.logger.Info("no messages from sender", "sender", r.opts.Sender)
		return Result{Status: StatusNoMessages}, nil
	}

	latest := ids[len(ids)-1]
	msg, err := mailbox.FetchRaw(ctx, latest)
	if err != nil {
		return Result{}, err
	}

	return Evaluate(r.decoder, msg, r.logger), nil
}

// Evaluate runs the decoder over one raw message.
func Evaluate(decoder *extract.Decoder, msg model.Message, logger *slog.Logger) Result {
	parsed := extract.Parse(msg.Raw)
	body := decoder.ExtractBody(parsed)

	code, ok := decoder.ExtractCode(body)
	if !ok {
		if logger != nil {
			logger.Info("no code in message", "id", msg.ID, "parts", len(parsed.Parts), "bodyLength", len(body))
		}
		return Result{Status: StatusNoCode, MessageID: msg.ID}
	}

	if logger != nil {
		logger.Debug("code extracted", "id", msg.ID, "digits", len(code.Digits))
	}
	return Result{Status: StatusFound, MessageID: msg.ID, Code: code}
}
