package mbox

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	mboxlib "github.com/emersion/go-mbox"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"github.com/dhcgn/imap-otp/model"
)

// Folder is the only folder an archive exposes.
const Folder = "INBOX"

type Options struct {
	Path string
}

// Archive serves a local mbox export through the same calls as an IMAP session.
// Message IDs are 1-based positions in file order.
type Archive struct {
	path     string
	logger   *slog.Logger
	messages [][]byte
	selected bool
	closed   bool
}

// Open reads every message of the archive into memory.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Archive, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, fmt.Errorf("mbox path is empty: %w", model.ErrConnection)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mbox: %w: %w", model.ErrConnection, err)
	}
	defer file.Close()

	messages, err := readAll(ctx, mboxlib.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("read mbox %s: %w: %w", path, model.ErrConnection, err)
	}

	if logger != nil {
		logger.Debug("mbox archive loaded", "path", path, "messages", len(messages))
	}

	return &Archive{path: path, logger: logger, messages: messages}, nil
}

func readAll(ctx context.Context, reader *mboxlib.Reader) ([][]byte, error) {
	var messages [][]byte
	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		msgReader, err := reader.NextMessage()
		if errors.Is(err, io.EOF) {
			return messages, nil
		}
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", idx, err)
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			return nil, fmt.Errorf("message %d read: %w", idx, err)
		}
		messages = append(messages, raw)
	}
}

func (a *Archive) SelectFolder(ctx context.Context, name string) error {
	if err := a.usable(ctx); err != nil {
		return err
	}
	if !strings.EqualFold(strings.TrimSpace(name), Folder) {
		return fmt.Errorf("select %s: %w: an mbox archive only has %s", name, model.ErrFolder, Folder)
	}
	a.selected = true
	return nil
}

// SearchBySender matches address case-insensitively against the From header, like an
// IMAP SEARCH FROM.
func (a *Archive) SearchBySender(ctx context.Context, address string) ([]model.MessageID, error) {
	if err := a.usable(ctx); err != nil {
		return nil, err
	}
	if !a.selected {
		return nil, fmt.Errorf("search from %s: %w: no folder selected", address, model.ErrSearch)
	}
	needle := strings.ToLower(strings.TrimSpace(address))
	if needle == "" {
		return nil, fmt.Errorf("search: %w: sender is empty", model.ErrSearch)
	}

	ids := make([]model.MessageID, 0)
	for idx, raw := range a.messages {
		if strings.Contains(strings.ToLower(fromHeader(raw)), needle) {
			ids = append(ids, model.MessageID(idx+1))
		}
	}

	if a.logger != nil {
		a.logger.Debug("mbox search finished", "from", address, "matches", len(ids))
	}
	return ids, nil
}

func (a *Archive) FetchRaw(ctx context.Context, id model.MessageID) (model.Message, error) {
	if err := a.usable(ctx); err != nil {
		return model.Message{}, err
	}
	if id == 0 || int(id) > len(a.messages) {
		return model.Message{}, fmt.Errorf("fetch message %d: %w: archive holds %d messages", id, model.ErrFetch, len(a.messages))
	}

	raw := a.messages[id-1]
	return model.Message{ID: id, Raw: bytes.Clone(raw)}, nil
}

// Close releases the loaded messages. It is safe to call more than once.
func (a *Archive) Close() error {
	a.closed = true
	a.messages = nil
	return nil
}

func (a *Archive) usable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.closed {
		return fmt.Errorf("mbox %s: %w: archive closed", a.path, model.ErrConnection)
	}
	return nil
}

// fromHeader returns the decoded From header, or its raw value when decoding fails.
func fromHeader(raw []byte) string {
	header, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return ""
	}
	h := mail.Header{Header: message.Header{Header: header}}
	if from, err := h.Text("From"); err == nil {
		return from
	}
	return h.Get("From")
}
