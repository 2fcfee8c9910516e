package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/dhcgn/imap-otp/model"
)

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
}

// Session is an authenticated IMAP connection. It is not safe for concurrent use.
type Session struct {
	client    *imapclient.Client
	logger    *slog.Logger
	address   string
	stopClose func() bool
	closeOnce sync.Once
	closeErr  error
}

// Dial connects to the server and logs in. The session stays bound to ctx: once ctx is
// done the connection is torn down and pending commands fail.
func Dial(ctx context.Context, opts Options, logger *slog.Logger) (*Session, error) {
	if err := validate(opts); err != nil {
		return nil, err
	}

	address := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	conn, err := dialConn(ctx, address, opts)
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w: %w", address, model.ErrConnection, err)
	}

	client := imapclient.New(conn, &imapclient.Options{})
	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	if err := client.Login(opts.Username, opts.Password).Wait(); err != nil {
		stopClose()
		_ = client.Close()
		return nil, classifyLogin(opts.Username, err)
	}

	if logger != nil {
		logger.Debug("imap connection established", "address", address, "user", opts.Username, "tls", opts.UseTLS)
	}

	return &Session{
		client:    client,
		logger:    logger,
		address:   address,
		stopClose: stopClose,
	}, nil
}

func validate(opts Options) error {
	if opts.Host == "" {
		return fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 || opts.Port > 65535 {
		return fmt.Errorf("imap port must be between 1 and 65535")
	}
	return nil
}

func dialConn(ctx context.Context, address string, opts Options) (net.Conn, error) {
	if !opts.UseTLS {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", address)
	}

	d := &tls.Dialer{
		Config: &tls.Config{
			ServerName:         opts.Host,
			InsecureSkipVerify: opts.InsecureSkipVerify,
		},
	}
	return d.DialContext(ctx, "tcp", address)
}

// classifyLogin separates a server refusal (tagged NO/BAD) from a broken transport.
func classifyLogin(user string, err error) error {
	var respErr *imapv2.Error
	if errors.As(err, &respErr) {
		return fmt.Errorf("imap login as %s: %w: %w", user, model.ErrAuthentication, err)
	}
	return fmt.Errorf("imap login as %s: %w: %w", user, model.ErrConnection, err)
}

// SelectFolder opens the folder read-only.
func (s *Session) SelectFolder(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := s.client.Select(name, &imapv2.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return fmt.Errorf("select %s: %w: %w", name, model.ErrFolder, err)
	}

	if s.logger != nil {
		s.logger.Debug("imap folder selected", "folder", name, "messages", data.NumMessages)
	}
	return nil
}

// SearchBySender returns the UIDs of messages whose From header contains address, in
// the order the server reports them.
func (s *Session) SearchBySender(ctx context.Context, address string) ([]model.MessageID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := s.client.UIDSearch(senderCriteria(address), nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("search from %s: %w: %w", address, model.ErrSearch, err)
	}

	uids := data.AllUIDs()
	ids := make([]model.MessageID, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, model.MessageID(uid))
	}

	if s.logger != nil {
		s.logger.Debug("imap search finished", "from", address, "matches", len(ids))
	}
	return ids, nil
}

func senderCriteria(address string) *imapv2.SearchCriteria {
	return &imapv2.SearchCriteria{
		Header: []imapv2.SearchCriteriaHeaderField{{Key: "From", Value: address}},
	}
}

// FetchRaw downloads the complete message without setting \Seen.
func (s *Session) FetchRaw(ctx context.Context, id model.MessageID) (model.Message, error) {
	if err := ctx.Err(); err != nil {
		return model.Message{}, err
	}

	section := &imapv2.FetchItemBodySection{Peek: true}
	fetchCmd := s.client.Fetch(imapv2.UIDSetNum(imapv2.UID(id)), &imapv2.FetchOptions{
		UID:         true,
		BodySection: []*imapv2.FetchItemBodySection{section},
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		if err := fetchCmd.Close(); err != nil {
			return model.Message{}, fmt.Errorf("fetch uid %d: %w: %w", id, model.ErrFetch, err)
		}
		return model.Message{}, fmt.Errorf("fetch uid %d: %w: message not found", id, model.ErrFetch)
	}

	buf, err := msg.Collect()
	if err != nil {
		return model.Message{}, fmt.Errorf("fetch uid %d: %w: %w", id, model.ErrFetch, err)
	}
	if err := fetchCmd.Close(); err != nil {
		return model.Message{}, fmt.Errorf("fetch uid %d: %w: %w", id, model.ErrFetch, err)
	}

	raw := buf.FindBodySection(section)
	if raw == nil {
		return model.Message{}, fmt.Errorf("fetch uid %d: %w: body section missing", id, model.ErrFetch)
	}

	if s.logger != nil {
		s.logger.Debug("imap message fetched", "uid", id, "size", len(raw))
	}
	return model.Message{ID: id, Raw: raw}, nil
}

// Close logs out and closes the connection. Calls after the first return its result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		detached := s.stopClose()
		if detached {
			if err := s.client.Logout().Wait(); err != nil && s.logger != nil {
				s.logger.Warn("imap logout failed", "err", err)
			}
		}
		if err := s.client.Close(); err != nil && detached {
			s.closeErr = fmt.Errorf("close imap %s: %w", s.address, err)
		}
	})
	return s.closeErr
}
