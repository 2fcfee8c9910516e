package model

import "errors"

// MessageID identifies one message inside the selected folder: an IMAP UID, or the
// 1-based position of a message inside an mbox archive.
type MessageID uint32

// Message is the raw RFC 5322 content of a single fetched email.
type Message struct {
	ID  MessageID
	Raw []byte
}

// Mailbox failure kinds shared by every mailbox implementation. Implementations wrap
// them with context so callers can classify with errors.Is.
var (
	ErrConnection     = errors.New("mailbox connection failed")
	ErrAuthentication = errors.New("mailbox authentication failed")
	ErrFolder         = errors.New("mailbox folder unavailable")
	ErrSearch         = errors.New("mailbox search failed")
	ErrFetch          = errors.New("mailbox fetch failed")
)
