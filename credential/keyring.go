package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "imap-otp"

// ErrNotFound is returned when no password is stored for the requested user.
var ErrNotFound = errors.New("credential not found")

// Store keeps IMAP app passwords keyed by username.
type Store struct {
	ring keyring.Keyring
}

// Open returns a Store backed by the operating system keyring.
func Open() (*Store, error) {
	ring, err := keyring.Open(ringConfig())
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return New(ring), nil
}

// ringConfig prefers the native OS stores. The encrypted file fallback asks for its
// passphrase on the terminal.
func ringConfig() keyring.Config {
	return keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/imap-otp/credentials",
		FilePasswordFunc:         keyring.TerminalPrompt,
		KeychainTrustApplication: true,
	}
}

// New wraps an already opened keyring.
func New(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// Password returns the stored password for user.
func (s *Store) Password(user string) (string, error) {
	if user == "" {
		return "", fmt.Errorf("keyring lookup: username is empty")
	}

	item, err := s.ring.Get(user)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("keyring lookup for %q: %w", user, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("keyring lookup for %q: %w", user, err)
	}

	return string(item.Data), nil
}

// SetPassword stores password for user, replacing any previous entry.
func (s *Store) SetPassword(user, password string) error {
	if user == "" {
		return fmt.Errorf("keyring store: username is empty")
	}
	if password == "" {
		return fmt.Errorf("keyring store for %q: password is empty", user)
	}

	err := s.ring.Set(keyring.Item{
		Key:         user,
		Data:        []byte(password),
		Label:       serviceName + " " + user,
		Description: "IMAP app password",
	})
	if err != nil {
		return fmt.Errorf("keyring store for %q: %w", user, err)
	}
	return nil
}

// Delete removes the entry for user.
func (s *Store) Delete(user string) error {
	err := s.ring.Remove(user)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("keyring delete for %q: %w", user, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("keyring delete for %q: %w", user, err)
	}
	return nil
}
