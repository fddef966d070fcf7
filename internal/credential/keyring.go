package credential

import (
	"fmt"

	"github.com/99designs/keyring"

	"github.com/sdis/opsdash/internal/model"
)

const serviceName = "opsdash"

// Store reads and writes secrets such as the mailbox password.
type Store struct {
	ring keyring.Keyring
}

// NewStore wraps an already opened keyring.
func NewStore(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// Open returns a Store backed by the system keyring, falling back to an
// encrypted file on hosts without a desktop secret service.
func Open() (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/opsdash/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("opsdash-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return NewStore(ring), nil
}

// Get retrieves a credential value by key.
func (s *Store) Get(key string) (string, error) {
	item, err := s.ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential value by key.
func (s *Store) Set(key, value string) error {
	err := s.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: "opsdash " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential by key.
func (s *Store) Delete(key string) error {
	if err := s.ring.Remove(key); err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

// ResolveMailboxPassword fills cfg.Password from the keyring when it is
// empty and a password key is configured. An explicit password wins.
func ResolveMailboxPassword(cfg *model.MailboxConfig, s *Store) error {
	if cfg.Password != "" || cfg.PasswordKey == "" {
		return nil
	}
	password, err := s.Get(cfg.PasswordKey)
	if err != nil {
		return fmt.Errorf("resolving mailbox password: %w", err)
	}
	cfg.Password = password
	return nil
}
