package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringStore keeps the current token record in OS-native credential storage
// (macOS Keychain, Windows Credential Manager, Linux Secret Service). The
// stored value is the same flattened JSON payload the file backend uses.
type KeyringStore struct {
	service string
	user    string
}

// Compile-time check to ensure KeyringStore implements Store
var _ Store = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore using the given service and user
// identifiers.
func NewKeyringStore(service, user string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}

	return &KeyringStore{
		service: service,
		user:    user,
	}, nil
}

// Save overwrites the stored record.
func (k *KeyringStore) Save(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := encodePayload(rec)
	if err != nil {
		return err
	}
	return keyring.Set(k.service, k.user, string(payload))
}

// LoadLatest returns the stored record, or ErrNoToken when nothing has been
// stored under this service/user yet.
func (k *KeyringStore) LoadLatest(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	payload, err := keyring.Get(k.service, k.user)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return Record{}, ErrNoToken
		}
		return Record{}, err
	}
	return decodePayload([]byte(payload))
}
