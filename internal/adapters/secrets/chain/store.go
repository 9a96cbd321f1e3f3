// Package chain reads credentials from the first store that has them and keeps the others in step.
package chain

import (
	"context"
	"errors"
	"fmt"

	filestore "github.com/bnema/outreach-pool/internal/adapters/secrets/file"
	passstore "github.com/bnema/outreach-pool/internal/adapters/secrets/pass"
	"github.com/bnema/outreach-pool/internal/domain"
	"github.com/bnema/outreach-pool/internal/ports"
)

type Store struct {
	stores []ports.CredentialStore
}

var _ ports.CredentialStore = (*Store)(nil)

var errNoStores = errors.New("credential chain needs at least one store")

func NewStore(stores ...ports.CredentialStore) (*Store, error) {
	if len(stores) == 0 {
		return nil, errNoStores
	}
	for i, store := range stores {
		if store == nil {
			return nil, fmt.Errorf("credential store %d is nil", i)
		}
	}

	return &Store{stores: stores}, nil
}

// NewPassFirstWithFileFallback prefers the password-store and falls back to files under fileRoot
// when pass is missing or failing.
func NewPassFirstWithFileFallback(fileRoot string) (*Store, error) {
	return NewStore(passstore.NewStore(), filestore.NewStore(fileRoot))
}

// Put writes to the first store that accepts the credential.
func (s *Store) Put(ctx context.Context, ref string, value string) error {
	var errs []error
	for _, store := range s.stores {
		err := store.Put(ctx, ref, value)
		if err == nil {
			return nil
		}
		if stopChain(err) {
			return err
		}
		errs = append(errs, err)
	}

	return fmt.Errorf("put credential: %w", errors.Join(errs...))
}

// Get returns ErrSecretNotFound only when no store could serve the ref and at least one reported it missing.
func (s *Store) Get(ctx context.Context, ref string) (string, error) {
	var errs []error
	for _, store := range s.stores {
		value, err := store.Get(ctx, ref)
		if err == nil {
			return value, nil
		}
		if stopChain(err) {
			return "", err
		}
		errs = append(errs, err)
	}

	return "", fmt.Errorf("get credential: %w", errors.Join(errs...))
}

// Delete removes the ref from every store so a stale copy never shadows a later Put.
func (s *Store) Delete(ctx context.Context, ref string) error {
	var errs []error
	for _, store := range s.stores {
		err := store.Delete(ctx, ref)
		if err == nil || errors.Is(err, domain.ErrSecretNotFound) {
			continue
		}
		if stopChain(err) {
			return err
		}
		errs = append(errs, err)
	}
	if len(errs) == len(s.stores) {
		return fmt.Errorf("delete credential: %w", errors.Join(errs...))
	}

	return nil
}

func stopChain(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
