package testsupport

import (
	"context"
	"fmt"
	"sync"

	"github.com/krancour/secureimage/sdk/meta"
)

// SecretStore is an in-memory implementation of secrets.Store.
type SecretStore struct {
	mu     sync.Mutex
	values map[string]string
}

// NewSecretStore returns an empty SecretStore.
func NewSecretStore() *SecretStore {
	return &SecretStore{
		values: map[string]string{},
	}
}

func secretID(key, account string) string {
	return fmt.Sprintf("%s/%s", account, key)
}

func (s *SecretStore) Get(
	_ context.Context,
	key string,
	account string,
) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[secretID(key, account)]
	if !ok {
		return "", &meta.ErrNotFound{Type: "Secret", ID: secretID(key, account)}
	}
	return value, nil
}

func (s *SecretStore) Put(
	_ context.Context,
	key string,
	account string,
	value string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[secretID(key, account)] = value
	return nil
}
