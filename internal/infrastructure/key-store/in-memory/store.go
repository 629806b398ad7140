package keystore

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/vulpemventures/ocean-multisig/internal/core/ports"
)

var ErrLocked = fmt.Errorf("key store is locked")

type keyStore struct {
	masterKey string
	lock      *sync.RWMutex
}

// NewInMemoryKeyStore returns a key store that keeps the serialized master
// key in memory only.
func NewInMemoryKeyStore() ports.KeyStore {
	return &keyStore{
		lock: &sync.RWMutex{},
	}
}

func (s *keyStore) Set(masterKey *hdkeychain.ExtendedKey) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.masterKey = masterKey.String()
}

func (s *keyStore) Unset() {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.masterKey = ""
}

func (s *keyStore) IsSet() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return len(s.masterKey) > 0
}

// Get returns a fresh copy of the master key, so that callers can't alter the
// stored one.
func (s *keyStore) Get() (*hdkeychain.ExtendedKey, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if len(s.masterKey) <= 0 {
		return nil, ErrLocked
	}
	return hdkeychain.NewKeyFromString(s.masterKey)
}
