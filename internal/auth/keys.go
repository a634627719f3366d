package auth

import (
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
)

// KeyStore manages HS256 signing keys by issuer and kid
type KeyStore struct {
	mu        sync.RWMutex
	hs256Keys map[string]map[string][]byte // issuer -> kid -> secret
}

// NewKeyStore creates a new KeyStore
func NewKeyStore() *KeyStore {
	return &KeyStore{
		hs256Keys: make(map[string]map[string][]byte),
	}
}

// LoadHS256Key adds an HS256 secret key for an issuer and kid
func (ks *KeyStore) LoadHS256Key(issuer, kid string, secret []byte) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if _, ok := ks.hs256Keys[issuer]; !ok {
		ks.hs256Keys[issuer] = make(map[string][]byte)
	}
	ks.hs256Keys[issuer][kid] = secret
}

// LoadHS256KeyBase64 decodes a base64 secret (standard or URL alphabet) and
// adds it for an issuer and kid.
func (ks *KeyStore) LoadHS256KeyBase64(issuer, kid, encoded string) error {
	encoded = strings.TrimSpace(encoded)
	secret, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		secret, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
		if err != nil {
			return fmt.Errorf("failed to decode HS256 secret: %w", err)
		}
	}
	if len(secret) < 16 {
		return fmt.Errorf("HS256 secret must be at least 16 bytes, got %d", len(secret))
	}
	ks.LoadHS256Key(issuer, kid, secret)
	return nil
}

// GetHS256Key retrieves an HS256 secret for an issuer and kid
func (ks *KeyStore) GetHS256Key(issuer, kid string) ([]byte, bool) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	if keys, ok := ks.hs256Keys[issuer]; ok {
		if secret, ok := keys[kid]; ok {
			return secret, true
		}
	}
	return nil, false
}
