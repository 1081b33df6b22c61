// Package keydir maps agent addresses to their Ed25519 public keys.
package keydir

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"lovefi/agent-client/internal/codec"
	"lovefi/agent-client/internal/identity"
)

var (
	ErrUnknownAddress = errors.New("unknown agent address")
	ErrInvalidKey     = errors.New("invalid public key")
)

// Directory is safe for concurrent use.
type Directory struct {
	mu   sync.RWMutex
	keys map[string]ed25519.PublicKey
}

func New() *Directory {
	return &Directory{keys: make(map[string]ed25519.PublicKey)}
}

// Register derives the address from pub and stores the binding.
func (d *Directory) Register(pub ed25519.PublicKey) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("%w: size %d", ErrInvalidKey, len(pub))
	}
	address, err := identity.BuildAddress(pub)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[address] = append(ed25519.PublicKey(nil), pub...)
	return address, nil
}

// RegisterBase64 registers a key in the padded base64 form used in config.
func (d *Directory) RegisterBase64(encoded string) (string, error) {
	raw, err := codec.Base64Decode(strings.TrimSpace(encoded))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return d.Register(raw)
}

func (d *Directory) ResolvePublicKey(address string) (ed25519.PublicKey, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	pub, ok := d.keys[strings.TrimSpace(address)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAddress, address)
	}
	return append(ed25519.PublicKey(nil), pub...), nil
}

// Addresses returns the registered addresses in sorted order.
func (d *Directory) Addresses() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.keys))
	for address := range d.keys {
		out = append(out, address)
	}
	sort.Strings(out)
	return out
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.keys)
}

// FromBase64Keys builds a directory from a list of base64 public keys.
func FromBase64Keys(keys []string) (*Directory, error) {
	d := New()
	for i, key := range keys {
		if strings.TrimSpace(key) == "" {
			continue
		}
		if _, err := d.RegisterBase64(key); err != nil {
			return nil, fmt.Errorf("trusted key #%d: %w", i, err)
		}
	}
	return d, nil
}
