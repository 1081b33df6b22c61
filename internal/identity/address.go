package identity

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	"lovefi/agent-client/internal/codec"
)

const (
	AddressPrefix   = "agent1"
	AddressHashSize = 20
)

// BuildAddress is bech32(AddressPrefix, sha256(pub)[:20]). The address is a
// one-way commitment: the public key cannot be recovered from it.
func BuildAddress(publicKey []byte) (string, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return "", fmt.Errorf("%w: invalid signing public key size: %d", ErrIdentityInit, len(publicKey))
	}
	sum := sha256.Sum256(publicKey)
	address, err := codec.Bech32Encode(AddressPrefix, sum[:AddressHashSize])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIdentityInit, err)
	}
	return address, nil
}

func VerifyAddress(address string, publicKey []byte) (bool, error) {
	expected, err := BuildAddress(publicKey)
	if err != nil {
		return false, err
	}
	return address == expected, nil
}

// ParseAddress checks prefix, checksum and hash length, and returns the hash.
func ParseAddress(address string) ([]byte, error) {
	hrp, hash, err := codec.Bech32Decode(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if hrp != AddressPrefix {
		return nil, fmt.Errorf("%w: unexpected prefix %q", ErrInvalidAddress, hrp)
	}
	if len(hash) != AddressHashSize {
		return nil, fmt.Errorf("%w: hash must be %d bytes, got %d", ErrInvalidAddress, AddressHashSize, len(hash))
	}
	return hash, nil
}
