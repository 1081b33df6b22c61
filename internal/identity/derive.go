package identity

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

var (
	ErrInvalidSeed    = errors.New("invalid seed phrase")
	ErrIdentityInit   = errors.New("identity initialization failed")
	ErrInvalidAddress = errors.New("invalid agent address")
)

// DeriveIdentity expands the mnemonic with the BIP-39 PBKDF2 stretch (empty
// passphrase) and uses the first 32 bytes of the seed as the Ed25519 seed.
func DeriveIdentity(seedPhrase string) (*SigningIdentity, error) {
	mnemonic := NormalizeSeedPhrase(seedPhrase)
	if mnemonic == "" {
		return nil, fmt.Errorf("%w: seed phrase is empty", ErrInvalidSeed)
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	defer zeroBytes(seed)
	return FromSigningSeed(seed[:ed25519.SeedSize])
}

// FromSigningSeed derives the keypair and address from a raw 32-byte Ed25519 seed.
func FromSigningSeed(signingSeed []byte) (*SigningIdentity, error) {
	if len(signingSeed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: signing seed must be %d bytes, got %d", ErrIdentityInit, ed25519.SeedSize, len(signingSeed))
	}
	priv := ed25519.NewKeyFromSeed(signingSeed)
	pub := priv.Public().(ed25519.PublicKey)
	address, err := BuildAddress(pub)
	if err != nil {
		return nil, err
	}
	return &SigningIdentity{
		PublicKey: append(ed25519.PublicKey(nil), pub...),
		SecretKey: append(ed25519.PrivateKey(nil), priv...),
		Address:   address,
	}, nil
}

func NormalizeSeedPhrase(seedPhrase string) string {
	return strings.Join(strings.Fields(seedPhrase), " ")
}

func ValidateSeedPhrase(seedPhrase string) bool {
	return bip39.IsMnemonicValid(NormalizeSeedPhrase(seedPhrase))
}

// GenerateSeedPhrase returns a fresh 24-word mnemonic.
func GenerateSeedPhrase() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
