package identity

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"lovefi/agent-client/internal/securestore"
)

var (
	ErrSeedNotConfigured = errors.New("seed phrase is not configured")
	ErrPassphraseMissing = errors.New("sealed seed passphrase is not configured")
)

// SeedSource names where the seed phrase comes from. The first non-empty of
// Phrase, PhraseEnv and SealedFile wins.
type SeedSource struct {
	Phrase        string
	PhraseEnv     string
	SealedFile    string
	PassphraseEnv string
}

func (s SeedSource) Resolve() (string, error) {
	if phrase := NormalizeSeedPhrase(s.Phrase); phrase != "" {
		return phrase, nil
	}
	if name := strings.TrimSpace(s.PhraseEnv); name != "" {
		if phrase := NormalizeSeedPhrase(os.Getenv(name)); phrase != "" {
			return phrase, nil
		}
	}
	if path := strings.TrimSpace(s.SealedFile); path != "" {
		name := strings.TrimSpace(s.PassphraseEnv)
		if name == "" {
			return "", ErrPassphraseMissing
		}
		passphrase := os.Getenv(name)
		if passphrase == "" {
			return "", fmt.Errorf("%w: %s is empty", ErrPassphraseMissing, name)
		}
		return LoadSealedSeedPhrase(path, passphrase)
	}
	return "", ErrSeedNotConfigured
}

// Load resolves the phrase and derives the identity from it.
func (s SeedSource) Load() (*SigningIdentity, error) {
	phrase, err := s.Resolve()
	if err != nil {
		return nil, err
	}
	return DeriveIdentity(phrase)
}

// SealSeedPhrase validates the mnemonic before writing it encrypted to path.
func SealSeedPhrase(path, seedPhrase, passphrase string) error {
	mnemonic := NormalizeSeedPhrase(seedPhrase)
	if !ValidateSeedPhrase(mnemonic) {
		return ErrInvalidSeed
	}
	return securestore.WriteSealedFile(path, passphrase, []byte(mnemonic))
}

func LoadSealedSeedPhrase(path, passphrase string) (string, error) {
	plaintext, err := securestore.ReadSealedFile(path, passphrase)
	if err != nil {
		return "", err
	}
	defer zeroBytes(plaintext)
	mnemonic := NormalizeSeedPhrase(string(plaintext))
	if !ValidateSeedPhrase(mnemonic) {
		return "", fmt.Errorf("%w: corrupted sealed mnemonic", ErrInvalidSeed)
	}
	return mnemonic, nil
}
