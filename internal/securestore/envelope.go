package securestore

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	sealVersion   = 1
	saltSize      = 16
	kdfName       = "argon2id"
	kdfTime       = uint32(2)
	kdfMemoryKB   = uint32(64 * 1024)
	kdfThreads    = uint8(1)
	sealedPrefix  = "LOVEFI-SEALED1\n"
	minPassphrase = 8

	maxKDFTime     = uint32(16)
	maxKDFMemoryKB = uint32(1024 * 1024)
	maxKDFThreads  = uint8(16)
)

var (
	ErrAuthFailed     = errors.New("securestore authentication failed")
	ErrInvalid        = errors.New("securestore sealed data is invalid")
	ErrWeakPassphrase = errors.New("securestore passphrase is too short")
)

// Sealed is the on-disk JSON body that follows sealedPrefix.
type Sealed struct {
	Version     uint32 `json:"version"`
	KDF         string `json:"kdf"`
	KDFTime     uint32 `json:"kdf_time"`
	KDFMemoryKB uint32 `json:"kdf_memory_kb"`
	KDFThreads  uint8  `json:"kdf_threads"`
	Salt        []byte `json:"salt"`
	Nonce       []byte `json:"nonce"`
	Ciphertext  []byte `json:"ciphertext"`
}

// Seal encrypts plaintext under a passphrase-derived XChaCha20-Poly1305 key.
func Seal(passphrase string, plaintext []byte) ([]byte, error) {
	if len(passphrase) < minPassphrase {
		return nil, fmt.Errorf("%w: need at least %d characters", ErrWeakPassphrase, minPassphrase)
	}
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key := deriveKey(passphrase, salt, kdfTime, kdfMemoryKB, kdfThreads)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	sealed := Sealed{
		Version:     sealVersion,
		KDF:         kdfName,
		KDFTime:     kdfTime,
		KDFMemoryKB: kdfMemoryKB,
		KDFThreads:  kdfThreads,
		Salt:        salt,
		Nonce:       nonce,
		Ciphertext:  aead.Seal(nil, nonce, plaintext, []byte(sealedPrefix)),
	}
	raw, err := json.Marshal(sealed)
	if err != nil {
		return nil, err
	}
	return append([]byte(sealedPrefix), raw...), nil
}

func Open(passphrase string, data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, []byte(sealedPrefix)) {
		return nil, fmt.Errorf("%w: missing header", ErrInvalid)
	}
	var sealed Sealed
	if err := json.Unmarshal(data[len(sealedPrefix):], &sealed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if sealed.Version != sealVersion || sealed.KDF != kdfName {
		return nil, fmt.Errorf("%w: unsupported version %d/%s", ErrInvalid, sealed.Version, sealed.KDF)
	}
	if len(sealed.Salt) != saltSize || len(sealed.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, ErrInvalid
	}
	if err := checkKDFParams(sealed); err != nil {
		return nil, err
	}
	key := deriveKey(passphrase, sealed.Salt, sealed.KDFTime, sealed.KDFMemoryKB, sealed.KDFThreads)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, sealed.Nonce, sealed.Ciphertext, []byte(sealedPrefix))
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// checkKDFParams bounds the Argon2 cost read from the file before it reaches
// argon2.IDKey, which panics on zero rounds and allocates memoryKB up front.
func checkKDFParams(sealed Sealed) error {
	if sealed.KDFTime == 0 || sealed.KDFTime > maxKDFTime {
		return fmt.Errorf("%w: kdf time %d out of range", ErrInvalid, sealed.KDFTime)
	}
	if sealed.KDFThreads == 0 || sealed.KDFThreads > maxKDFThreads {
		return fmt.Errorf("%w: kdf threads %d out of range", ErrInvalid, sealed.KDFThreads)
	}
	if sealed.KDFMemoryKB < 8*uint32(sealed.KDFThreads) || sealed.KDFMemoryKB > maxKDFMemoryKB {
		return fmt.Errorf("%w: kdf memory %d KiB out of range", ErrInvalid, sealed.KDFMemoryKB)
	}
	return nil
}

func deriveKey(passphrase string, salt []byte, time, memoryKB uint32, threads uint8) []byte {
	return argon2.IDKey([]byte(passphrase), salt, time, memoryKB, threads, chacha20poly1305.KeySize)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
