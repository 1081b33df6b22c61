package identity

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

const goldenMnemonic = "test test test test test test test test test test test junk"

func TestDeriveIdentityGoldenVector(t *testing.T) {
	id, err := DeriveIdentity(goldenMnemonic)
	if err != nil {
		t.Fatalf("derive identity failed: %v", err)
	}
	if got := hex.EncodeToString(id.PublicKey); got != "e1235cf3d30ae8195bc44dcb5d7afe7d233cdcc0c2250d706180f09f7f64665a" {
		t.Fatalf("unexpected public key %s", got)
	}
	if id.Address != "agent11fzwj4mpq6dn97l9g50yn0ycez25fegk6q4qmrj" {
		t.Fatalf("unexpected address %s", id.Address)
	}
}

func TestDeriveIdentityDeterministic(t *testing.T) {
	a, err := DeriveIdentity(goldenMnemonic)
	if err != nil {
		t.Fatalf("derive identity 1 failed: %v", err)
	}
	b, err := DeriveIdentity(goldenMnemonic)
	if err != nil {
		t.Fatalf("derive identity 2 failed: %v", err)
	}
	if !bytes.Equal(a.PublicKey, b.PublicKey) || !bytes.Equal(a.SecretKey, b.SecretKey) || a.Address != b.Address {
		t.Fatal("same seed phrase must yield the same identity")
	}
	if len(a.PublicKey) != 32 || len(a.SecretKey) != 64 {
		t.Fatalf("unexpected key sizes %d/%d", len(a.PublicKey), len(a.SecretKey))
	}
}

func TestDeriveIdentityNormalizesWhitespace(t *testing.T) {
	a, err := DeriveIdentity(goldenMnemonic)
	if err != nil {
		t.Fatalf("derive identity failed: %v", err)
	}
	b, err := DeriveIdentity("  " + strings.ReplaceAll(goldenMnemonic, " ", "\t ") + "\n")
	if err != nil {
		t.Fatalf("derive identity with padded phrase failed: %v", err)
	}
	if a.Address != b.Address {
		t.Fatal("whitespace differences must not change the identity")
	}
}

func TestDeriveIdentityRejectsInvalidPhrases(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"your_client_seed_phrase_replace_with_secure_seed",
		"test test test test test test test test test test test test",
	}
	for _, phrase := range cases {
		if _, err := DeriveIdentity(phrase); !errors.Is(err, ErrInvalidSeed) {
			t.Fatalf("expected ErrInvalidSeed for %q, got %v", phrase, err)
		}
	}
}

func TestDistinctPhrasesYieldDistinctAddresses(t *testing.T) {
	other, err := GenerateSeedPhrase()
	if err != nil {
		t.Fatalf("generate seed phrase failed: %v", err)
	}
	a, err := DeriveIdentity(goldenMnemonic)
	if err != nil {
		t.Fatalf("derive golden failed: %v", err)
	}
	b, err := DeriveIdentity(other)
	if err != nil {
		t.Fatalf("derive generated failed: %v", err)
	}
	if a.Address == b.Address {
		t.Fatal("different phrases should not collide")
	}
}

func TestAddressDerivesFromPublicKey(t *testing.T) {
	id, err := DeriveIdentity(goldenMnemonic)
	if err != nil {
		t.Fatalf("derive identity failed: %v", err)
	}
	ok, err := VerifyAddress(id.Address, id.PublicKey)
	if err != nil || !ok {
		t.Fatalf("address must verify against its key, ok=%v err=%v", ok, err)
	}
	hash, err := ParseAddress(id.Address)
	if err != nil {
		t.Fatalf("parse address failed: %v", err)
	}
	if len(hash) != AddressHashSize {
		t.Fatalf("unexpected hash size %d", len(hash))
	}
	other := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{7}, 32)).Public().(ed25519.PublicKey)
	if ok, _ := VerifyAddress(id.Address, other); ok {
		t.Fatal("address must not verify against a foreign key")
	}
}

func TestParseAddressRejectsForeignPrefixAndGarbage(t *testing.T) {
	for _, addr := range []string{
		"agent1qv4hquhtazgnwaxlhta8q787pcke38qv7ezkrwv67desjj2pvdz3zs0pkgc",
		"agent1qexampleaddress",
		"",
	} {
		if _, err := ParseAddress(addr); !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("expected ErrInvalidAddress for %q, got %v", addr, err)
		}
	}
}

func TestFromSigningSeedRejectsWrongSize(t *testing.T) {
	if _, err := FromSigningSeed(make([]byte, 31)); !errors.Is(err, ErrIdentityInit) {
		t.Fatalf("expected ErrIdentityInit, got %v", err)
	}
}

func TestSigningIdentityNeverFormatsSecretKey(t *testing.T) {
	id, err := DeriveIdentity(goldenMnemonic)
	if err != nil {
		t.Fatalf("derive identity failed: %v", err)
	}
	secretHex := hex.EncodeToString(id.SecretKey[:32])
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logger.Info("identity ready", "identity", id)
	out := buf.String() + fmt.Sprint(id)
	if strings.Contains(out, secretHex) {
		t.Fatal("secret key leaked into formatted output")
	}
	if !strings.Contains(out, id.Address) {
		t.Fatalf("expected address in output, got %q", out)
	}
}
