package transport

import (
	"testing"
	"time"

	"lovefi/agent-client/internal/envelope"
	"lovefi/agent-client/internal/identity"
	"lovefi/agent-client/pkg/models"
)

const (
	clientMnemonic  = "test test test test test test test test test test test junk"
	matcherMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
)

type testPayload struct {
	A int `json:"a"`
}

func mustIdentity(t *testing.T, mnemonic string) *identity.SigningIdentity {
	t.Helper()
	id, err := identity.DeriveIdentity(mnemonic)
	if err != nil {
		t.Fatalf("derive identity: %v", err)
	}
	return id
}

func mustEnvelope(t *testing.T, from, to *identity.SigningIdentity, now time.Time) models.Envelope {
	t.Helper()
	env, err := envelope.Builder{Now: func() time.Time { return now }}.Build(envelope.BuildRequest{
		Identity:     from,
		Target:       to.Address,
		Payload:      testPayload{A: 1},
		SchemaDigest: "matching_request_schema",
		TTL:          time.Hour,
	})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	return env
}
