package identity

import (
	"crypto/ed25519"
	"log/slog"
)

// SigningIdentity is derived once per process and is read-only afterwards;
// it may be shared by any number of concurrent envelope builders.
type SigningIdentity struct {
	PublicKey ed25519.PublicKey  // 32 bytes
	SecretKey ed25519.PrivateKey // 64 bytes, never logged or transmitted
	Address   string
}

// LogValue keeps the secret key out of structured logs.
func (id *SigningIdentity) LogValue() slog.Value {
	if id == nil {
		return slog.StringValue("<nil>")
	}
	return slog.GroupValue(slog.String("address", id.Address))
}

func (id *SigningIdentity) String() string {
	if id == nil {
		return "<nil>"
	}
	return id.Address
}
