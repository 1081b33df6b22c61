package envelope

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"time"

	"lovefi/agent-client/internal/codec"
	"lovefi/agent-client/internal/identity"
	"lovefi/agent-client/pkg/models"

	"github.com/google/uuid"
)

// Builder produces signed envelopes. The zero value uses the wall clock and
// crypto/rand; tests inject both.
type Builder struct {
	Now    func() time.Time
	Random io.Reader
}

type BuildRequest struct {
	Identity       *identity.SigningIdentity
	Target         string
	Payload        any
	SchemaDigest   string
	ProtocolDigest string
	TTL            time.Duration
}

// BuildSignedEnvelope is the one-shot form of Builder.Build with ttl in seconds.
func BuildSignedEnvelope(id *identity.SigningIdentity, target string, payload any, schemaDigest string, ttlSeconds int64) (models.Envelope, error) {
	return Builder{}.Build(BuildRequest{
		Identity:     id,
		Target:       target,
		Payload:      payload,
		SchemaDigest: schemaDigest,
		TTL:          time.Duration(ttlSeconds) * time.Second,
	})
}

// Build assembles the envelope with a fresh session and nonce, then signs it.
// The returned envelope must not be mutated: any change invalidates the
// signature and nothing re-signs it.
func (b Builder) Build(req BuildRequest) (models.Envelope, error) {
	env, err := b.BuildUnsigned(req)
	if err != nil {
		return models.Envelope{}, err
	}
	return Sign(env, req.Identity)
}

func (b Builder) BuildUnsigned(req BuildRequest) (models.Envelope, error) {
	if req.Identity == nil || req.Identity.Address == "" {
		return models.Envelope{}, fmt.Errorf("%w: signing identity is required", ErrBuild)
	}
	target := strings.TrimSpace(req.Target)
	if target == "" {
		return models.Envelope{}, fmt.Errorf("%w: target is required", ErrBuild)
	}
	ttl := req.TTL.Truncate(time.Second)
	if ttl < time.Second {
		return models.Envelope{}, fmt.Errorf("%w: ttl must be at least 1s, got %s", ErrBuild, req.TTL)
	}
	payload, err := EncodePayload(req.Payload)
	if err != nil {
		return models.Envelope{}, err
	}
	session, err := uuid.NewRandomFromReader(b.random())
	if err != nil {
		return models.Envelope{}, fmt.Errorf("%w: session id: %v", ErrBuild, err)
	}
	nonce, err := b.nonce()
	if err != nil {
		return models.Envelope{}, fmt.Errorf("%w: nonce: %v", ErrBuild, err)
	}
	env := models.Envelope{
		Version:      models.EnvelopeVersion,
		Sender:       req.Identity.Address,
		Target:       target,
		Session:      session.String(),
		SchemaDigest: req.SchemaDigest,
		Payload:      payload,
		Expires:      b.now().Add(ttl).Unix(),
		Nonce:        nonce,
	}
	if digest := strings.TrimSpace(req.ProtocolDigest); digest != "" {
		env.ProtocolDigest = &digest
	}
	return env, nil
}

// Sign computes the detached signature over the canonical digest and returns
// a copy of env carrying it. Any existing signature is ignored.
func Sign(env models.Envelope, id *identity.SigningIdentity) (models.Envelope, error) {
	if id == nil {
		return models.Envelope{}, fmt.Errorf("%w: signing identity is required", ErrSigning)
	}
	if len(id.SecretKey) != ed25519.PrivateKeySize {
		return models.Envelope{}, fmt.Errorf("%w: secret key must be %d bytes, got %d", ErrSigning, ed25519.PrivateKeySize, len(id.SecretKey))
	}
	derivedPub, ok := id.SecretKey.Public().(ed25519.PublicKey)
	if !ok || !bytes.Equal(derivedPub, id.PublicKey) {
		return models.Envelope{}, fmt.Errorf("%w: secret key does not match public key", ErrSigning)
	}
	out := env.Clone()
	out.Signature = nil
	digest, err := SigningDigest(out)
	if err != nil {
		return models.Envelope{}, fmt.Errorf("%w: canonical form: %v", ErrEncoding, err)
	}
	sig, err := codec.Bech32Encode(identity.AddressPrefix, ed25519.Sign(id.SecretKey, digest))
	if err != nil {
		return models.Envelope{}, fmt.Errorf("%w: %v", ErrSigning, err)
	}
	out.Signature = &sig
	return out, nil
}

// EncodePayload is base64(UTF-8 JSON(payload)).
func EncodePayload(payload any) (string, error) {
	if payload == nil {
		return "", fmt.Errorf("%w: payload is required", ErrEncoding)
	}
	raw, err := marshalCompact(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return codec.Base64Encode(raw), nil
}

func (b Builder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func (b Builder) random() io.Reader {
	if b.Random != nil {
		return b.Random
	}
	return rand.Reader
}

func (b Builder) nonce() (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(b.random(), buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}
