package envelope

import (
	"crypto/ed25519"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"lovefi/agent-client/internal/codec"
	"lovefi/agent-client/internal/identity"
	"lovefi/agent-client/pkg/models"
)

// KeyResolver is the out-of-band public key lookup. Addresses are one-way
// hashes, so the verifier cannot recover a key from the envelope itself.
type KeyResolver interface {
	ResolvePublicKey(address string) (ed25519.PublicKey, error)
}

// ReplayGuard remembers authenticated envelopes until they expire. Remember
// reports false when the envelope was already seen. Forget drops the entry
// again so a message that was never processed can be redelivered.
type ReplayGuard interface {
	Remember(env models.Envelope, now time.Time) bool
	Forget(env models.Envelope)
}

type Verifier struct {
	Keys   KeyResolver
	Replay ReplayGuard
	Now    func() time.Time
}

type VerifyRequest struct {
	Envelope models.Envelope
	// ExpectedSender, when set, must equal Envelope.Sender.
	ExpectedSender string
	// PublicKey overrides Keys for this request.
	PublicKey ed25519.PublicKey
}

// DecodedMessage is the authenticated payload plus envelope metadata.
type DecodedMessage struct {
	Sender       string
	Target       string
	Session      string
	SchemaDigest string
	Nonce        uint32
	Expires      time.Time
	Payload      json.RawMessage
}

// Decode unmarshals the payload into out.
func (m DecodedMessage) Decode(out any) error {
	if err := json.Unmarshal(m.Payload, out); err != nil {
		return reject(RejectPayloadInvalid, "payload does not match %T: %v", out, err)
	}
	return nil
}

// Verify authenticates the envelope. Checks run in a fixed order: schema,
// expected sender, expiry, signature encoding, sender key, signature,
// payload, replay.
func (v Verifier) Verify(req VerifyRequest) (DecodedMessage, error) {
	env := req.Envelope
	now := v.now()

	if err := validateSchema(env); err != nil {
		return DecodedMessage{}, err
	}
	if expected := strings.TrimSpace(req.ExpectedSender); expected != "" && env.Sender != expected {
		return DecodedMessage{}, reject(RejectSenderMismatch, "expected sender %s, got %s", expected, env.Sender)
	}
	if now.Unix() > env.Expires {
		return DecodedMessage{}, reject(RejectExpired, "expired at %d, now %d", env.Expires, now.Unix())
	}
	digest, err := SigningDigest(env)
	if err != nil {
		return DecodedMessage{}, reject(RejectSchemaInvalid, "canonical form: %v", err)
	}
	if !env.IsSigned() {
		return DecodedMessage{}, reject(RejectSignatureMalformed, "signature is missing")
	}
	hrp, signature, err := codec.Bech32Decode(*env.Signature)
	if err != nil {
		return DecodedMessage{}, &VerifyError{Code: RejectSignatureMalformed, Err: err}
	}
	if hrp != identity.AddressPrefix || len(signature) != ed25519.SignatureSize {
		return DecodedMessage{}, reject(RejectSignatureMalformed, "unexpected signature prefix %q or size %d", hrp, len(signature))
	}
	pub, err := v.resolveKey(req, env.Sender)
	if err != nil {
		return DecodedMessage{}, err
	}
	if !ed25519.Verify(pub, digest, signature) {
		return DecodedMessage{}, reject(RejectSignatureInvalid, "signature does not match sender key")
	}
	payload, err := decodePayload(env.Payload)
	if err != nil {
		return DecodedMessage{}, err
	}
	if v.Replay != nil && !v.Replay.Remember(env, now) {
		return DecodedMessage{}, reject(RejectReplay, "session %s nonce %d already seen", env.Session, env.Nonce)
	}
	return DecodedMessage{
		Sender:       env.Sender,
		Target:       env.Target,
		Session:      env.Session,
		SchemaDigest: env.SchemaDigest,
		Nonce:        env.Nonce,
		Expires:      time.Unix(env.Expires, 0).UTC(),
		Payload:      payload,
	}, nil
}

// Forget releases the replay entry Verify recorded for env. Callers use it
// when an accepted envelope was not processed, so the sender's retry of the
// same envelope is not rejected as a replay.
func (v Verifier) Forget(env models.Envelope) {
	if v.Replay != nil {
		v.Replay.Forget(env)
	}
}

// VerifyAndDecode verifies the envelope and decodes its payload into T.
func VerifyAndDecode[T any](v Verifier, req VerifyRequest) (T, DecodedMessage, error) {
	var out T
	msg, err := v.Verify(req)
	if err != nil {
		return out, DecodedMessage{}, err
	}
	if err := msg.Decode(&out); err != nil {
		return out, DecodedMessage{}, err
	}
	return out, msg, nil
}

func (v Verifier) resolveKey(req VerifyRequest, sender string) (ed25519.PublicKey, error) {
	if req.PublicKey != nil {
		if len(req.PublicKey) != ed25519.PublicKeySize {
			return nil, reject(RejectSenderUnknown, "public key must be %d bytes", ed25519.PublicKeySize)
		}
		return req.PublicKey, nil
	}
	if v.Keys == nil {
		return nil, reject(RejectSenderUnknown, "no key directory configured for %s", sender)
	}
	pub, err := v.Keys.ResolvePublicKey(sender)
	if err != nil {
		return nil, &VerifyError{Code: RejectSenderUnknown, Err: err}
	}
	if len(pub) != ed25519.PublicKeySize {
		return nil, reject(RejectSenderUnknown, "resolved key for %s has size %d", sender, len(pub))
	}
	return pub, nil
}

func (v Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func validateSchema(env models.Envelope) error {
	if env.Version != models.EnvelopeVersion {
		return reject(RejectSchemaInvalid, "unsupported version %d", env.Version)
	}
	if strings.TrimSpace(env.Sender) == "" || strings.TrimSpace(env.Target) == "" {
		return reject(RejectSchemaInvalid, "sender and target are required")
	}
	if strings.TrimSpace(env.Session) == "" {
		return reject(RejectSchemaInvalid, "session is required")
	}
	if env.Expires <= 0 {
		return reject(RejectSchemaInvalid, "expires is required")
	}
	return nil
}

func decodePayload(payload string) (json.RawMessage, error) {
	raw, err := codec.Base64Decode(payload)
	if err != nil {
		return nil, &VerifyError{Code: RejectPayloadInvalid, Err: err}
	}
	if !utf8.Valid(raw) {
		return nil, reject(RejectPayloadInvalid, "payload is not valid UTF-8")
	}
	if !json.Valid(raw) {
		return nil, reject(RejectPayloadInvalid, "payload is not valid JSON")
	}
	return json.RawMessage(raw), nil
}
