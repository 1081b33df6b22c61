package envelope

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"lovefi/agent-client/pkg/models"
)

// canonicalEnvelope fixes the signing order:
// version, sender, target, session, schema_digest, protocol_digest (omitted
// when absent), payload, expires, nonce, signature (always null).
type canonicalEnvelope struct {
	Version        int     `json:"version"`
	Sender         string  `json:"sender"`
	Target         string  `json:"target"`
	Session        string  `json:"session"`
	SchemaDigest   string  `json:"schema_digest"`
	ProtocolDigest *string `json:"protocol_digest,omitempty"`
	Payload        string  `json:"payload"`
	Expires        int64   `json:"expires"`
	Nonce          uint32  `json:"nonce"`
	Signature      *string `json:"signature"`
}

var errNonPortableText = errors.New("text has no portable JSON form")

// CanonicalSigningInput is compact JSON without HTML escaping. encoding/json
// escapes U+2028 and U+2029 and rewrites invalid UTF-8, where JSON.stringify
// does neither, so string fields carrying them are refused instead of signed
// in a form a JavaScript peer cannot reproduce.
func CanonicalSigningInput(env models.Envelope) ([]byte, error) {
	fields := map[string]string{
		"sender":        env.Sender,
		"target":        env.Target,
		"session":       env.Session,
		"schema_digest": env.SchemaDigest,
		"payload":       env.Payload,
	}
	if env.ProtocolDigest != nil {
		fields["protocol_digest"] = *env.ProtocolDigest
	}
	for name, value := range fields {
		if !portableText(value) {
			return nil, fmt.Errorf("%w: %s", errNonPortableText, name)
		}
	}
	return marshalCompact(canonicalEnvelope{
		Version:        env.Version,
		Sender:         env.Sender,
		Target:         env.Target,
		Session:        env.Session,
		SchemaDigest:   env.SchemaDigest,
		ProtocolDigest: env.ProtocolDigest,
		Payload:        env.Payload,
		Expires:        env.Expires,
		Nonce:          env.Nonce,
	})
}

func SigningDigest(env models.Envelope) ([]byte, error) {
	canonical, err := CanonicalSigningInput(env)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(canonical)
	return sum[:], nil
}

func portableText(s string) bool {
	return utf8.ValidString(s) && !strings.ContainsAny(s, "\u2028\u2029")
}

func marshalCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
