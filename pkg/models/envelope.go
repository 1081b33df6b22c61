package models

// EnvelopeVersion is the only envelope version this client speaks.
const EnvelopeVersion = 1

// Envelope is the signed unit of transport. Field order is the canonical
// signing order; do not reorder.
type Envelope struct {
	Version        int     `json:"version"`
	Sender         string  `json:"sender"`
	Target         string  `json:"target"`
	Session        string  `json:"session"`
	SchemaDigest   string  `json:"schema_digest"`
	ProtocolDigest *string `json:"protocol_digest,omitempty"`
	Payload        string  `json:"payload"`
	Expires        int64   `json:"expires"`
	Nonce          uint32  `json:"nonce"`
	Signature      *string `json:"signature,omitempty"`
}

func (e Envelope) IsSigned() bool {
	return e.Signature != nil && *e.Signature != ""
}

// Clone returns a deep copy so callers can mutate it without touching e.
func (e Envelope) Clone() Envelope {
	out := e
	if e.ProtocolDigest != nil {
		v := *e.ProtocolDigest
		out.ProtocolDigest = &v
	}
	if e.Signature != nil {
		v := *e.Signature
		out.Signature = &v
	}
	return out
}
