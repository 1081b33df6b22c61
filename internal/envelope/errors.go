package envelope

import (
	"errors"
	"fmt"
)

var (
	ErrBuild              = errors.New("invalid envelope build request")
	ErrEncoding           = errors.New("envelope payload encoding failed")
	ErrSigning            = errors.New("envelope signing failed")
	ErrSchema             = errors.New("envelope schema invalid")
	ErrSenderMismatch     = errors.New("envelope sender mismatch")
	ErrExpired            = errors.New("envelope expired")
	ErrMalformedSignature = errors.New("envelope signature malformed")
	ErrUnknownSender      = errors.New("envelope sender key unknown")
	ErrBadSignature       = errors.New("envelope signature invalid")
	ErrPayloadDecode      = errors.New("envelope payload invalid")
	ErrReplay             = errors.New("envelope replay detected")
)

type RejectCode string

const (
	RejectSchemaInvalid      RejectCode = "ENVELOPE_SCHEMA_INVALID"
	RejectSenderMismatch     RejectCode = "ENVELOPE_SENDER_MISMATCH"
	RejectExpired            RejectCode = "ENVELOPE_EXPIRED"
	RejectSignatureMalformed RejectCode = "ENVELOPE_SIGNATURE_MALFORMED"
	RejectSenderUnknown      RejectCode = "ENVELOPE_SENDER_UNKNOWN"
	RejectSignatureInvalid   RejectCode = "ENVELOPE_SIGNATURE_INVALID"
	RejectPayloadInvalid     RejectCode = "ENVELOPE_PAYLOAD_INVALID"
	RejectReplay             RejectCode = "ENVELOPE_REPLAY_DETECTED"
)

var rejectSentinels = map[RejectCode]error{
	RejectSchemaInvalid:      ErrSchema,
	RejectSenderMismatch:     ErrSenderMismatch,
	RejectExpired:            ErrExpired,
	RejectSignatureMalformed: ErrMalformedSignature,
	RejectSenderUnknown:      ErrUnknownSender,
	RejectSignatureInvalid:   ErrBadSignature,
	RejectPayloadInvalid:     ErrPayloadDecode,
	RejectReplay:             ErrReplay,
}

// VerifyError is a non-recoverable rejection of one envelope.
type VerifyError struct {
	Code RejectCode
	Err  error
}

func (e *VerifyError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *VerifyError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is lets errors.Is match the taxonomy sentinel for the reject code.
func (e *VerifyError) Is(target error) bool {
	if e == nil {
		return false
	}
	sentinel, ok := rejectSentinels[e.Code]
	return ok && sentinel == target
}

func RejectCodeOf(err error) (RejectCode, bool) {
	var verr *VerifyError
	if errors.As(err, &verr) {
		return verr.Code, true
	}
	return "", false
}

func reject(code RejectCode, format string, args ...any) error {
	return &VerifyError{Code: code, Err: fmt.Errorf(format, args...)}
}
