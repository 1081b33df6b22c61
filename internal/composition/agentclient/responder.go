package agentclient

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"lovefi/agent-client/internal/envelope"
	"lovefi/agent-client/internal/identity"
	"lovefi/agent-client/internal/matching"
	"lovefi/agent-client/internal/platform/metrics"
	"lovefi/agent-client/pkg/models"
)

type ResponderConfig struct {
	Identity       *identity.SigningIdentity
	RequestSchema  string
	ResponseSchema string
	ProtocolDigest string
	TTL            time.Duration
	Builder        envelope.Builder
	Metrics        *metrics.Recorder
	Logger         *slog.Logger
}

// Responder is the matcher side of /submit: it scores an authenticated
// matching request and answers with a signed response in the same session.
type Responder struct {
	cfg    ResponderConfig
	logger *slog.Logger
}

func NewResponder(cfg ResponderConfig) (*Responder, error) {
	if cfg.Identity == nil {
		return nil, fmt.Errorf("%w: signing identity is required", envelope.ErrBuild)
	}
	if cfg.RequestSchema == "" {
		cfg.RequestSchema = matching.RequestSchema
	}
	if cfg.ResponseSchema == "" {
		cfg.ResponseSchema = matching.ResponseSchema
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{cfg: cfg, logger: logger}, nil
}

func (r *Responder) HandleEnvelope(_ context.Context, msg envelope.DecodedMessage) (*models.Envelope, error) {
	if msg.SchemaDigest != r.cfg.RequestSchema {
		return nil, &envelope.VerifyError{
			Code: envelope.RejectSchemaInvalid,
			Err:  fmt.Errorf("unsupported schema %q", msg.SchemaDigest),
		}
	}
	var req models.MatchingRequest
	if err := msg.Decode(&req); err != nil {
		return nil, err
	}
	normalized, err := matching.NewRequest(req.Profile1, req.Profile2)
	if err != nil {
		return nil, &envelope.VerifyError{Code: envelope.RejectPayloadInvalid, Err: err}
	}

	resp := matching.Analyze(normalized)
	env, err := r.reply(msg, resp)
	r.cfg.Metrics.EnvelopeBuilt(r.cfg.ResponseSchema, err)
	if err != nil {
		r.logger.Error("agent client error", append(logBase("respond_match", msg.Session), "error", err.Error())...)
		return nil, err
	}
	r.logger.Info("matching response signed", append(logBase("respond_match", msg.Session),
		"target", msg.Sender, "score", resp.Score)...)
	return &env, nil
}

// reply signs resp back to the requester, reusing the request session so the
// caller can correlate it.
func (r *Responder) reply(msg envelope.DecodedMessage, resp models.MatchingResponse) (models.Envelope, error) {
	env, err := r.cfg.Builder.BuildUnsigned(envelope.BuildRequest{
		Identity:       r.cfg.Identity,
		Target:         msg.Sender,
		Payload:        resp,
		SchemaDigest:   r.cfg.ResponseSchema,
		ProtocolDigest: r.cfg.ProtocolDigest,
		TTL:            r.cfg.TTL,
	})
	if err != nil {
		return models.Envelope{}, err
	}
	env.Session = msg.Session
	return envelope.Sign(env, r.cfg.Identity)
}
