// Package agentclient wires identity, envelope building and verification,
// and HTTP transport into the matching request flow.
package agentclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"lovefi/agent-client/internal/envelope"
	"lovefi/agent-client/internal/identity"
	"lovefi/agent-client/internal/matching"
	"lovefi/agent-client/internal/platform/metrics"
	"lovefi/agent-client/internal/transport"
	"lovefi/agent-client/pkg/models"
)

const componentName = "agentclient"

var (
	ErrUnexpectedReply     = errors.New("unexpected reply")
	ErrUnsignedReply       = errors.New("peer replied without an envelope")
	ErrReplySessionChanged = errors.New("reply session does not match request")
)

// Transport is the external collaborator that moves an envelope to the peer.
type Transport interface {
	Send(ctx context.Context, env models.Envelope) (transport.Reply, error)
}

type Config struct {
	Identity       *identity.SigningIdentity
	Target         string
	RequestSchema  string
	ResponseSchema string
	ProtocolDigest string
	TTL            time.Duration
	// AllowUnsignedResponse accepts a bare MatchingResponse body. Such a
	// result is reported with Authenticated=false.
	AllowUnsignedResponse bool
	Transport             Transport
	Verifier              envelope.Verifier
	Builder               envelope.Builder
	Metrics               *metrics.Recorder
	Logger                *slog.Logger
}

type Client struct {
	cfg    Config
	logger *slog.Logger
}

// MatchResult is the outcome of one RequestMatch. Response is nil when the
// peer only acknowledged the request.
type MatchResult struct {
	Session       string
	Endpoint      string
	Response      *models.MatchingResponse
	Authenticated bool
	Ack           string
}

func New(cfg Config) (*Client, error) {
	if cfg.Identity == nil {
		return nil, fmt.Errorf("%w: signing identity is required", envelope.ErrBuild)
	}
	if strings.TrimSpace(cfg.Target) == "" {
		return nil, fmt.Errorf("%w: target is required", envelope.ErrBuild)
	}
	if cfg.Transport == nil {
		return nil, errors.New("agent client transport is required")
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
	return &Client{cfg: cfg, logger: logger}, nil
}

// RequestMatch validates both profiles, sends them in a signed envelope to
// the target, and decodes the reply.
func (c *Client) RequestMatch(ctx context.Context, p1, p2 models.Profile) (MatchResult, error) {
	req, err := matching.NewRequest(p1, p2)
	if err != nil {
		return MatchResult{}, err
	}
	env, err := c.cfg.Builder.Build(envelope.BuildRequest{
		Identity:       c.cfg.Identity,
		Target:         c.cfg.Target,
		Payload:        req,
		SchemaDigest:   c.cfg.RequestSchema,
		ProtocolDigest: c.cfg.ProtocolDigest,
		TTL:            c.cfg.TTL,
	})
	c.cfg.Metrics.EnvelopeBuilt(c.cfg.RequestSchema, err)
	if err != nil {
		c.logError("request_match", "", err)
		return MatchResult{}, err
	}
	c.logInfo("request_match", env.Session, "sending matching request", "target", env.Target, "expires", env.Expires)

	reply, err := c.cfg.Transport.Send(ctx, env)
	if err != nil {
		c.logError("request_match", env.Session, err)
		return MatchResult{}, err
	}
	result, err := c.decodeReply(env, reply)
	if err != nil {
		c.logError("request_match", env.Session, err)
		return MatchResult{}, err
	}
	c.logInfo("request_match", env.Session, "matching request completed",
		"endpoint", reply.Endpoint, "has_response", result.Response != nil, "verified", result.Authenticated)
	return result, nil
}

func (c *Client) decodeReply(request models.Envelope, reply transport.Reply) (MatchResult, error) {
	result := MatchResult{Session: request.Session, Endpoint: reply.Endpoint}
	if reply.Envelope != nil {
		resp, err := c.verifyResponse(*reply.Envelope, request.Session)
		if err != nil {
			return MatchResult{}, err
		}
		result.Response = &resp
		result.Authenticated = true
		return result, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(reply.Body, &fields); err != nil {
		return MatchResult{}, fmt.Errorf("%w: %v", ErrUnexpectedReply, err)
	}
	if _, ok := fields["score"]; ok {
		if !c.cfg.AllowUnsignedResponse {
			return MatchResult{}, ErrUnsignedReply
		}
		var resp models.MatchingResponse
		if err := json.Unmarshal(reply.Body, &resp); err != nil {
			return MatchResult{}, fmt.Errorf("%w: %v", ErrUnexpectedReply, err)
		}
		if err := matching.ValidateResponse(resp); err != nil {
			return MatchResult{}, err
		}
		c.logWarn("request_match", request.Session, "accepted unsigned matching response")
		result.Response = &resp
		return result, nil
	}
	var ack struct {
		Status string `json:"status"`
	}
	_ = json.Unmarshal(reply.Body, &ack)
	result.Ack = ack.Status
	return result, nil
}

// verifyResponse authenticates a reply envelope from the target.
func (c *Client) verifyResponse(env models.Envelope, session string) (models.MatchingResponse, error) {
	resp, msg, err := envelope.VerifyAndDecode[models.MatchingResponse](c.cfg.Verifier, envelope.VerifyRequest{
		Envelope:       env,
		ExpectedSender: c.cfg.Target,
	})
	c.cfg.Metrics.EnvelopeVerified(rejectCode(err))
	if err != nil {
		return models.MatchingResponse{}, err
	}
	if session != "" && msg.Session != session {
		return models.MatchingResponse{}, fmt.Errorf("%w: sent %s, got %s", ErrReplySessionChanged, session, msg.Session)
	}
	if msg.SchemaDigest != c.cfg.ResponseSchema {
		return models.MatchingResponse{}, fmt.Errorf("%w: schema %q", ErrUnexpectedReply, msg.SchemaDigest)
	}
	if err := matching.ValidateResponse(resp); err != nil {
		return models.MatchingResponse{}, err
	}
	return resp, nil
}

// ResponseHandler accepts matching responses pushed back asynchronously to
// this client's own /submit endpoint.
func (c *Client) ResponseHandler(deliver func(MatchResult)) transport.Handler {
	return transport.HandlerFunc(func(ctx context.Context, msg envelope.DecodedMessage) (*models.Envelope, error) {
		if msg.SchemaDigest != c.cfg.ResponseSchema {
			c.logInfo("receive_response", msg.Session, "ignoring message with other schema", "schema", msg.SchemaDigest)
			return nil, nil
		}
		var resp models.MatchingResponse
		if err := msg.Decode(&resp); err != nil {
			return nil, err
		}
		if err := matching.ValidateResponse(resp); err != nil {
			return nil, &envelope.VerifyError{Code: envelope.RejectPayloadInvalid, Err: err}
		}
		if deliver != nil {
			deliver(MatchResult{Session: msg.Session, Response: &resp, Authenticated: true})
		}
		return nil, nil
	})
}

func rejectCode(err error) string {
	code, _ := envelope.RejectCodeOf(err)
	return string(code)
}

func (c *Client) logInfo(operation, correlationID, message string, attrs ...any) {
	c.logger.Info(message, append(logBase(operation, correlationID), attrs...)...)
}

func (c *Client) logWarn(operation, correlationID, message string, attrs ...any) {
	c.logger.Warn(message, append(logBase(operation, correlationID), attrs...)...)
}

func (c *Client) logError(operation, correlationID string, err error) {
	attrs := append(logBase(operation, correlationID), "error", err.Error())
	if code, ok := envelope.RejectCodeOf(err); ok {
		attrs = append(attrs, "reject_code", string(code))
	}
	c.logger.Error("agent client error", attrs...)
}

func logBase(operation, correlationID string) []any {
	correlationID = strings.TrimSpace(correlationID)
	if correlationID == "" {
		correlationID = "n/a"
	}
	return []any{
		"component", componentName,
		"operation", operation,
		"correlation_id", correlationID,
	}
}
