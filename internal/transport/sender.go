package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lovefi/agent-client/internal/platform/metrics"
	"lovefi/agent-client/pkg/models"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const (
	componentName     = "transport"
	maxReplyBytes     = 1 << 20
	maxErrorBodyBytes = 512
)

type SenderConfig struct {
	Endpoints      EndpointStrategy
	Client         *http.Client
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	RatePerSecond  float64
	Burst          int
	Metrics        *metrics.Recorder
	Logger         *slog.Logger
}

// Reply is a 2xx answer. Envelope is set when the body parsed as an
// envelope; otherwise Body holds the raw bytes.
type Reply struct {
	Endpoint   string
	StatusCode int
	Envelope   *models.Envelope
	Body       []byte
}

// Sender POSTs envelopes to a peer. It never alters the envelope; the core
// decides what to send and the sender only moves bytes.
type Sender struct {
	endpoints      EndpointStrategy
	client         *http.Client
	timeout        time.Duration
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	limiter        *rate.Limiter
	metrics        *metrics.Recorder
	logger         *slog.Logger
}

func NewSender(cfg SenderConfig) (*Sender, error) {
	if cfg.Endpoints == nil || len(cfg.Endpoints.Endpoints()) == 0 {
		return nil, ErrNoEndpoints
	}
	s := &Sender{
		endpoints:      cfg.Endpoints,
		client:         cfg.Client,
		timeout:        cfg.Timeout,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
	}
	if s.client == nil {
		s.client = &http.Client{}
	}
	if s.timeout <= 0 {
		s.timeout = 10 * time.Second
	}
	if s.maxAttempts < 1 {
		s.maxAttempts = 1
	}
	if s.initialBackoff <= 0 {
		s.initialBackoff = 250 * time.Millisecond
	}
	if s.maxBackoff < s.initialBackoff {
		s.maxBackoff = s.initialBackoff
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Send delivers env to the first endpoint that accepts it. Each endpoint is
// retried with exponential backoff on network errors, 429 and 5xx; any other
// non-2xx status is returned at once as ErrRejected.
func (s *Sender) Send(ctx context.Context, env models.Envelope) (Reply, error) {
	started := time.Now()
	reply, err := s.send(ctx, env)
	s.metrics.SendFinished(started, err)
	return reply, err
}

func (s *Sender) send(ctx context.Context, env models.Envelope) (Reply, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return Reply{}, fmt.Errorf("%w: rate limit wait: %v", ErrTransport, err)
		}
	}
	body, err := json.Marshal(env)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: encode envelope: %v", ErrTransport, err)
	}

	var lastErr error
	for _, endpoint := range s.endpoints.Endpoints() {
		reply, err := s.sendToEndpoint(ctx, endpoint, body, env.Session)
		s.endpoints.Report(endpoint, err)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			if !errors.Is(err, ErrTransport) {
				err = fmt.Errorf("%w: %w", ErrTransport, err)
			}
			return Reply{}, err
		}
		if errors.Is(err, ErrRejected) {
			return Reply{}, err
		}
		s.logWarn("send", env.Session, "endpoint failed, trying next", "endpoint", endpoint, "error", err.Error())
	}
	if lastErr == nil {
		return Reply{}, ErrNoEndpoints
	}
	return Reply{}, lastErr
}

func (s *Sender) sendToEndpoint(ctx context.Context, endpoint string, body []byte, session string) (Reply, error) {
	policy := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(s.initialBackoff),
		backoff.WithMaxInterval(s.maxBackoff),
		backoff.WithMaxElapsedTime(0),
	)
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.maxAttempts-1)), ctx)

	attempt := 0
	notify := func(err error, wait time.Duration) {
		s.logWarn("send", session, "retrying envelope delivery",
			"endpoint", endpoint, "attempt", attempt, "retry_in", wait.String(), "error", err.Error())
	}
	return backoff.RetryNotifyWithData[Reply](func() (Reply, error) {
		attempt++
		reply, err := s.post(ctx, endpoint, body)
		s.metrics.SendAttempt(endpoint, attemptOutcome(err))
		if err == nil {
			return reply, nil
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return Reply{}, backoff.Permanent(err)
		}
		return Reply{}, err
	}, b, notify)
}

func (s *Sender) post(ctx context.Context, endpoint string, body []byte) (Reply, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Reply{}, backoff.Permanent(fmt.Errorf("%w: build request: %v", ErrTransport, err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: %s: %v", ErrTransport, endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes+1))
	if err != nil {
		return Reply{}, fmt.Errorf("%w: read reply from %s: %v", ErrTransport, endpoint, err)
	}
	if len(raw) > maxReplyBytes {
		return Reply{}, backoff.Permanent(fmt.Errorf("%w: reply from %s exceeds %d bytes", ErrTransport, endpoint, maxReplyBytes))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       truncate(strings.TrimSpace(string(raw)), maxErrorBodyBytes),
		}
		var rejectBody RejectBody
		if json.Unmarshal(raw, &rejectBody) == nil {
			statusErr.Code = rejectBody.Code
		}
		return Reply{}, statusErr
	}
	return Reply{
		Endpoint:   endpoint,
		StatusCode: resp.StatusCode,
		Envelope:   parseEnvelope(raw),
		Body:       raw,
	}, nil
}

// parseEnvelope returns nil unless raw is a JSON object with the fields every
// envelope carries.
func parseEnvelope(raw []byte) *models.Envelope {
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil
	}
	if env.Version == 0 || env.Sender == "" || env.Session == "" || env.Payload == "" {
		return nil
	}
	return &env
}

func attemptOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return "status_" + strconv.Itoa(statusErr.StatusCode)
	}
	return "network_error"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (s *Sender) logWarn(operation, correlationID, message string, attrs ...any) {
	s.logger.Warn(message, append(logBase(operation, correlationID), attrs...)...)
}
