package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lovefi/agent-client/internal/envelope"
	"lovefi/agent-client/internal/platform/metrics"
	"lovefi/agent-client/internal/platform/ratelimiter"
	"lovefi/agent-client/pkg/models"
)

const (
	SubmitPath  = "/submit"
	HealthPath  = "/healthz"
	MetricsPath = "/metrics"

	codeRateLimited = "RATE_LIMITED"
	codeBodyTooBig  = "BODY_TOO_LARGE"
	codeHandler     = "HANDLER_FAILED"
)

// Handler consumes an authenticated message. A non-nil envelope is returned
// to the caller as the reply body.
type Handler interface {
	HandleEnvelope(ctx context.Context, msg envelope.DecodedMessage) (*models.Envelope, error)
}

type HandlerFunc func(ctx context.Context, msg envelope.DecodedMessage) (*models.Envelope, error)

func (f HandlerFunc) HandleEnvelope(ctx context.Context, msg envelope.DecodedMessage) (*models.Envelope, error) {
	return f(ctx, msg)
}

type ReceiverConfig struct {
	Addr              string
	MaxBodyBytes      int64
	Verifier          envelope.Verifier
	ExpectedSender    string
	Limiter           *ratelimiter.MapLimiter
	Handler           Handler
	Metrics           *metrics.Recorder
	Logger            *slog.Logger
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

type Receiver struct {
	httpServer      *http.Server
	maxBodyBytes    int64
	verifier        envelope.Verifier
	expectedSender  string
	limiter         *ratelimiter.MapLimiter
	handler         Handler
	metrics         *metrics.Recorder
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

func NewReceiver(cfg ReceiverConfig) (*Receiver, error) {
	if cfg.Handler == nil {
		return nil, errors.New("receiver handler is required")
	}
	r := &Receiver{
		maxBodyBytes:    cfg.MaxBodyBytes,
		verifier:        cfg.Verifier,
		expectedSender:  strings.TrimSpace(cfg.ExpectedSender),
		limiter:         cfg.Limiter,
		handler:         cfg.Handler,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	if r.maxBodyBytes <= 0 {
		r.maxBodyBytes = 256 * 1024
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.shutdownTimeout <= 0 {
		r.shutdownTimeout = 5 * time.Second
	}
	readHeaderTimeout := cfg.ReadHeaderTimeout
	if readHeaderTimeout <= 0 {
		readHeaderTimeout = 5 * time.Second
	}

	mux := http.NewServeMux()
	mux.HandleFunc(SubmitPath, r.handleSubmit)
	mux.HandleFunc(HealthPath, r.handleHealth)
	if r.metrics != nil {
		mux.Handle(MetricsPath, r.metrics.Handler())
	}
	r.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return r, nil
}

func (r *Receiver) Handler() http.Handler {
	return r.httpServer.Handler
}

// Run listens on the configured address until ctx is done.
func (r *Receiver) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", r.httpServer.Addr)
	if err != nil {
		return err
	}
	return r.Serve(ctx, ln)
}

// Serve accepts on ln until ctx is done, then shuts down gracefully.
func (r *Receiver) Serve(ctx context.Context, ln net.Listener) error {
	select {
	case <-ctx.Done():
		_ = ln.Close()
		return nil
	default:
	}

	errCh := make(chan error, 1)
	go func() {
		err := r.httpServer.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()
	r.logInfo("serve", "", "receiver listening", "listen_addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout)
		defer cancel()
		if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

func (r *Receiver) handleHealth(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *Receiver) handleSubmit(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	env, status, code := r.decodeEnvelope(w, req)
	if status != 0 {
		r.metrics.EnvelopeVerified(code)
		writeReject(w, status, code)
		return
	}

	msg, err := r.verifier.Verify(envelope.VerifyRequest{
		Envelope:       env,
		ExpectedSender: r.expectedSender,
	})
	if err != nil {
		code, _ := envelope.RejectCodeOf(err)
		r.metrics.EnvelopeVerified(string(code))
		r.logWarn("submit", env.Session, "envelope rejected", "sender", env.Sender, "reject_code", string(code), "error", err.Error())
		writeReject(w, StatusForReject(code), string(code))
		return
	}
	r.metrics.EnvelopeVerified("")

	// Keyed on the authenticated sender, never the claimed one.
	if ok, wait := r.limiter.Check(msg.Sender, time.Now()); !ok {
		r.verifier.Forget(env)
		r.metrics.RateLimited()
		seconds := int(math.Ceil(wait.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		writeReject(w, http.StatusTooManyRequests, codeRateLimited)
		return
	}
	r.logInfo("submit", msg.Session, "envelope accepted", "sender", msg.Sender, "schema", msg.SchemaDigest)

	reply, err := r.handler.HandleEnvelope(req.Context(), msg)
	if err != nil {
		r.verifier.Forget(env)
		r.logWarn("submit", msg.Session, "handler failed", "error", err.Error())
		if code, ok := envelope.RejectCodeOf(err); ok {
			writeReject(w, StatusForReject(code), string(code))
			return
		}
		writeReject(w, http.StatusInternalServerError, codeHandler)
		return
	}
	if reply != nil {
		writeJSON(w, http.StatusOK, reply)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (r *Receiver) decodeEnvelope(w http.ResponseWriter, req *http.Request) (models.Envelope, int, string) {
	body := http.MaxBytesReader(w, req.Body, r.maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	var env models.Envelope
	if err := dec.Decode(&env); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return models.Envelope{}, http.StatusRequestEntityTooLarge, codeBodyTooBig
		}
		return models.Envelope{}, http.StatusBadRequest, string(envelope.RejectSchemaInvalid)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return models.Envelope{}, http.StatusBadRequest, string(envelope.RejectSchemaInvalid)
	}
	return env, 0, ""
}

// StatusForReject maps a reject code to the HTTP status the receiver answers with.
func StatusForReject(code envelope.RejectCode) int {
	switch code {
	case envelope.RejectSchemaInvalid, envelope.RejectPayloadInvalid:
		return http.StatusBadRequest
	case envelope.RejectSenderMismatch, envelope.RejectSignatureMalformed,
		envelope.RejectSenderUnknown, envelope.RejectSignatureInvalid:
		return http.StatusUnauthorized
	case envelope.RejectReplay:
		return http.StatusConflict
	case envelope.RejectExpired:
		return http.StatusGone
	default:
		return http.StatusBadRequest
	}
}

// RejectBody is the JSON error reply.
type RejectBody struct {
	Status string `json:"status"`
	Code   string `json:"code"`
}

func writeReject(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, RejectBody{Status: "rejected", Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (r *Receiver) logInfo(operation, correlationID, message string, attrs ...any) {
	r.logger.Info(message, append(logBase(operation, correlationID), attrs...)...)
}

func (r *Receiver) logWarn(operation, correlationID, message string, attrs ...any) {
	r.logger.Warn(message, append(logBase(operation, correlationID), attrs...)...)
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
