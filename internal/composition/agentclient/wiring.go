package agentclient

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"lovefi/agent-client/internal/config"
	"lovefi/agent-client/internal/envelope"
	"lovefi/agent-client/internal/identity"
	"lovefi/agent-client/internal/keydir"
	"lovefi/agent-client/internal/platform/metrics"
	"lovefi/agent-client/internal/platform/ratelimiter"
	"lovefi/agent-client/internal/transport"
)

const limiterIdleTTL = 10 * time.Minute

func LoadIdentity(cfg config.IdentityConfig) (*identity.SigningIdentity, error) {
	return identity.SeedSource{
		Phrase:        cfg.SeedPhrase,
		PhraseEnv:     cfg.SeedPhraseEnv,
		SealedFile:    cfg.SealedSeedFile,
		PassphraseEnv: cfg.PassphraseEnv,
	}.Load()
}

// NewClientFromConfig builds the sending side. m may be nil.
func NewClientFromConfig(cfg config.Config, id *identity.SigningIdentity, m *metrics.Recorder, logger *slog.Logger) (*Client, error) {
	if err := cfg.ValidateClient(); err != nil {
		return nil, err
	}
	keys, err := keydir.FromBase64Keys(cfg.Client.TrustedKeys)
	if err != nil {
		return nil, err
	}
	cl := cfg.Client
	sender, err := transport.NewSender(transport.SenderConfig{
		Endpoints:      transport.NewStickyEndpoints(cl.Endpoints),
		Timeout:        cl.RequestTimeout,
		MaxAttempts:    cl.RetryMaxAttempts,
		InitialBackoff: cl.RetryInitialBackoff,
		MaxBackoff:     cl.RetryMaxBackoff,
		RatePerSecond:  cl.SendRatePerSecond,
		Burst:          cl.SendBurst,
		Metrics:        m,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	if keys.Len() == 0 && logger != nil {
		logger.Warn("no trusted keys configured; signed responses cannot be verified",
			logBase("build_client", "")...)
	}
	return New(Config{
		Identity:              id,
		Target:                cl.Target,
		RequestSchema:         cl.RequestSchema,
		ResponseSchema:        cl.ResponseSchema,
		ProtocolDigest:        cl.ProtocolDigest,
		TTL:                   cl.EnvelopeTTL,
		AllowUnsignedResponse: cl.AllowUnsignedResponse,
		Transport:             sender,
		Verifier:              envelope.Verifier{Keys: keys},
		Metrics:               m,
		Logger:                logger,
	})
}

// ReceiverService is a /submit endpoint plus the replay cache it owns.
type ReceiverService struct {
	receiver *transport.Receiver
	replay   *envelope.SeenSet
	keys     *keydir.Directory
}

// NewReceiverFromConfig builds the receiving side around handler. m may be
// nil, in which case /metrics is not mounted.
func NewReceiverFromConfig(cfg config.Config, handler transport.Handler, m *metrics.Recorder, logger *slog.Logger) (*ReceiverService, error) {
	if err := cfg.ValidateReceiver(); err != nil {
		return nil, err
	}
	rc := cfg.Receiver
	keys, err := keydir.FromBase64Keys(rc.TrustedKeys)
	if err != nil {
		return nil, err
	}
	svc := &ReceiverService{keys: keys}
	verifier := envelope.Verifier{Keys: keys}
	if rc.ReplayGuard {
		svc.replay = envelope.NewSeenSet(rc.ReplayCapacity)
		verifier.Replay = svc.replay
	}
	if keys.Len() == 0 && logger != nil {
		logger.Warn("no trusted keys configured; every envelope will be rejected",
			logBase("build_receiver", "")...)
	}
	svc.receiver, err = transport.NewReceiver(transport.ReceiverConfig{
		Addr:              rc.ListenAddr,
		MaxBodyBytes:      rc.MaxBodyBytes,
		Verifier:          verifier,
		ExpectedSender:    rc.ExpectedSender,
		Limiter:           ratelimiter.New(rc.RatePerSecond, rc.Burst, limiterIdleTTL),
		Handler:           handler,
		Metrics:           m,
		Logger:            logger,
		ReadHeaderTimeout: rc.ReadHeaderTimeout,
		ShutdownTimeout:   rc.ShutdownTimeout,
	})
	if err != nil {
		return nil, err
	}
	return svc, nil
}

// NewReplyReceiverFromConfig builds the listener for replies the target
// delivers asynchronously. It trusts the client's keys and only the target.
func NewReplyReceiverFromConfig(cfg config.Config, client *Client, listenAddr string, deliver func(MatchResult), logger *slog.Logger) (*ReceiverService, error) {
	cfg.Receiver.ListenAddr = listenAddr
	cfg.Receiver.ExpectedSender = cfg.Client.Target
	cfg.Receiver.TrustedKeys = append([]string(nil), cfg.Client.TrustedKeys...)
	cfg.Receiver.MetricsEnabled = false
	return NewReceiverFromConfig(cfg, client.ResponseHandler(deliver), nil, logger)
}

// NewResponderFromConfig builds the matcher handler signed by id.
func NewResponderFromConfig(cfg config.Config, id *identity.SigningIdentity, m *metrics.Recorder, logger *slog.Logger) (*Responder, error) {
	return NewResponder(ResponderConfig{
		Identity:       id,
		RequestSchema:  cfg.Client.RequestSchema,
		ResponseSchema: cfg.Client.ResponseSchema,
		ProtocolDigest: cfg.Client.ProtocolDigest,
		TTL:            cfg.Receiver.ResponseTTL,
		Metrics:        m,
		Logger:         logger,
	})
}

func (s *ReceiverService) TrustedAddresses() []string {
	return s.keys.Addresses()
}

func (s *ReceiverService) Handler() http.Handler {
	return s.receiver.Handler()
}

func (s *ReceiverService) Run(ctx context.Context) error {
	s.startReplay()
	defer s.stopReplay()
	return s.receiver.Run(ctx)
}

func (s *ReceiverService) Serve(ctx context.Context, ln net.Listener) error {
	s.startReplay()
	defer s.stopReplay()
	return s.receiver.Serve(ctx, ln)
}

func (s *ReceiverService) startReplay() {
	if s.replay != nil {
		s.replay.Start()
	}
}

func (s *ReceiverService) stopReplay() {
	if s.replay != nil {
		s.replay.Stop()
	}
}
