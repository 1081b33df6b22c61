// Package config loads agent settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"lovefi/agent-client/internal/identity"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Identity IdentityConfig
	Client   ClientConfig
	Receiver ReceiverConfig
}

// IdentityConfig names where the seed phrase comes from. The phrase itself
// should normally live in the environment or a sealed file, not in YAML.
type IdentityConfig struct {
	SeedPhrase     string
	SeedPhraseEnv  string
	SealedSeedFile string
	PassphraseEnv  string
}

type ClientConfig struct {
	Target                string
	Endpoints             []string
	RequestTimeout        time.Duration
	EnvelopeTTL           time.Duration
	RequestSchema         string
	ResponseSchema        string
	ProtocolDigest        string
	RetryMaxAttempts      int
	RetryInitialBackoff   time.Duration
	RetryMaxBackoff       time.Duration
	SendRatePerSecond     float64
	SendBurst             int
	AllowUnsignedResponse bool
	TrustedKeys           []string
}

type ReceiverConfig struct {
	ListenAddr        string
	MaxBodyBytes      int64
	RatePerSecond     float64
	Burst             int
	ExpectedSender    string
	TrustedKeys       []string
	ReplayGuard       bool
	ReplayCapacity    uint64
	ResponseTTL       time.Duration
	MetricsEnabled    bool
	ShutdownTimeout   time.Duration
	ReadHeaderTimeout time.Duration
}

func Default() Config {
	return Config{
		Identity: IdentityConfig{
			SeedPhraseEnv: "LOVEFI_SEED_PHRASE",
			PassphraseEnv: "LOVEFI_SEED_PASSPHRASE",
		},
		Client: ClientConfig{
			Endpoints:           []string{"http://127.0.0.1:8001/submit"},
			RequestTimeout:      10 * time.Second,
			EnvelopeTTL:         time.Hour,
			RequestSchema:       "matching_request_schema",
			ResponseSchema:      "matching_response_schema",
			RetryMaxAttempts:    3,
			RetryInitialBackoff: 250 * time.Millisecond,
			RetryMaxBackoff:     5 * time.Second,
			SendRatePerSecond:   5,
			SendBurst:           5,
		},
		Receiver: ReceiverConfig{
			ListenAddr:        "127.0.0.1:8001",
			MaxBodyBytes:      256 * 1024,
			RatePerSecond:     2,
			Burst:             10,
			ReplayCapacity:    100_000,
			ResponseTTL:       time.Hour,
			MetricsEnabled:    true,
			ShutdownTimeout:   5 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// ValidateClient checks what the sending side needs.
func (c Config) ValidateClient() error {
	cl := c.Client
	if strings.TrimSpace(cl.Target) == "" {
		return fmt.Errorf("%w: client target address is required", ErrInvalidConfig)
	}
	if _, err := identity.ParseAddress(cl.Target); err != nil {
		return fmt.Errorf("%w: client target: %v", ErrInvalidConfig, err)
	}
	if len(cl.Endpoints) == 0 {
		return fmt.Errorf("%w: at least one endpoint is required", ErrInvalidConfig)
	}
	for _, endpoint := range cl.Endpoints {
		u, err := url.Parse(endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: endpoint %q must be an absolute http(s) URL", ErrInvalidConfig, endpoint)
		}
	}
	if cl.EnvelopeTTL < time.Second {
		return fmt.Errorf("%w: envelope ttl must be at least 1s", ErrInvalidConfig)
	}
	if cl.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request timeout must be positive", ErrInvalidConfig)
	}
	if cl.RetryMaxAttempts < 1 {
		return fmt.Errorf("%w: retry max attempts must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// ValidateReceiver checks what the /submit endpoint needs.
func (c Config) ValidateReceiver() error {
	r := c.Receiver
	if strings.TrimSpace(r.ListenAddr) == "" {
		return fmt.Errorf("%w: receiver listen address is required", ErrInvalidConfig)
	}
	if r.MaxBodyBytes <= 0 {
		return fmt.Errorf("%w: receiver max body bytes must be positive", ErrInvalidConfig)
	}
	if r.ResponseTTL < time.Second {
		return fmt.Errorf("%w: response ttl must be at least 1s", ErrInvalidConfig)
	}
	return nil
}
