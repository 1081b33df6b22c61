package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvTarget                = "LOVEFI_TARGET"
	EnvEndpoints             = "LOVEFI_ENDPOINTS"
	EnvRequestTimeout        = "LOVEFI_REQUEST_TIMEOUT"
	EnvEnvelopeTTL           = "LOVEFI_ENVELOPE_TTL"
	EnvRetryMaxAttempts      = "LOVEFI_RETRY_MAX_ATTEMPTS"
	EnvAllowUnsignedResponse = "LOVEFI_ALLOW_UNSIGNED_RESPONSE"
	EnvTrustedKeys           = "LOVEFI_TRUSTED_KEYS"
	EnvSealedSeedFile        = "LOVEFI_SEALED_SEED_FILE"
	EnvListenAddr            = "LOVEFI_LISTEN_ADDR"
	EnvExpectedSender        = "LOVEFI_EXPECTED_SENDER"
	EnvReplayGuard           = "LOVEFI_REPLAY_GUARD"
	EnvMetricsEnabled        = "LOVEFI_METRICS_ENABLED"
)

// ApplyEnvOverrides lets the environment win over file values. Unparseable
// values are ignored and the previous value kept.
func ApplyEnvOverrides(cfg *Config) {
	setString(&cfg.Identity.SealedSeedFile, envString(EnvSealedSeedFile))

	setString(&cfg.Client.Target, envString(EnvTarget))
	if endpoints := envCSV(EnvEndpoints); endpoints != nil {
		cfg.Client.Endpoints = normalizeList(endpoints)
	}
	cfg.Client.RequestTimeout = envDurationWithFallback(EnvRequestTimeout, cfg.Client.RequestTimeout)
	cfg.Client.EnvelopeTTL = envDurationWithFallback(EnvEnvelopeTTL, cfg.Client.EnvelopeTTL)
	cfg.Client.RetryMaxAttempts = envBoundedIntWithFallback(EnvRetryMaxAttempts, cfg.Client.RetryMaxAttempts, 1, 20)
	cfg.Client.AllowUnsignedResponse = envBoolWithFallback(EnvAllowUnsignedResponse, cfg.Client.AllowUnsignedResponse)
	if keys := envCSV(EnvTrustedKeys); keys != nil {
		cfg.Client.TrustedKeys = normalizeList(keys)
		cfg.Receiver.TrustedKeys = normalizeList(keys)
	}

	setString(&cfg.Receiver.ListenAddr, envString(EnvListenAddr))
	setString(&cfg.Receiver.ExpectedSender, envString(EnvExpectedSender))
	cfg.Receiver.ReplayGuard = envBoolWithFallback(EnvReplayGuard, cfg.Receiver.ReplayGuard)
	cfg.Receiver.MetricsEnabled = envBoolWithFallback(EnvMetricsEnabled, cfg.Receiver.MetricsEnabled)
}

func envString(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envCSV(key string) []string {
	raw := envString(key)
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func envBoolWithFallback(key string, fallback bool) bool {
	switch strings.ToLower(envString(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envBoundedIntWithFallback(key string, fallback, min, max int) int {
	raw := envString(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func envDurationWithFallback(key string, fallback time.Duration) time.Duration {
	raw := envString(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
