package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var defaultPaths = []string{
	"configs/agent.yaml",
	"agent.yaml",
}

// File mirrors the YAML layout. Pointer bools distinguish "unset" from false.
type File struct {
	Identity IdentityFile `yaml:"identity"`
	Client   ClientFile   `yaml:"client"`
	Receiver ReceiverFile `yaml:"receiver"`
}

type IdentityFile struct {
	SeedPhrase     string `yaml:"seedPhrase"`
	SeedPhraseEnv  string `yaml:"seedPhraseEnv"`
	SealedSeedFile string `yaml:"sealedSeedFile"`
	PassphraseEnv  string `yaml:"passphraseEnv"`
}

type ClientFile struct {
	Target                string        `yaml:"target"`
	Endpoints             []string      `yaml:"endpoints"`
	RequestTimeout        time.Duration `yaml:"requestTimeout"`
	EnvelopeTTL           time.Duration `yaml:"envelopeTTL"`
	RequestSchema         string        `yaml:"requestSchema"`
	ResponseSchema        string        `yaml:"responseSchema"`
	ProtocolDigest        string        `yaml:"protocolDigest"`
	RetryMaxAttempts      int           `yaml:"retryMaxAttempts"`
	RetryInitialBackoff   time.Duration `yaml:"retryInitialBackoff"`
	RetryMaxBackoff       time.Duration `yaml:"retryMaxBackoff"`
	SendRatePerSecond     float64       `yaml:"sendRatePerSecond"`
	SendBurst             int           `yaml:"sendBurst"`
	AllowUnsignedResponse *bool         `yaml:"allowUnsignedResponse"`
	TrustedKeys           []string      `yaml:"trustedKeys"`
}

type ReceiverFile struct {
	ListenAddr        string        `yaml:"listenAddr"`
	MaxBodyBytes      int64         `yaml:"maxBodyBytes"`
	RatePerSecond     float64       `yaml:"ratePerSecond"`
	Burst             int           `yaml:"burst"`
	ExpectedSender    string        `yaml:"expectedSender"`
	TrustedKeys       []string      `yaml:"trustedKeys"`
	ReplayGuard       *bool         `yaml:"replayGuard"`
	ReplayCapacity    uint64        `yaml:"replayCapacity"`
	ResponseTTL       time.Duration `yaml:"responseTTL"`
	MetricsEnabled    *bool         `yaml:"metricsEnabled"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
}

// LoadFromPath reads configPath, or the first default path that exists when
// configPath is empty, merges it over Default and applies env overrides. A
// missing explicit path or a parse error is returned; missing defaults are not.
func LoadFromPath(configPath string) (Config, error) {
	cfg := Default()

	candidates := defaultPaths
	explicit := strings.TrimSpace(configPath) != ""
	if explicit {
		candidates = []string{configPath}
	}
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if !explicit && errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Config{}, fmt.Errorf("%w: read %s: %v", ErrInvalidConfig, path, err)
		}
		parsed, err := Parse(data)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
		Merge(&cfg, parsed)
		break
	}
	ApplyEnvOverrides(&cfg)
	return cfg, nil
}

// Parse decodes YAML strictly: unknown keys are errors.
func Parse(data []byte) (File, error) {
	var parsed File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&parsed); err != nil && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return parsed, nil
}

func Merge(dst *Config, src File) {
	mergeIdentity(&dst.Identity, src.Identity)
	mergeClient(&dst.Client, src.Client)
	mergeReceiver(&dst.Receiver, src.Receiver)
}

func mergeIdentity(dst *IdentityConfig, src IdentityFile) {
	setString(&dst.SeedPhrase, src.SeedPhrase)
	setString(&dst.SeedPhraseEnv, src.SeedPhraseEnv)
	setString(&dst.SealedSeedFile, src.SealedSeedFile)
	setString(&dst.PassphraseEnv, src.PassphraseEnv)
}

func mergeClient(dst *ClientConfig, src ClientFile) {
	setString(&dst.Target, src.Target)
	if src.Endpoints != nil {
		dst.Endpoints = normalizeList(src.Endpoints)
	}
	setDuration(&dst.RequestTimeout, src.RequestTimeout)
	setDuration(&dst.EnvelopeTTL, src.EnvelopeTTL)
	setString(&dst.RequestSchema, src.RequestSchema)
	setString(&dst.ResponseSchema, src.ResponseSchema)
	setString(&dst.ProtocolDigest, src.ProtocolDigest)
	if src.RetryMaxAttempts != 0 {
		dst.RetryMaxAttempts = src.RetryMaxAttempts
	}
	setDuration(&dst.RetryInitialBackoff, src.RetryInitialBackoff)
	setDuration(&dst.RetryMaxBackoff, src.RetryMaxBackoff)
	if src.SendRatePerSecond != 0 {
		dst.SendRatePerSecond = src.SendRatePerSecond
	}
	if src.SendBurst != 0 {
		dst.SendBurst = src.SendBurst
	}
	if src.AllowUnsignedResponse != nil {
		dst.AllowUnsignedResponse = *src.AllowUnsignedResponse
	}
	if src.TrustedKeys != nil {
		dst.TrustedKeys = normalizeList(src.TrustedKeys)
	}
}

func mergeReceiver(dst *ReceiverConfig, src ReceiverFile) {
	setString(&dst.ListenAddr, src.ListenAddr)
	if src.MaxBodyBytes != 0 {
		dst.MaxBodyBytes = src.MaxBodyBytes
	}
	if src.RatePerSecond != 0 {
		dst.RatePerSecond = src.RatePerSecond
	}
	if src.Burst != 0 {
		dst.Burst = src.Burst
	}
	setString(&dst.ExpectedSender, src.ExpectedSender)
	if src.TrustedKeys != nil {
		dst.TrustedKeys = normalizeList(src.TrustedKeys)
	}
	if src.ReplayGuard != nil {
		dst.ReplayGuard = *src.ReplayGuard
	}
	if src.ReplayCapacity != 0 {
		dst.ReplayCapacity = src.ReplayCapacity
	}
	setDuration(&dst.ResponseTTL, src.ResponseTTL)
	if src.MetricsEnabled != nil {
		dst.MetricsEnabled = *src.MetricsEnabled
	}
	setDuration(&dst.ShutdownTimeout, src.ShutdownTimeout)
	setDuration(&dst.ReadHeaderTimeout, src.ReadHeaderTimeout)
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

// normalizeList trims, drops blanks and dedupes, keeping first occurrence.
func normalizeList(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
