package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func boolPtr(v bool) *bool {
	return &v
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromPathMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
identity:
  sealedSeedFile: /var/lib/lovefi/seed.sealed
client:
  target: agent11fzwj4mpq6dn97l9g50yn0ycez25fegk6q4qmrj
  endpoints:
    - " https://a.example/submit "
    - https://b.example/submit
    - https://a.example/submit
  envelopeTTL: 90s
  allowUnsignedResponse: true
receiver:
  listenAddr: 0.0.0.0:9000
  replayGuard: true
  metricsEnabled: false
`)
	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Identity.SealedSeedFile != "/var/lib/lovefi/seed.sealed" {
		t.Fatalf("unexpected sealed file %q", cfg.Identity.SealedSeedFile)
	}
	if cfg.Identity.SeedPhraseEnv != "LOVEFI_SEED_PHRASE" {
		t.Fatal("unset fields must keep defaults")
	}
	if len(cfg.Client.Endpoints) != 2 || cfg.Client.Endpoints[0] != "https://a.example/submit" {
		t.Fatalf("expected normalized endpoints, got %v", cfg.Client.Endpoints)
	}
	if cfg.Client.EnvelopeTTL != 90*time.Second {
		t.Fatalf("expected ttl 90s, got %s", cfg.Client.EnvelopeTTL)
	}
	if !cfg.Client.AllowUnsignedResponse {
		t.Fatal("expected allowUnsignedResponse from file")
	}
	if cfg.Client.RetryMaxAttempts != 3 {
		t.Fatalf("expected default retry attempts, got %d", cfg.Client.RetryMaxAttempts)
	}
	if cfg.Receiver.ListenAddr != "0.0.0.0:9000" || !cfg.Receiver.ReplayGuard || cfg.Receiver.MetricsEnabled {
		t.Fatalf("unexpected receiver config %+v", cfg.Receiver)
	}
	if err := cfg.ValidateClient(); err != nil {
		t.Fatalf("expected valid client config: %v", err)
	}
	if err := cfg.ValidateReceiver(); err != nil {
		t.Fatalf("expected valid receiver config: %v", err)
	}
}

func TestLoadFromPathErrors(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for missing explicit file, got %v", err)
	}
	path := writeConfig(t, "client:\n  tarrget: typo\n")
	if _, err := LoadFromPath(path); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for unknown key, got %v", err)
	}
}

func TestLoadFromPathWithoutFileUsesDefaults(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	cfg, err := LoadFromPath("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Receiver.ListenAddr != Default().Receiver.ListenAddr {
		t.Fatalf("expected defaults, got %+v", cfg.Receiver)
	}
}

func TestParseEmptyDocument(t *testing.T) {
	if _, err := Parse(nil); err != nil {
		t.Fatalf("empty config must parse: %v", err)
	}
}

func TestMergeAppliesExplicitBoolFalse(t *testing.T) {
	cfg := Default()
	cfg.Client.AllowUnsignedResponse = true
	cfg.Receiver.MetricsEnabled = true

	Merge(&cfg, File{})
	if !cfg.Client.AllowUnsignedResponse || !cfg.Receiver.MetricsEnabled {
		t.Fatal("unset bool fields must not overwrite existing values")
	}

	Merge(&cfg, File{
		Client:   ClientFile{AllowUnsignedResponse: boolPtr(false)},
		Receiver: ReceiverFile{MetricsEnabled: boolPtr(false)},
	})
	if cfg.Client.AllowUnsignedResponse || cfg.Receiver.MetricsEnabled {
		t.Fatal("explicit false must be applied")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvTarget, "agent11target")
	t.Setenv(EnvEndpoints, "http://x.example/submit, ,http://y.example/submit")
	t.Setenv(EnvEnvelopeTTL, "2m")
	t.Setenv(EnvRetryMaxAttempts, "99")
	t.Setenv(EnvReplayGuard, "on")
	t.Setenv(EnvTrustedKeys, "a2V5MQ==,a2V5Mg==")

	cfg := Default()
	ApplyEnvOverrides(&cfg)

	if cfg.Client.Target != "agent11target" {
		t.Fatalf("unexpected target %q", cfg.Client.Target)
	}
	if len(cfg.Client.Endpoints) != 2 {
		t.Fatalf("expected 2 endpoints, got %v", cfg.Client.Endpoints)
	}
	if cfg.Client.EnvelopeTTL != 2*time.Minute {
		t.Fatalf("expected ttl 2m, got %s", cfg.Client.EnvelopeTTL)
	}
	if cfg.Client.RetryMaxAttempts != 20 {
		t.Fatalf("expected retry attempts clamped to 20, got %d", cfg.Client.RetryMaxAttempts)
	}
	if !cfg.Receiver.ReplayGuard {
		t.Fatal("expected replay guard enabled from env")
	}
	if len(cfg.Receiver.TrustedKeys) != 2 || len(cfg.Client.TrustedKeys) != 2 {
		t.Fatal("trusted keys apply to both sides")
	}
}

func TestApplyEnvOverridesIgnoresInvalidValues(t *testing.T) {
	t.Setenv(EnvEnvelopeTTL, "soon")
	t.Setenv(EnvMetricsEnabled, "maybe")
	t.Setenv(EnvRetryMaxAttempts, "many")

	cfg := Default()
	ApplyEnvOverrides(&cfg)
	if cfg.Client.EnvelopeTTL != time.Hour {
		t.Fatalf("invalid ttl must keep default, got %s", cfg.Client.EnvelopeTTL)
	}
	if !cfg.Receiver.MetricsEnabled {
		t.Fatal("invalid bool must keep default")
	}
	if cfg.Client.RetryMaxAttempts != 3 {
		t.Fatalf("invalid int must keep default, got %d", cfg.Client.RetryMaxAttempts)
	}
}

func TestValidateClient(t *testing.T) {
	cfg := Default()
	if err := cfg.ValidateClient(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("missing target must fail, got %v", err)
	}
	cfg.Client.Endpoints = []string{"https://ok.example/submit"}
	for _, target := range []string{"agent11target", "cosmos1fzwj4mpq6dn97l9g50yn0ycez25fegk6q4qmrj", "agent11fzwj4mpq6dn97l9g50yn0ycez25fegk6q4qmrk"} {
		cfg.Client.Target = target
		if err := cfg.ValidateClient(); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("malformed target %q must fail, got %v", target, err)
		}
	}
	cfg.Client.Target = "agent11fzwj4mpq6dn97l9g50yn0ycez25fegk6q4qmrj"
	if err := cfg.ValidateClient(); err != nil {
		t.Fatalf("expected valid client config: %v", err)
	}
	cfg.Client.Endpoints = []string{"/relative"}
	if err := cfg.ValidateClient(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("relative endpoint must fail, got %v", err)
	}
	cfg.Client.Endpoints = []string{"https://ok.example/submit"}
	cfg.Client.EnvelopeTTL = 500 * time.Millisecond
	if err := cfg.ValidateClient(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("sub-second ttl must fail, got %v", err)
	}
}
