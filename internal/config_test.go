package internal

import (
	"strings"
	"testing"
	"time"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestWorkerConfig_Validation(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Worker.MaxConcurrentJobs = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("max_concurrent_jobs 0 should fail")
	}

	cfg = NewDefaultConfig()
	cfg.Worker.PollIntervalSec = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("poll_interval_sec 0 should fail")
	}
}

func TestWorkerConfig_ToIngest(t *testing.T) {
	cfg := WorkerConfig{
		PollIntervalSec:    7,
		MaxConcurrentJobs:  3,
		RetryDelaysSec:     []int{1, 10},
		ShutdownTimeoutSec: 5,
	}
	got := cfg.ToIngest()
	if got.PollInterval != 7*time.Second {
		t.Errorf("poll interval = %v", got.PollInterval)
	}
	if got.MaxConcurrentJobs != 3 {
		t.Errorf("max concurrent = %d", got.MaxConcurrentJobs)
	}
	if len(got.RetryDelays) != 2 || got.RetryDelays[1] != 10*time.Second {
		t.Errorf("retry delays = %v", got.RetryDelays)
	}
	if got.ShutdownTimeout != 5*time.Second {
		t.Errorf("shutdown timeout = %v", got.ShutdownTimeout)
	}
}

func TestPipelineConfig_OnDelete(t *testing.T) {
	cfg := PipelineConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty on_delete should default: %v", err)
	}
	if cfg.OnDelete != "delete" {
		t.Errorf("on_delete = %q, want delete", cfg.OnDelete)
	}

	cfg = PipelineConfig{OnDelete: "shred"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown on_delete should fail")
	}
}

func TestHTTPConfig_Address(t *testing.T) {
	cfg := HTTPConfig{Port: 9090}
	if got := cfg.Address(); got != ":9090" {
		t.Errorf("address = %q", got)
	}
	cfg.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("port 0 should fail validation")
	}
}
