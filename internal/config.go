package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/laguz/internal/ingest"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Vault    VaultConfig       `yaml:"vault"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Auth     AuthConfig        `yaml:"auth"`
	Watcher  WatcherConfig     `yaml:"watcher"`
	Worker   WorkerConfig      `yaml:"worker"`
	Pipeline PipelineConfig    `yaml:"pipeline"`
	Provider ProviderConfig    `yaml:"provider"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []interface{ Validate() error }{
		&c.App, &c.Vault, &c.SQLite, &c.Auth, &c.Watcher, &c.Worker, &c.Pipeline, &c.Provider,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the watched document root.
type VaultConfig struct {
	Path       string   `yaml:"path"`
	IgnoreDirs []string `yaml:"ignore_dirs"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds the database file locations: one for file records,
// one for the document/chunk store.
type SQLiteConfig struct {
	RecordsPath   string `yaml:"records_path"`
	DocumentsPath string `yaml:"documents_path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.RecordsPath, validation.Required),
		validation.Field(&c.DocumentsPath, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// WatcherConfig controls the best-effort filesystem watcher.
type WatcherConfig struct {
	Enabled    bool `yaml:"enabled"`
	DebounceMS int  `yaml:"debounce_ms"`
}

// Debounce returns the debounce window.
func (c *WatcherConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// Validate validates the watcher configuration.
func (c *WatcherConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DebounceMS, validation.Min(0)),
	)
}

// WorkerConfig controls the background polling worker.
type WorkerConfig struct {
	PollIntervalSec    int   `yaml:"poll_interval_sec"`
	MaxConcurrentJobs  int   `yaml:"max_concurrent_jobs"`
	RetryDelaysSec     []int `yaml:"retry_delays_sec"`
	ShutdownTimeoutSec int   `yaml:"shutdown_timeout_sec"`
}

// Validate validates the worker configuration.
func (c *WorkerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.PollIntervalSec, validation.Min(1)),
		validation.Field(&c.MaxConcurrentJobs, validation.Min(1)),
		validation.Field(&c.ShutdownTimeoutSec, validation.Min(0)),
	)
}

// ToIngest converts to the ingest worker's parameter struct.
func (c *WorkerConfig) ToIngest() ingest.WorkerConfig {
	delays := make([]time.Duration, len(c.RetryDelaysSec))
	for i, s := range c.RetryDelaysSec {
		delays[i] = time.Duration(s) * time.Second
	}
	return ingest.WorkerConfig{
		PollInterval:      time.Duration(c.PollIntervalSec) * time.Second,
		MaxConcurrentJobs: c.MaxConcurrentJobs,
		RetryDelays:       delays,
		ShutdownTimeout:   time.Duration(c.ShutdownTimeoutSec) * time.Second,
	}
}

// PipelineConfig controls chunking and the deletion policy.
type PipelineConfig struct {
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	MaxPageChars int    `yaml:"max_page_chars"`
	OnDelete     string `yaml:"on_delete"` // "delete" or "orphan"
}

// Validate validates the pipeline configuration.
func (c *PipelineConfig) Validate() error {
	if c.OnDelete == "" {
		c.OnDelete = string(ingest.DeletePolicyDelete)
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.ChunkSize, validation.Min(0)),
		validation.Field(&c.ChunkOverlap, validation.Min(0)),
		validation.Field(&c.OnDelete, validation.In(
			string(ingest.DeletePolicyDelete), string(ingest.DeletePolicyOrphan))),
	)
}

// ProviderConfig configures the OpenAI-compatible AI endpoint.
type ProviderConfig struct {
	BaseURL        string `yaml:"base_url"`
	Token          string `yaml:"token"`
	EmbeddingModel string `yaml:"embedding_model"`
	VisionModel    string `yaml:"vision_model"`
	CallTimeoutSec int    `yaml:"call_timeout_sec"`
}

// Validate validates the provider configuration.
func (c *ProviderConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.EmbeddingModel, validation.Required),
		validation.Field(&c.VisionModel, validation.Required),
		validation.Field(&c.CallTimeoutSec, validation.Min(0)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path: "./vault",
		},
		SQLite: SQLiteConfig{
			RecordsPath:   "./laguz-records.db",
			DocumentsPath: "./laguz-documents.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Watcher: WatcherConfig{
			Enabled:    true,
			DebounceMS: 1000,
		},
		Worker: WorkerConfig{
			PollIntervalSec:    5,
			MaxConcurrentJobs:  2,
			RetryDelaysSec:     []int{60, 300, 900},
			ShutdownTimeoutSec: 30,
		},
		Pipeline: PipelineConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
			MaxPageChars: 8000,
			OnDelete:     string(ingest.DeletePolicyDelete),
		},
		Provider: ProviderConfig{
			EmbeddingModel: "text-embedding-3-small",
			VisionModel:    "gpt-4o-mini",
			CallTimeoutSec: 120,
		},
	}
}
