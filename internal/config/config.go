// Package config provides the configuration structure for talktwin.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"
)

// Environment variables that override secrets kept out of project.toml.
const (
	EnvCloudAPIKey      = "GOOGLE_TTS_API_KEY"
	EnvCloudCredentials = "GOOGLE_APPLICATION_CREDENTIALS"
)

// Default values.
const (
	defaultMaxChunkLength    = 2000
	defaultGapPolicy         = "silence"
	defaultSilencePerCharMS  = 60
	defaultChunkTimeout      = 300
	defaultHealthTimeout     = 10
	defaultWebAddress        = ":8501"
	defaultMaxUploadMB       = 50
	defaultWebTitle          = "TalkTwin"
	defaultLanguage          = "en"
	defaultNarrationSubject  = "narration.requested"
	defaultNarrationQueue    = "narrators"
	defaultObjectStoreBucket = "NARRATIONS"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir  string `toml:"base_logs_dir"`
	WorkspaceDir string `toml:"workspace_dir"`
}

// PipelineConfig holds chunking and gap handling settings.
type PipelineConfig struct {
	MaxChunkLength      int    `toml:"max_chunk_length"`
	GapPolicy           string `toml:"gap_policy"`
	SilencePerCharMS    int    `toml:"silence_per_char_ms"`
	ChunkTimeoutSeconds int    `toml:"chunk_timeout_seconds"`
}

// TTSServiceConfig holds the multi-speaker synthesis and voice conversion
// HTTP service.
type TTSServiceConfig struct {
	Enabled              bool    `toml:"enabled"`
	URL                  string  `toml:"url"`
	Language             string  `toml:"language"`
	Temperature          float64 `toml:"temperature"`
	TimeoutSeconds       int     `toml:"timeout_seconds"`
	HealthTimeoutSeconds int     `toml:"health_timeout_seconds"`
}

// CoquiConfig holds the local Coqui command line used without the service.
type CoquiConfig struct {
	Enabled         bool   `toml:"enabled"`
	Binary          string `toml:"binary"`
	Model           string `toml:"model"`
	ConversionModel string `toml:"conversion_model"`
}

// CloudTTSConfig holds the Google Cloud Text-to-Speech fallback.
type CloudTTSConfig struct {
	Enabled         bool    `toml:"enabled"`
	APIKey          string  `toml:"api_key"`
	CredentialsFile string  `toml:"credentials_file"`
	Endpoint        string  `toml:"endpoint"`
	SampleRate      int     `toml:"sample_rate"`
	SpeakingRate    float64 `toml:"speaking_rate"`
}

// WebConfig holds the web UI settings.
type WebConfig struct {
	Address        string `toml:"address"`
	Title          string `toml:"title"`
	LogoPath       string `toml:"logo_path"`
	StylesheetPath string `toml:"stylesheet_path"`
	MaxUploadMB    int    `toml:"max_upload_mb"`
}

// NATSConfig holds the optional job queue and artifact store.
type NATSConfig struct {
	Enabled           bool   `toml:"enabled"`
	URL               string `toml:"url"`
	NarrationSubject  string `toml:"narration_subject"`
	QueueGroup        string `toml:"queue_group"`
	ObjectStoreBucket string `toml:"object_store_bucket"`
}

// Config is the root configuration structure.
type Config struct {
	Paths    PathsConfig      `toml:"paths"`
	Pipeline PipelineConfig   `toml:"pipeline"`
	TTS      TTSServiceConfig `toml:"tts_service"`
	Coqui    CoquiConfig      `toml:"coqui"`
	CloudTTS CloudTTSConfig   `toml:"cloud_tts"`
	Web      WebConfig        `toml:"web"`
	NATS     NATSConfig       `toml:"nats"`
}

// Load loads the project configuration through the central configurator.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return finish(&cfg)
}

// LoadFile loads the configuration from an explicit TOML file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes TOML, applies defaults and environment overrides, and
// validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	err := toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyDefaults()
	cfg.ApplyEnv(os.LookupEnv)

	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyDefaults fills every unset optional value.
func (c *Config) ApplyDefaults() {
	if c.Paths.BaseLogsDir == "" {
		c.Paths.BaseLogsDir = os.TempDir()
	}

	if c.Paths.WorkspaceDir == "" {
		c.Paths.WorkspaceDir = os.TempDir()
	}

	if c.Pipeline.MaxChunkLength == 0 {
		c.Pipeline.MaxChunkLength = defaultMaxChunkLength
	}

	if c.Pipeline.GapPolicy == "" {
		c.Pipeline.GapPolicy = defaultGapPolicy
	}

	if c.Pipeline.SilencePerCharMS == 0 {
		c.Pipeline.SilencePerCharMS = defaultSilencePerCharMS
	}

	if c.Pipeline.ChunkTimeoutSeconds == 0 {
		c.Pipeline.ChunkTimeoutSeconds = defaultChunkTimeout
	}

	if c.TTS.Language == "" {
		c.TTS.Language = defaultLanguage
	}

	if c.TTS.TimeoutSeconds == 0 {
		c.TTS.TimeoutSeconds = defaultChunkTimeout
	}

	if c.TTS.HealthTimeoutSeconds == 0 {
		c.TTS.HealthTimeoutSeconds = defaultHealthTimeout
	}

	c.applyWebDefaults()
	c.applyNATSDefaults()
}

func (c *Config) applyWebDefaults() {
	if c.Web.Address == "" {
		c.Web.Address = defaultWebAddress
	}

	if c.Web.Title == "" {
		c.Web.Title = defaultWebTitle
	}

	if c.Web.MaxUploadMB == 0 {
		c.Web.MaxUploadMB = defaultMaxUploadMB
	}
}

func (c *Config) applyNATSDefaults() {
	if c.NATS.NarrationSubject == "" {
		c.NATS.NarrationSubject = defaultNarrationSubject
	}

	if c.NATS.QueueGroup == "" {
		c.NATS.QueueGroup = defaultNarrationQueue
	}

	if c.NATS.ObjectStoreBucket == "" {
		c.NATS.ObjectStoreBucket = defaultObjectStoreBucket
	}
}

// ApplyEnv lets the environment supply cloud credentials.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if value, ok := lookup(EnvCloudAPIKey); ok && value != "" {
		c.CloudTTS.APIKey = value
	}

	if value, ok := lookup(EnvCloudCredentials); ok && value != "" && c.CloudTTS.CredentialsFile == "" {
		c.CloudTTS.CredentialsFile = value
	}
}

// Validate fails fast on settings no pass could run with.
func (c *Config) Validate() error {
	var problems []error

	if c.Pipeline.MaxChunkLength <= 0 {
		problems = append(problems, errors.New("pipeline.max_chunk_length must be positive"))
	}

	if c.Pipeline.GapPolicy != "silence" && c.Pipeline.GapPolicy != "skip" {
		problems = append(problems, fmt.Errorf("pipeline.gap_policy must be silence or skip, got %q", c.Pipeline.GapPolicy))
	}

	if c.Pipeline.SilencePerCharMS < 0 || c.Pipeline.ChunkTimeoutSeconds < 0 ||
		c.TTS.TimeoutSeconds < 0 || c.TTS.HealthTimeoutSeconds < 0 {
		problems = append(problems, errors.New("durations must not be negative"))
	}

	if !c.TTS.Enabled && !c.Coqui.Enabled && !c.CloudTTS.Enabled {
		problems = append(problems, errors.New("at least one of tts_service, coqui or cloud_tts must be enabled"))
	}

	if c.TTS.Enabled && c.TTS.URL == "" {
		problems = append(problems, errors.New("tts_service.url is required"))
	}

	if c.Coqui.Enabled && (c.Coqui.Binary == "" || c.Coqui.Model == "") {
		problems = append(problems, errors.New("coqui.binary and coqui.model are required"))
	}

	if c.Web.MaxUploadMB < 0 {
		problems = append(problems, errors.New("web.max_upload_mb must not be negative"))
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		problems = append(problems, errors.New("nats.url is required"))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(problems...))
	}

	return nil
}

// ChunkTimeout bounds a single backend call.
func (c *Config) ChunkTimeout() time.Duration {
	return time.Duration(c.Pipeline.ChunkTimeoutSeconds) * time.Second
}

// SilencePerChar is the gap silence per character of a skipped chunk.
func (c *Config) SilencePerChar() time.Duration {
	return time.Duration(c.Pipeline.SilencePerCharMS) * time.Millisecond
}

// ServiceTimeout bounds a request to the speech service.
func (c *Config) ServiceTimeout() time.Duration {
	return time.Duration(c.TTS.TimeoutSeconds) * time.Second
}

// HealthTimeout bounds a backend health check.
func (c *Config) HealthTimeout() time.Duration {
	return time.Duration(c.TTS.HealthTimeoutSeconds) * time.Second
}

// MaxUploadBytes is the largest accepted request body.
func (c *Config) MaxUploadBytes() int {
	return c.Web.MaxUploadMB << 20
}
