// Package config provides the configuration schema, loader, hot-reload
// watcher and classifier registry of the trafficear service.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SourceKind selects how a stream obtains its samples.
type SourceKind string

const (
	// SourceFloat32 reads raw little-endian float32 mono samples from a file
	// or, when the path is "-" or empty, from stdin.
	SourceFloat32 SourceKind = "float32"

	// SourceWAV reads a PCM WAV file, downmixed and resampled to the model
	// rate.
	SourceWAV SourceKind = "wav"
)

// IsValid reports whether k is a recognised source kind.
func (k SourceKind) IsValid() bool {
	return k == SourceFloat32 || k == SourceWAV
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr   = ":9090"
	DefaultSampleRate   = 16000
	DefaultHistoryDepth = 4
	DefaultCooldown     = 5
	DefaultFrameSeconds = 1.0
	DefaultOverlap      = 0.5
	DefaultWorkers      = 4
	DefaultTimeout      = 2 * time.Second
)

// DefaultLabels are the class names used when model.labels is omitted. Index
// 0 is the background class.
var DefaultLabels = []string{"Background", "Car", "Truck", "Bus", "Motorcycle"}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Model        ModelConfig        `yaml:"model"`
	Conditioning ConditioningConfig `yaml:"conditioning"`
	Voting       VotingConfig       `yaml:"voting"`
	Classifier   ClassifierEntry    `yaml:"classifier"`
	Fallbacks    []ClassifierEntry  `yaml:"fallbacks"`
	Streams      []StreamConfig     `yaml:"streams"`
	Framing      FramingConfig      `yaml:"framing"`
	Journal      JournalConfig      `yaml:"journal"`
	Hub          HubConfig          `yaml:"hub"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the metrics, health and websocket
	// endpoints. Default: ":9090".
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. It can be changed without a restart.
	LogLevel LogLevel `yaml:"log_level"`
}

// ModelConfig describes the contract of the classification model shared by
// all streams.
type ModelConfig struct {
	// SampleRate is the rate the model expects, in Hz. Default: 16000.
	SampleRate int `yaml:"sample_rate"`

	// BlockSize is the number of samples per classification cycle. Default:
	// one second at SampleRate.
	BlockSize int `yaml:"block_size"`

	// Labels names each class; its length is the class count. Default:
	// [DefaultLabels].
	Labels []string `yaml:"labels"`

	// NegativeClass is the index of the background class.
	NegativeClass int `yaml:"negative_class"`
}

// ConditioningConfig mirrors condition.Config.
type ConditioningConfig struct {
	TargetRMS          float64 `yaml:"target_rms"`
	PreEmphasis        float64 `yaml:"pre_emphasis"`
	DisablePreEmphasis bool    `yaml:"disable_pre_emphasis"`
}

// VotingConfig holds the decision engine parameters.
type VotingConfig struct {
	// HistoryDepth is the number of recent score vectors in the recent
	// window. Default: 4.
	HistoryDepth int `yaml:"history_depth"`

	// Cooldown is the number of cycles suppressed after start and after each
	// decision. nil selects the default of 5; 0 disables it.
	Cooldown *int `yaml:"cooldown"`
}

// CooldownCycles returns the effective cooldown.
func (v VotingConfig) CooldownCycles() int {
	if v.Cooldown == nil {
		return DefaultCooldown
	}
	return *v.Cooldown
}

// ClassifierEntry selects and configures one classifier backend. Name is
// looked up in the [Registry].
type ClassifierEntry struct {
	// Name selects the registered backend (e.g. "remote", "onnx").
	Name string `yaml:"name"`

	// BaseURL is the endpoint of a remote inference server.
	BaseURL string `yaml:"base_url"`

	// Model selects a model on the server, or the model file path for
	// local backends.
	Model string `yaml:"model"`

	// Timeout bounds one inference call. Default: 2s.
	Timeout time.Duration `yaml:"timeout"`

	// Quantize presents the backend as an int8-quantized classifier.
	Quantize QuantizeConfig `yaml:"quantize"`

	// Breaker tunes the circuit breaker guarding the backend.
	Breaker BreakerConfig `yaml:"breaker"`

	// Options holds backend-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// QuantizeConfig configures int8 score quantization.
type QuantizeConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Scale     float64 `yaml:"scale"`
	ZeroPoint int     `yaml:"zero_point"`
}

// BreakerConfig mirrors resilience.CircuitBreakerConfig. Zero values select
// the breaker defaults.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// StreamConfig declares one independent audio stream.
type StreamConfig struct {
	Name   string       `yaml:"name"`
	Source SourceConfig `yaml:"source"`
}

// SourceConfig selects the sample source of a stream.
type SourceConfig struct {
	Kind SourceKind `yaml:"kind"`
	Path string     `yaml:"path"`
}

// FramingConfig configures the offline dataset generator.
type FramingConfig struct {
	FrameSeconds   float64 `yaml:"frame_seconds"`
	OverlapSeconds float64 `yaml:"overlap_seconds"`
	Workers        int     `yaml:"workers"`
}

// JournalConfig configures the PostgreSQL decision journal. An empty DSN
// disables it.
type JournalConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
}

// HubConfig configures the websocket decision broadcast.
type HubConfig struct {
	Enabled          bool     `yaml:"enabled"`
	SubscriberBuffer int      `yaml:"subscriber_buffer"`
	OriginPatterns   []string `yaml:"origin_patterns"`
}
