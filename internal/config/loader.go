package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/trafficear/pkg/types"
)

// KnownClassifiers lists the built-in classifier backend names. [Validate]
// warns about names outside this list since they may be typos.
var KnownClassifiers = []string{"remote", "onnx"}

// Load reads, defaults and validates the YAML configuration file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Model.SampleRate == 0 {
		cfg.Model.SampleRate = DefaultSampleRate
	}
	if cfg.Model.BlockSize == 0 {
		cfg.Model.BlockSize = cfg.Model.SampleRate
	}
	if cfg.Model.Labels == nil {
		cfg.Model.Labels = slices.Clone(DefaultLabels)
	}
	if cfg.Voting.HistoryDepth == 0 {
		cfg.Voting.HistoryDepth = DefaultHistoryDepth
	}
	if cfg.Framing.FrameSeconds == 0 {
		cfg.Framing.FrameSeconds = DefaultFrameSeconds
	}
	if cfg.Framing.OverlapSeconds == 0 {
		cfg.Framing.OverlapSeconds = DefaultOverlap
	}
	if cfg.Framing.Workers == 0 {
		cfg.Framing.Workers = DefaultWorkers
	}
	defaultEntry(&cfg.Classifier)
	for i := range cfg.Fallbacks {
		defaultEntry(&cfg.Fallbacks[i])
	}
	for i := range cfg.Streams {
		if cfg.Streams[i].Source.Kind == "" {
			cfg.Streams[i].Source.Kind = SourceFloat32
		}
	}
	if len(cfg.Streams) == 0 {
		cfg.Streams = []StreamConfig{{Name: "stdin", Source: SourceConfig{Kind: SourceFloat32, Path: "-"}}}
	}
}

func defaultEntry(e *ClassifierEntry) {
	if e.Timeout == 0 {
		e.Timeout = DefaultTimeout
	}
}

// Validate checks that cfg is coherent. All failures are reported together;
// the returned error wraps [types.ErrInvalidConfiguration].
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	m := cfg.Model
	if m.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("model.sample_rate %d must be positive", m.SampleRate))
	}
	if m.BlockSize <= 0 {
		errs = append(errs, fmt.Errorf("model.block_size %d must be positive", m.BlockSize))
	}
	if len(m.Labels) < 2 {
		errs = append(errs, fmt.Errorf("model.labels needs at least 2 classes, got %d", len(m.Labels)))
	} else if m.NegativeClass < 0 || m.NegativeClass >= len(m.Labels) {
		errs = append(errs, fmt.Errorf("model.negative_class %d is out of range [0, %d)", m.NegativeClass, len(m.Labels)))
	}

	if cfg.Conditioning.TargetRMS < 0 {
		errs = append(errs, fmt.Errorf("conditioning.target_rms %.3f must not be negative", cfg.Conditioning.TargetRMS))
	}
	if a := cfg.Conditioning.PreEmphasis; a < 0 || a >= 1 {
		errs = append(errs, fmt.Errorf("conditioning.pre_emphasis %.3f is out of range [0, 1)", a))
	}

	if cfg.Voting.HistoryDepth <= 0 {
		errs = append(errs, fmt.Errorf("voting.history_depth %d must be positive", cfg.Voting.HistoryDepth))
	}
	if cfg.Voting.CooldownCycles() < 0 {
		errs = append(errs, fmt.Errorf("voting.cooldown %d must not be negative", cfg.Voting.CooldownCycles()))
	}

	errs = append(errs, validateEntry("classifier", cfg.Classifier)...)
	for i, fb := range cfg.Fallbacks {
		errs = append(errs, validateEntry(fmt.Sprintf("fallbacks[%d]", i), fb)...)
		if fb.Quantize.Enabled != cfg.Classifier.Quantize.Enabled {
			errs = append(errs, fmt.Errorf("fallbacks[%d].quantize.enabled must match classifier.quantize.enabled", i))
		}
	}

	seen := make(map[string]int, len(cfg.Streams))
	stdin := 0
	for i, s := range cfg.Streams {
		prefix := fmt.Sprintf("streams[%d]", i)
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else if prev, ok := seen[s.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of streams[%d]", prefix, s.Name, prev))
		} else {
			seen[s.Name] = i
		}
		if !s.Source.Kind.IsValid() {
			errs = append(errs, fmt.Errorf("%s.source.kind %q is invalid; valid values: float32, wav", prefix, s.Source.Kind))
		}
		if s.Source.Kind == SourceWAV && s.Source.Path == "" {
			errs = append(errs, fmt.Errorf("%s.source.path is required for wav sources", prefix))
		}
		if s.Source.Kind == SourceFloat32 && (s.Source.Path == "" || s.Source.Path == "-") {
			stdin++
		}
	}
	if stdin > 1 {
		errs = append(errs, fmt.Errorf("only one stream may read from stdin, %d do", stdin))
	}

	f := cfg.Framing
	if f.FrameSeconds <= 0 {
		errs = append(errs, fmt.Errorf("framing.frame_seconds %.3f must be positive", f.FrameSeconds))
	}
	if f.OverlapSeconds < 0 || f.OverlapSeconds >= f.FrameSeconds {
		errs = append(errs, fmt.Errorf("framing.overlap_seconds %.3f must be in [0, frame_seconds)", f.OverlapSeconds))
	}
	if f.Workers <= 0 {
		errs = append(errs, fmt.Errorf("framing.workers %d must be positive", f.Workers))
	}

	if cfg.Hub.SubscriberBuffer < 0 {
		errs = append(errs, fmt.Errorf("hub.subscriber_buffer %d must not be negative", cfg.Hub.SubscriberBuffer))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("config: %w: %w", types.ErrInvalidConfiguration, errors.Join(errs...))
}

func validateEntry(prefix string, e ClassifierEntry) []error {
	var errs []error
	if e.Name == "" {
		errs = append(errs, fmt.Errorf("%s.name is required", prefix))
	} else if !slices.Contains(KnownClassifiers, e.Name) {
		slog.Warn("unknown classifier name, may be a typo or a third-party backend",
			"entry", prefix, "name", e.Name, "known", KnownClassifiers)
	}
	if e.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%s.timeout %v must not be negative", prefix, e.Timeout))
	}
	if e.Quantize.Enabled && e.Quantize.Scale < 0 {
		errs = append(errs, fmt.Errorf("%s.quantize.scale %v must not be negative", prefix, e.Quantize.Scale))
	}
	if zp := e.Quantize.ZeroPoint; zp < -128 || zp > 127 {
		errs = append(errs, fmt.Errorf("%s.quantize.zero_point %d is out of int8 range", prefix, zp))
	}
	return errs
}
