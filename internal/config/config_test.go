package config_test

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/trafficear/internal/config"
)

const fullYAML = `
server:
  listen_addr: ":8081"
  log_level: debug
model:
  sample_rate: 16000
  block_size: 8000
  labels: [Background, Car, Truck, Bus, Motorcycle]
  negative_class: 0
conditioning:
  target_rms: 0.25
  pre_emphasis: 0.95
voting:
  history_depth: 6
  cooldown: 0
classifier:
  name: remote
  base_url: "http://inference:8088"
  model: vehicles-v3
  timeout: 750ms
  quantize:
    enabled: true
    scale: 0.00390625
    zero_point: -128
  breaker:
    max_failures: 3
    reset_timeout: 30s
fallbacks:
  - name: remote
    base_url: "http://inference-b:8088"
    quantize:
      enabled: true
streams:
  - name: kerb-north
    source:
      kind: wav
      path: /data/north.wav
  - name: live
    source:
      kind: float32
      path: "-"
framing:
  frame_seconds: 2
  overlap_seconds: 1
  workers: 8
journal:
  postgres_dsn: "postgres://localhost/trafficear"
hub:
  enabled: true
  subscriber_buffer: 64
`

func TestLoadFromReader_Full(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":8081" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Model.BlockSize != 8000 || len(cfg.Model.Labels) != 5 {
		t.Errorf("model = %+v", cfg.Model)
	}
	if cfg.Voting.HistoryDepth != 6 || cfg.Voting.CooldownCycles() != 0 {
		t.Errorf("voting = %+v, cooldown %d", cfg.Voting, cfg.Voting.CooldownCycles())
	}
	c := cfg.Classifier
	if c.Timeout != 750*time.Millisecond || !c.Quantize.Enabled || c.Quantize.ZeroPoint != -128 {
		t.Errorf("classifier = %+v", c)
	}
	if c.Breaker.MaxFailures != 3 || c.Breaker.ResetTimeout != 30*time.Second {
		t.Errorf("breaker = %+v", c.Breaker)
	}
	if len(cfg.Fallbacks) != 1 || cfg.Fallbacks[0].Timeout != config.DefaultTimeout {
		t.Errorf("fallbacks = %+v, want one with default timeout", cfg.Fallbacks)
	}
	if len(cfg.Streams) != 2 || cfg.Streams[0].Source.Kind != config.SourceWAV {
		t.Errorf("streams = %+v", cfg.Streams)
	}
	if cfg.Framing.Workers != 8 || cfg.Hub.SubscriberBuffer != 64 || cfg.Journal.PostgresDSN == "" {
		t.Errorf("framing/hub/journal = %+v %+v %+v", cfg.Framing, cfg.Hub, cfg.Journal)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(`
model:
  labels: [Background, Car]
classifier:
  name: remote
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != config.DefaultListenAddr || cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Model.SampleRate != 16000 || cfg.Model.BlockSize != 16000 {
		t.Errorf("model = %+v, want one-second blocks at 16 kHz", cfg.Model)
	}
	if cfg.Voting.HistoryDepth != 4 || cfg.Voting.CooldownCycles() != 5 {
		t.Errorf("voting defaults = %+v", cfg.Voting)
	}
	want := []config.StreamConfig{{Name: "stdin", Source: config.SourceConfig{Kind: config.SourceFloat32, Path: "-"}}}
	if !slices.Equal(cfg.Streams, want) {
		t.Errorf("streams = %+v, want %+v", cfg.Streams, want)
	}
	if cfg.Framing != (config.FramingConfig{FrameSeconds: 1, OverlapSeconds: 0.5, Workers: 4}) {
		t.Errorf("framing = %+v", cfg.Framing)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("model:\n  lables: [a, b]\n"))
	if err == nil || !strings.Contains(err.Error(), "lables") {
		t.Fatalf("err = %v, want unknown field error", err)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "trafficear.yaml")
	if err := os.WriteFile(path, []byte(fullYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := config.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFromReader_DefaultLabels(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("classifier:\n  name: remote\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if !slices.Equal(cfg.Model.Labels, config.DefaultLabels) || cfg.Model.NegativeClass != 0 {
		t.Errorf("labels = %v, negative = %d", cfg.Model.Labels, cfg.Model.NegativeClass)
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := config.Load(filepath.Join("..", "..", "configs", "trafficear.example.yaml"))
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	if len(cfg.Streams) != 2 || len(cfg.Fallbacks) != 1 {
		t.Errorf("streams = %d, fallbacks = %d, want 2 and 1", len(cfg.Streams), len(cfg.Fallbacks))
	}
	if cfg.Fallbacks[0].Timeout != config.DefaultTimeout {
		t.Errorf("fallback timeout = %v, want default %v", cfg.Fallbacks[0].Timeout, config.DefaultTimeout)
	}
}
