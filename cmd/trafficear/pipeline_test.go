package main

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/trafficear/internal/config"
	"github.com/MrWong99/trafficear/internal/observe"
	"github.com/MrWong99/trafficear/internal/stream"
	"github.com/MrWong99/trafficear/pkg/types"
)

const blockSize = 8

var (
	background = []float32{0.9, 0.05, 0.03, 0.02}
	truck      = []float32{0.1, 0.1, 0.7, 0.1}
)

// passingTruck answers 10 background, 30 truck, then background cycles, and
// serves /healthz.
func passingTruck(t *testing.T) *httptest.Server {
	t.Helper()
	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/classify", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Samples []float32 `json:"samples"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Samples) != blockSize {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		scores := background
		if n := calls.Add(1); n > 10 && n <= 40 {
			scores = truck
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"scores": scores})
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func failing(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeSamples(t *testing.T, blocks int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kerb.f32")
	samples := make([]float32, blocks*blockSize)
	for i := range samples {
		samples[i] = float32(i%4) * 0.1
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := binary.Write(f, binary.LittleEndian, samples); err != nil {
		t.Fatal(err)
	}
	return path
}

func loadConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader())))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func baseYAML(primaryURL, path string, quantize bool) string {
	return fmt.Sprintf(`
model:
  sample_rate: 100
  block_size: %d
  labels: [Background, Car, Truck, Bus]
classifier:
  name: remote
  base_url: %s
  quantize:
    enabled: %t
streams:
  - name: kerb
    source:
      kind: float32
      path: %s
`, blockSize, primaryURL, quantize, path)
}

func runPipeline(t *testing.T, p pipeline) ([]types.Decision, stream.Stats) {
	t.Helper()
	var got []types.Decision
	stats, err := p.run(context.Background(), stream.SinkFunc(func(_ context.Context, d types.Decision) error {
		got = append(got, d)
		return nil
	}))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return got, stats
}

func checkPassingTruck(t *testing.T, got []types.Decision) {
	t.Helper()
	if len(got) != 2 {
		t.Fatalf("decisions = %+v, want 2", got)
	}
	if got[0].Label != "Background" || got[0].Cycle != 13 {
		t.Errorf("first decision = %+v, want Background at cycle 13", got[0])
	}
	if got[1].Label != "Truck" || got[1].Cycle != 42 || got[1].Stream != "kerb" {
		t.Errorf("second decision = %+v, want Truck at cycle 42 on kerb", got[1])
	}
}

func TestBuildPipeline_RemoteFloat(t *testing.T) {
	srv := passingTruck(t)
	cfg := loadConfig(t, baseYAML(srv.URL, writeSamples(t, 70), false))

	reg := config.NewRegistry()
	registerBuiltinClassifiers(reg)
	p, err := buildPipeline(cfg, cfg.Streams[0], reg, testMetrics(t))
	if err != nil {
		t.Fatalf("buildPipeline: %v", err)
	}
	defer p.close()

	if p.name() != "kerb" {
		t.Errorf("name = %q, want kerb", p.name())
	}
	got, stats := runPipeline(t, p)
	if stats.Cycles != 70 || stats.Skipped != 0 {
		t.Errorf("stats = %+v, want 70 cycles and none skipped", stats)
	}
	checkPassingTruck(t, got)
}

func TestBuildPipeline_Quantized(t *testing.T) {
	srv := passingTruck(t)
	cfg := loadConfig(t, baseYAML(srv.URL, writeSamples(t, 70), true))

	reg := config.NewRegistry()
	registerBuiltinClassifiers(reg)
	p, err := buildPipeline(cfg, cfg.Streams[0], reg, testMetrics(t))
	if err != nil {
		t.Fatalf("buildPipeline: %v", err)
	}
	defer p.close()

	if _, ok := p.(*streamPipeline[int64]); !ok {
		t.Fatalf("pipeline type = %T, want *streamPipeline[int64]", p)
	}
	got, _ := runPipeline(t, p)
	checkPassingTruck(t, got)
}

func TestBuildPipeline_FailsOverToFallback(t *testing.T) {
	primary := failing(t)
	fallback := passingTruck(t)
	yaml := baseYAML(primary.URL, writeSamples(t, 70), false) + fmt.Sprintf(`
fallbacks:
  - name: remote
    base_url: %s
`, fallback.URL)
	cfg := loadConfig(t, yaml)

	reg := config.NewRegistry()
	registerBuiltinClassifiers(reg)
	p, err := buildPipeline(cfg, cfg.Streams[0], reg, testMetrics(t))
	if err != nil {
		t.Fatalf("buildPipeline: %v", err)
	}
	defer p.close()

	got, stats := runPipeline(t, p)
	if stats.Skipped != 0 {
		t.Errorf("skipped = %d, want 0 with a healthy fallback", stats.Skipped)
	}
	checkPassingTruck(t, got)

	var names []string
	failed := map[string]bool{}
	for _, c := range p.checkers() {
		names = append(names, c.Name)
		failed[c.Name] = c.Check(context.Background()) != nil
	}
	want := []string{
		"classifier:kerb/primary:remote",
		"classifier:kerb/fallback1:remote",
		"breaker:kerb/primary:remote",
		"breaker:kerb/fallback1:remote",
	}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Fatalf("checkers = %v, want %v", names, want)
	}
	// The failing server answers 500 on /healthz too, and its breaker is open.
	if !failed["classifier:kerb/primary:remote"] || !failed["breaker:kerb/primary:remote"] {
		t.Errorf("primary checks should fail: %v", failed)
	}
	if failed["classifier:kerb/fallback1:remote"] || failed["breaker:kerb/fallback1:remote"] {
		t.Errorf("fallback checks should pass: %v", failed)
	}
}

func TestBuildPipeline_UnknownBackend(t *testing.T) {
	cfg := loadConfig(t, strings.Replace(baseYAML("http://127.0.0.1:1", writeSamples(t, 1), false), "name: remote", "name: wasm", 1))

	reg := config.NewRegistry()
	registerBuiltinClassifiers(reg)
	if _, err := buildPipeline(cfg, cfg.Streams[0], reg, testMetrics(t)); err == nil {
		t.Fatal("expected error for unregistered backend")
	}
}

func TestOpenSource_MissingFile(t *testing.T) {
	_, _, err := openSource(config.SourceConfig{Kind: config.SourceWAV, Path: filepath.Join(t.TempDir(), "absent.wav")}, 16000)
	if err == nil {
		t.Fatal("expected error for missing wav")
	}
	_, _, err = openSource(config.SourceConfig{Kind: config.SourceFloat32, Path: filepath.Join(t.TempDir(), "absent.f32")}, 16000)
	if err == nil {
		t.Fatal("expected error for missing float32 file")
	}
}

func TestBackendName(t *testing.T) {
	if got := backendName("kerb", 0, "remote"); got != "kerb/primary:remote" {
		t.Errorf("primary = %q", got)
	}
	if got := backendName("kerb", 2, "onnx"); got != "kerb/fallback2:onnx" {
		t.Errorf("fallback = %q", got)
	}
}

func TestSlogLevel(t *testing.T) {
	tests := map[config.LogLevel]string{
		config.LogDebug: "DEBUG",
		config.LogInfo:  "INFO",
		config.LogWarn:  "WARN",
		config.LogError: "ERROR",
		"":              "INFO",
	}
	for in, want := range tests {
		if got := slogLevel(in).String(); got != want {
			t.Errorf("slogLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
