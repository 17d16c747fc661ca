package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const watcherYAML = `
server:
  log_level: info
model:
  labels: [Background, Car]
classifier:
  name: remote
`

func writeConfig(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestWatcher_ReloadsValidChanges(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "trafficear.yaml")
	base := time.Now().Add(-time.Hour)
	writeConfig(t, path, watcherYAML, base)

	var calls []Diff
	w, err := NewWatcher(path, func(_, _ *Config, d Diff) { calls = append(calls, d) })
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if w.Current().Server.LogLevel != LogInfo {
		t.Fatalf("initial log level = %q", w.Current().Server.LogLevel)
	}

	// Touch without content change.
	writeConfig(t, path, watcherYAML, base.Add(time.Minute))
	w.check()
	if len(calls) != 0 {
		t.Fatalf("onChange called for identical content")
	}

	writeConfig(t, path, strings.Replace(watcherYAML, "log_level: info", "log_level: debug", 1), base.Add(2*time.Minute))
	w.check()
	if len(calls) != 1 || !calls[0].LogLevelChanged || calls[0].NewLogLevel != LogDebug {
		t.Fatalf("calls = %+v, want one log level change", calls)
	}
	if w.Current().Server.LogLevel != LogDebug {
		t.Errorf("Current log level = %q, want debug", w.Current().Server.LogLevel)
	}

	// Invalid edit keeps the previous config.
	writeConfig(t, path, "server:\n  log_level: bananas\n", base.Add(3*time.Minute))
	w.check()
	if len(calls) != 1 || w.Current().Server.LogLevel != LogDebug {
		t.Errorf("invalid config was applied: calls=%d level=%q", len(calls), w.Current().Server.LogLevel)
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "trafficear.yaml")
	writeConfig(t, path, "model:\n  labels: [only]\n", time.Now())
	if _, err := NewWatcher(path, nil); err == nil {
		t.Fatal("expected error for invalid initial config")
	}
}

func TestWatcher_RunStopsOnCancel(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "trafficear.yaml")
	writeConfig(t, path, watcherYAML, time.Now())
	w, err := NewWatcher(path, nil, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
