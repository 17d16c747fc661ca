package config_test

import (
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/trafficear/internal/config"
)

func mustLoad(t *testing.T, y string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(y))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

func TestCompare(t *testing.T) {
	t.Parallel()
	base := mustLoad(t, fullYAML)

	tests := []struct {
		name        string
		mutate      func(*config.Config)
		wantLevel   bool
		wantRestart []string
	}{
		{"identical", func(*config.Config) {}, false, nil},
		{"log level", func(c *config.Config) { c.Server.LogLevel = config.LogWarn }, true, nil},
		{"labels", func(c *config.Config) { c.Model.Labels = append(slices.Clone(c.Model.Labels), "Tram") }, false, []string{"model"}},
		{"cooldown", func(c *config.Config) { n := 3; c.Voting.Cooldown = &n }, false, []string{"voting"}},
		{"classifier options only", func(c *config.Config) { c.Classifier.Options = map[string]any{"k": 1} }, false, nil},
		{"classifier url and streams", func(c *config.Config) {
			c.Classifier.BaseURL = "http://other:8088"
			c.Streams = c.Streams[:1]
		}, false, []string{"classifier", "streams"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			next := mustLoad(t, fullYAML)
			tt.mutate(next)
			d := config.Compare(base, next)
			if d.LogLevelChanged != tt.wantLevel {
				t.Errorf("LogLevelChanged = %v, want %v", d.LogLevelChanged, tt.wantLevel)
			}
			if tt.wantLevel && d.NewLogLevel != config.LogWarn {
				t.Errorf("NewLogLevel = %q", d.NewLogLevel)
			}
			if !slices.Equal(d.RestartRequired, tt.wantRestart) {
				t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, tt.wantRestart)
			}
			if d.Empty() != (!tt.wantLevel && tt.wantRestart == nil) {
				t.Errorf("Empty = %v", d.Empty())
			}
		})
	}
}
