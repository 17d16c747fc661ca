// Command trafficear classifies passing vehicles from live audio streams.
//
// Each configured stream is read block by block, conditioned, scored by the
// configured classifier backend (with optional fallbacks behind circuit
// breakers) and fed to a hysteresis decision engine. Decisions go to the log,
// a per-class tally, an optional websocket hub and an optional PostgreSQL
// journal. Metrics, health and the hub are served over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/trafficear/internal/config"
	"github.com/MrWong99/trafficear/internal/health"
	"github.com/MrWong99/trafficear/internal/observe"
	"github.com/MrWong99/trafficear/internal/sink"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "trafficear.yaml", "path to the YAML configuration file")
	flag.Parse()

	// Level is adjustable at runtime through config reloads.
	var level slog.LevelVar
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	watcher, err := config.NewWatcher(*configPath, func(_, _ *config.Config, d config.Diff) {
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if len(d.RestartRequired) > 0 {
			slog.Warn("config change takes effect after restart", "sections", d.RestartRequired)
		}
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "trafficear: config file %q not found, copy configs/trafficear.example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "trafficear: %v\n", err)
		}
		return 1
	}
	cfg := watcher.Current()
	level.Set(slogLevel(cfg.Server.LogLevel))

	slog.Info("trafficear starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"classifier", cfg.Classifier.Name,
		"streams", len(cfg.Streams),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	reg := config.NewRegistry()
	registerBuiltinClassifiers(reg)

	// ── Pipelines ─────────────────────────────────────────────────────────────
	var pipes []pipeline
	defer func() {
		for _, p := range pipes {
			p.close()
		}
	}()
	var checks []health.Checker
	for _, sc := range cfg.Streams {
		p, err := buildPipeline(cfg, sc, reg, metrics)
		if err != nil {
			slog.Error("failed to build stream", "stream", sc.Name, "err", err)
			return 1
		}
		pipes = append(pipes, p)
		checks = append(checks, p.checkers()...)
	}

	// ── Sinks ─────────────────────────────────────────────────────────────────
	tally := sink.NewTally(len(cfg.Model.Labels), cfg.Model.NegativeClass, cfg.Model.Labels)
	sinks := sink.Multi{sink.Log{}, tally}

	mux := http.NewServeMux()
	mux.Handle("/metrics", provider.MetricsHandler())

	if cfg.Hub.Enabled {
		hub := sink.NewHub(
			sink.WithSubscriberBuffer(cfg.Hub.SubscriberBuffer),
			sink.WithOriginPatterns(cfg.Hub.OriginPatterns...),
			sink.WithHubMetrics(metrics),
		)
		mux.Handle("/decisions", hub)
		sinks = append(sinks, hub)
	}
	if dsn := cfg.Journal.PostgresDSN; dsn != "" {
		journal, err := sink.OpenJournal(ctx, dsn)
		if err != nil {
			slog.Error("failed to open decision journal", "err", err)
			return 1
		}
		defer journal.Close()
		sinks = append(sinks, journal)
	}
	health.New(checks...).Register(mux)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
			stop()
		}
	}()
	go watcher.Run(ctx)

	printStartupSummary(cfg, reg.Names())
	slog.Info("classifying, press Ctrl+C to shut down")

	// ── Streams ───────────────────────────────────────────────────────────────
	// The process ends when every stream reaches end of input or on signal.
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range pipes {
		g.Go(func() error {
			stats, err := p.run(gctx, sinks)
			slog.Info("stream finished",
				"stream", p.name(),
				"cycles", stats.Cycles,
				"skipped", stats.Skipped,
				"decisions", stats.Decisions,
			)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("stream %q: %w", p.name(), err)
			}
			return nil
		})
	}
	runErr := g.Wait()
	if runErr != nil {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping", "tally", tally)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http server shutdown error", "err", err)
	}
	if err := provider.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}

	fmt.Printf("Vehicle tally: %s (total %d)\n", tally, tally.Total())
	if runErr != nil {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, backends []string) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       trafficear, startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Classifier", describeEntry(cfg.Classifier))
	printRow("Fallbacks", fmt.Sprint(len(cfg.Fallbacks)))
	printRow("Backends", fmt.Sprint(backends))
	printRow("Classes", fmt.Sprint(len(cfg.Model.Labels)))
	printRow("Block", fmt.Sprintf("%d @ %d Hz", cfg.Model.BlockSize, cfg.Model.SampleRate))
	printRow("Voting", fmt.Sprintf("K=%d cooldown=%d", cfg.Voting.HistoryDepth, cfg.Voting.CooldownCycles()))
	printRow("Streams", fmt.Sprint(len(cfg.Streams)))
	printRow("Hub", enabled(cfg.Hub.Enabled))
	printRow("Journal", enabled(cfg.Journal.PostgresDSN != ""))
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func describeEntry(e config.ClassifierEntry) string {
	v := e.Name
	if e.Model != "" {
		v += " / " + e.Model
	}
	if e.Quantize.Enabled {
		v += " (int8)"
	}
	return v
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}
	return "(disabled)"
}

func printRow(key, value string) {
	if len(value) > 22 {
		value = value[:19] + "..."
	}
	fmt.Printf("║  %-12s : %-22s ║\n", key, value)
}

// ── Logger ────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
