// Command framegen builds a training set of fixed-length frames from a
// directory of labelled recordings.
//
//	framegen -root recordings/ -out frames/ [-config trafficear.yaml]
//
// Sample rate and frame geometry come from the config file when given;
// explicit flags override it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/MrWong99/trafficear/internal/config"
	"github.com/MrWong99/trafficear/internal/dataset"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		root       = flag.String("root", "", "input directory with one subdirectory per class")
		out        = flag.String("out", "", "output directory for the frames")
		configPath = flag.String("config", "", "optional trafficear config supplying model and framing settings")
		rate       = flag.Int("rate", 0, "output sample rate in Hz (default from config or 16000)")
		frameSec   = flag.Float64("frame", 0, "frame length in seconds (default from config or 1.0)")
		overlapSec = flag.Float64("overlap", -1, "frame overlap in seconds (default from config or 0.5)")
		workers    = flag.Int("workers", 0, "files processed in parallel (default from config or 4)")
		verbose    = flag.Bool("v", false, "log every file")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := dataset.Config{
		Root:           *root,
		Out:            *out,
		SampleRate:     config.DefaultSampleRate,
		FrameSeconds:   config.DefaultFrameSeconds,
		OverlapSeconds: config.DefaultOverlap,
		Workers:        config.DefaultWorkers,
	}
	if *configPath != "" {
		c, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "framegen: %v\n", err)
			return 1
		}
		cfg.SampleRate = c.Model.SampleRate
		cfg.FrameSeconds = c.Framing.FrameSeconds
		cfg.OverlapSeconds = c.Framing.OverlapSeconds
		cfg.Workers = c.Framing.Workers
		cfg.TargetRMS = c.Conditioning.TargetRMS
		cfg.PreEmphasis = c.Conditioning.PreEmphasis
	}
	if *rate > 0 {
		cfg.SampleRate = *rate
	}
	if *frameSec > 0 {
		cfg.FrameSeconds = *frameSec
	}
	if *overlapSec >= 0 {
		cfg.OverlapSeconds = *overlapSec
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}
	if cfg.Root == "" || cfg.Out == "" {
		fmt.Fprintln(os.Stderr, "framegen: -root and -out are required")
		flag.Usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rep, err := dataset.Generate(ctx, cfg)
	if err != nil {
		slog.Error("frame generation failed", "err", err)
		return 1
	}
	for _, class := range slices.Sorted(maps.Keys(rep.Frames)) {
		fmt.Printf("%-12s %d frames\n", class, rep.Frames[class])
	}
	fmt.Printf("%d files, %d frames, %d failed, %d unsupported\n",
		rep.Files, rep.TotalFrames(), len(rep.Failed), rep.Unsupported)
	if len(rep.Failed) > 0 {
		return 1
	}
	return 0
}
