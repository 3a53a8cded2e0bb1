package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/artpar/mediaforge/internal/core/format"
	"github.com/artpar/mediaforge/internal/core/manifest"
	"github.com/artpar/mediaforge/internal/shell/docker"
	"github.com/artpar/mediaforge/internal/shell/dupes"
	"github.com/artpar/mediaforge/internal/shell/ffmpeg"
	"github.com/artpar/mediaforge/internal/shell/optimizer"
	"github.com/artpar/mediaforge/internal/shell/pack"
	"github.com/artpar/mediaforge/internal/shell/store"
)

// dispatch routes the command to the appropriate handler.
func dispatch(cmd string, args []string, cfg *Config, logger *slog.Logger) error {
	switch cmd {
	case "optimize":
		return optimizeCmd(args, cfg, logger)
	case "dupes":
		return dupesCmd(args, cfg, logger)
	case "vault":
		return vaultCmd(args, cfg, logger)
	case "pack":
		return packCmd(args, cfg, logger)
	case "builds":
		return buildsCmd(args, cfg, logger)
	case "version":
		fmt.Printf("mediaforge %s (built %s)\n", Version, BuildTime)
		return nil
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		usage()
		return errUsage
	}
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openStore opens the history database. Callers that can work without
// history treat a nil store as "caching/history disabled".
func openStore(cfg *Config, logger *slog.Logger) (*store.Store, error) {
	return store.Open(cfg.Database.DSN, logger)
}

// =============================================================================
// optimize
// =============================================================================

func optimizeCmd(args []string, cfg *Config, logger *slog.Logger) error {
	fs := flag.NewFlagSet("optimize", flag.ContinueOnError)
	workers := fs.Int("workers", cfg.Optimize.Workers, "Concurrent scan workers (0 = all CPUs)")
	sniff := fs.Bool("sniff", cfg.Optimize.Sniff, "Verify file content type before converting")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	dir := "."
	if fs.NArg() > 0 {
		dir = fs.Arg(0)
	}

	runner := ffmpeg.NewRunner()
	if err := runner.Available(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	opt := optimizer.New(runner, runner, optimizer.Options{
		VideoCodec:   cfg.Optimize.VideoCodec,
		Preset:       cfg.Optimize.Preset,
		CRF:          cfg.Optimize.CRF,
		AudioCodec:   cfg.Optimize.AudioCodec,
		AudioBitrate: cfg.Optimize.AudioBitrate,
		TagValue:     cfg.Optimize.TagValue,
		Workers:      *workers,
		SniffContent: *sniff,
	}, logger, os.Stdout)

	_, err := opt.Run(ctx, dir)
	return err
}

// =============================================================================
// dupes
// =============================================================================

func dupesCmd(args []string, cfg *Config, logger *slog.Logger) error {
	fs := flag.NewFlagSet("dupes", flag.ContinueOnError)
	del := fs.Bool("delete", false, "Delete duplicates (keeps the first file of each group)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	root := "."
	if fs.NArg() > 0 {
		root = fs.Arg(0)
	}

	ctx, cancel := signalContext()
	defer cancel()

	// The hash cache is an optimization; run without it if the database
	// cannot be opened.
	var cache dupes.HashCache
	st, err := openStore(cfg, logger)
	if err != nil {
		logger.Warn("hash cache unavailable", "error", err)
	} else {
		cache = st
		defer st.Close()
	}

	finder := dupes.New(cache, dupes.Options{
		Delete:    *del,
		BlockSize: cfg.Dupes.BlockSize,
	}, logger, os.Stdout)

	report, err := finder.Run(ctx, root)
	if err != nil {
		return err
	}

	if st != nil {
		var duplicates int64
		for _, g := range report.Groups {
			duplicates += int64(len(g) - 1)
		}
		run := store.ScanRun{
			Root:        root,
			FilesHashed: int64(report.FilesHashed),
			Duplicates:  duplicates,
			WastedBytes: report.WastedBytes,
			Deleted:     int64(report.Deleted),
		}
		if _, err := st.RecordScanRun(ctx, run); err != nil {
			logger.Warn("failed to record scan run", "error", err)
		}
	}
	return nil
}

// =============================================================================
// pack
// =============================================================================

func packCmd(args []string, cfg *Config, logger *slog.Logger) error {
	fs := flag.NewFlagSet("pack", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	path := "mediaforge.yaml"
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}

	m, err := manifest.Load(path)
	if err != nil {
		return err
	}

	cli, err := docker.NewDockerClient(cfg.Docker.Host)
	if err != nil {
		return err
	}
	defer cli.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if err := cli.Ping(ctx); err != nil {
		return err
	}

	// Build history is best-effort.
	st, err := openStore(cfg, logger)
	if err != nil {
		logger.Warn("build history unavailable", "error", err)
		st = nil
	} else {
		defer st.Close()
	}

	builder := pack.NewBuilder(cli, st, logger)
	res, err := builder.Build(ctx, m)
	if err != nil {
		return err
	}

	fmt.Printf("Build %s succeeded in %s\n", res.BuildID, format.Duration(res.Elapsed))
	fmt.Printf("Artifact: %s\n", res.ArtifactPath)
	return nil
}

// =============================================================================
// builds
// =============================================================================

func buildsCmd(args []string, cfg *Config, logger *slog.Logger) error {
	fs := flag.NewFlagSet("builds", flag.ContinueOnError)
	limit := fs.Int("n", 20, "Number of builds to show")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := signalContext()
	defer cancel()

	builds, err := st.ListBuilds(ctx, *limit)
	if err != nil {
		return err
	}
	if len(builds) == 0 {
		fmt.Println("No builds recorded.")
		return nil
	}

	fmt.Printf("%-14s %-20s %-24s %-10s %s\n", "ID", "NAME", "IMAGE", "STATUS", "STARTED")
	for _, b := range builds {
		fmt.Printf("%-14s %-20s %-24s %-10s %s\n",
			b.ReferenceID,
			format.TruncateName(b.Name, 20),
			format.TruncateName(b.Image, 24),
			b.Status,
			b.StartedAt,
		)
	}
	return nil
}
