package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/daviddao/mimic/pkg/ingest"
	"github.com/daviddao/mimic/pkg/matrix"
	"github.com/daviddao/mimic/pkg/registry"
)

func (a *app) cmdServe(args []string) int {
	flags := flag.NewFlagSet("serve", flag.ContinueOnError)
	interval := flags.Duration("ingest-every", -1, "re-ingest configured rooms this often (0 = never; default from config)")
	pos, err := parseArgs(flags, args)
	if err != nil {
		return 1
	}
	if len(pos) > 0 {
		fmt.Fprintln(os.Stderr, "mimic: usage: serve [--ingest-every D]")
		return 1
	}
	if err := a.cfg.ValidateMatrix(); err != nil {
		fmt.Fprintf(os.Stderr, "mimic: serve: %v\n", err)
		return 1
	}
	every := a.cfg.Ingest.Interval
	if *interval >= 0 {
		every = *interval
	}

	reg, err := a.loadRegistry()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mimic: serve: %v\n", err)
		return 1
	}
	client, err := matrix.New(a.cfg.Matrix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mimic: serve: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if every > 0 {
		go a.ingestLoop(ctx, reg, client, every)
	}

	responder := matrix.NewResponder(reg, a.cfg.Generate.LengthMultiplier, uint64(time.Now().UnixNano()))
	slog.Info("serving", "rooms", len(a.cfg.Matrix.Rooms), "authors", len(reg.Authors()), "ingest_every", every)
	if err := client.Serve(ctx, responder); err != nil {
		fmt.Fprintf(os.Stderr, "mimic: serve: %s\n", a.redact(err))
		return 1
	}
	slog.Info("shutting down")
	return 0
}

// ingestLoop ingests the configured rooms immediately and then every
// interval, saving the registry after each pass, until ctx is done.
func (a *app) ingestLoop(ctx context.Context, reg *registry.Registry, client *matrix.Client, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		runs, err := ingest.RunAll(ctx, reg, client.Sources(a.cfg.Matrix.Rooms), a.ingestOptions(-1), a.cfg.Matrix.Concurrency)
		if err != nil {
			slog.Warn("ingest pass had failures", "err", a.redact(err))
		}
		if err := a.commitRuns(reg, runs...); err != nil {
			slog.Error("saving models failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
