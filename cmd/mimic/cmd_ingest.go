package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/daviddao/mimic/pkg/ingest"
	"github.com/daviddao/mimic/pkg/matrix"
)

func (a *app) cmdIngest(args []string) int {
	flags := flag.NewFlagSet("ingest", flag.ContinueOnError)
	var rooms stringList
	flags.Var(&rooms, "room", "room ID to ingest (repeatable; default: configured rooms)")
	maxMsgs := flags.Int("max", -1, "stop each room after N new messages (0 = all; default from config)")
	concurrency := flags.Int("concurrency", 0, "rooms ingested at once (default from config)")
	jsonOut := flags.Bool("json", false, "JSON output")
	pos, err := parseArgs(flags, args)
	if err != nil {
		return 1
	}
	if len(pos) > 0 {
		fmt.Fprintln(os.Stderr, "mimic: usage: ingest [--room ID ...] [--max N] [--concurrency N] [--json]")
		return 1
	}

	if err := a.cfg.ValidateMatrix(); err != nil {
		fmt.Fprintf(os.Stderr, "mimic: ingest: %v\n", err)
		return 1
	}
	if len(rooms) == 0 {
		rooms = a.cfg.Matrix.Rooms
	}
	if len(rooms) == 0 {
		fmt.Fprintln(os.Stderr, "mimic: ingest: no rooms: pass --room or set matrix.rooms")
		return 1
	}
	limit := a.cfg.Matrix.Concurrency
	if *concurrency > 0 {
		limit = *concurrency
	}

	client, err := matrix.New(a.cfg.Matrix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mimic: ingest: %v\n", err)
		return 1
	}
	reg, err := a.loadRegistry()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mimic: ingest: %v\n", err)
		return 1
	}

	// An interrupted room commits nothing; finished rooms are still saved.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runs, runErr := ingest.RunAll(ctx, reg, client.Sources(rooms), a.ingestOptions(*maxMsgs), limit)
	if err := a.commitRuns(reg, runs...); err != nil {
		fmt.Fprintf(os.Stderr, "mimic: ingest: %v\n", err)
		return 1
	}

	if *jsonOut {
		printJSON(map[string]interface{}{"runs": runs, "count": len(runs)})
	} else {
		for _, r := range runs {
			printRun(r)
		}
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "mimic: ingest: %s\n", a.redact(runErr))
		return 1
	}
	return 0
}
