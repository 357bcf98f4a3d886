package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/daviddao/mimic/pkg/ingest"
)

func (a *app) cmdImport(args []string) int {
	flags := flag.NewFlagSet("import", flag.ContinueOnError)
	source := flags.String("source", "", "source (room) ID the export belongs to")
	maxMsgs := flags.Int("max", -1, "stop after N new messages (0 = all; default from config)")
	complete := flags.Bool("complete", false, "the export holds the room's whole history")
	jsonOut := flags.Bool("json", false, "JSON output")
	pos, err := parseArgs(flags, args)
	if err != nil {
		return 1
	}
	if len(pos) != 1 {
		fmt.Fprintln(os.Stderr, "mimic: usage: import <file.jsonl> --source ID")
		return 1
	}
	if *source == "" {
		fmt.Fprintln(os.Stderr, "mimic: import: --source is required")
		return 1
	}

	f, err := os.Open(pos[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "mimic: import: %v\n", err)
		return 1
	}
	msgs, err := ingest.ReadJSONL(f, *source)
	f.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mimic: import: %s: %v\n", pos[0], err)
		return 1
	}

	reg, err := a.loadRegistry()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mimic: import: %v\n", err)
		return 1
	}
	// An export only marks the room's start when it is known to be whole;
	// otherwise an older, overlapping export could never be imported.
	opts := a.ingestOptions(*maxMsgs)
	opts.EOFIsSourceStart = *complete
	run, err := ingest.Run(context.Background(), reg, *source, ingest.NewSliceSource(msgs), opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mimic: import: %v\n", err)
		return 1
	}
	if err := a.commitRuns(reg, run); err != nil {
		fmt.Fprintf(os.Stderr, "mimic: import: %v\n", err)
		return 1
	}

	if *jsonOut {
		printJSON(run)
	} else {
		printRun(run)
	}
	return 0
}
