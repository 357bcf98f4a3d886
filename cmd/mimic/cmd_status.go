package main

import (
	"flag"
	"fmt"
	"os"
)

func (a *app) cmdStatus(args []string) int {
	flags := flag.NewFlagSet("status", flag.ContinueOnError)
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	reg, err := a.loadRegistry()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mimic: status: %v\n", err)
		return 1
	}
	stats := reg.Stats()
	var messages uint64
	for _, s := range stats {
		messages += s.Messages
	}
	var sources []sourceCoverage
	complete := 0
	for _, id := range reg.Sources() {
		tr, _ := reg.Tracker(id)
		c := newSourceCoverage(id, tr)
		if c.Complete {
			complete++
		}
		sources = append(sources, c)
	}
	lastRuns, _ := a.store.ListRuns("", 5)

	if *jsonOut {
		printJSON(map[string]interface{}{
			"database":     a.cfg.Database,
			"authors":      len(stats),
			"messages":     messages,
			"sources":      sources,
			"complete":     complete,
			"runs":         a.store.CountRuns(),
			"recent_runs":  lastRuns,
			"matrix_rooms": a.cfg.Matrix.Rooms,
		})
		return 0
	}

	fmt.Printf("database: %s\n", a.cfg.Database)
	fmt.Printf("authors:  %d (%d messages observed)\n", len(stats), messages)
	fmt.Printf("sources:  %d (%d complete)\n", len(sources), complete)
	for _, c := range sources {
		last := "never"
		if c.LastUpdate != nil {
			last = c.LastUpdate.String()
		}
		fmt.Printf("  %-40s ranges=%-3d gaps=%-3d last_update=%s\n", c.SourceID, len(c.Ranges), len(c.Gaps), last)
	}
	fmt.Printf("runs:     %d\n", a.store.CountRuns())
	for _, r := range lastRuns {
		fmt.Print("  ")
		printRun(r)
	}
	return 0
}
