package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/daviddao/mimic/pkg/coverage"
	"github.com/daviddao/mimic/pkg/model"
)

// sourceCoverage is the JSON view of one source's tracker.
type sourceCoverage struct {
	SourceID     string           `json:"source_id"`
	FirstMessage *model.Timestamp `json:"first_message,omitempty"`
	LastUpdate   *model.Timestamp `json:"last_update,omitempty"`
	Ranges       []model.Range    `json:"ranges"`
	Gaps         []model.Range    `json:"gaps"`
	Complete     bool             `json:"complete"`
}

func newSourceCoverage(id string, tr *coverage.Tracker) sourceCoverage {
	return sourceCoverage{
		SourceID:     id,
		FirstMessage: tr.FirstMessage,
		LastUpdate:   tr.LastUpdate,
		Ranges:       tr.Ranges,
		Gaps:         tr.Gaps(),
		Complete:     tr.Complete(),
	}
}

func (a *app) cmdCoverage(args []string) int {
	flags := flag.NewFlagSet("coverage", flag.ContinueOnError)
	jsonOut := flags.Bool("json", false, "JSON output")
	pos, err := parseArgs(flags, args)
	if err != nil {
		return 1
	}

	reg, err := a.loadRegistry()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mimic: coverage: %v\n", err)
		return 1
	}

	sources := reg.Sources()
	if len(pos) > 0 {
		sources = pos
	}
	var out []sourceCoverage
	for _, id := range sources {
		tr, ok := reg.Tracker(id)
		if !ok {
			fmt.Fprintf(os.Stderr, "mimic: coverage: unknown source %q\n", id)
			return 1
		}
		out = append(out, newSourceCoverage(id, tr))
	}

	if *jsonOut {
		printJSON(map[string]interface{}{"sources": out, "count": len(out)})
		return 0
	}
	if len(out) == 0 {
		fmt.Println("no sources")
		return 0
	}
	for _, c := range out {
		state := "partial"
		if c.Complete {
			state = "complete"
		}
		fmt.Printf("%s (%s)\n", c.SourceID, state)
		if c.FirstMessage != nil {
			fmt.Printf("  first message  %s\n", *c.FirstMessage)
		}
		if c.LastUpdate != nil {
			fmt.Printf("  last update    %s\n", *c.LastUpdate)
		}
		for _, r := range c.Ranges {
			fmt.Printf("  covered        %s .. %s\n", r.Min, r.Max)
		}
		for _, g := range c.Gaps {
			fmt.Printf("  gap            %s .. %s\n", g.Min, g.Max)
		}
	}
	return 0
}
