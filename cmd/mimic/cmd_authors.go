package main

import (
	"flag"
	"fmt"
	"os"
)

func (a *app) cmdAuthors(args []string) int {
	flags := flag.NewFlagSet("authors", flag.ContinueOnError)
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	reg, err := a.loadRegistry()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mimic: authors: %v\n", err)
		return 1
	}
	stats := reg.Stats()

	if *jsonOut {
		printJSON(map[string]interface{}{"authors": stats, "count": len(stats)})
		return 0
	}
	if len(stats) == 0 {
		fmt.Println("no authors")
		return 0
	}
	for _, s := range stats {
		state := "ready"
		if !s.Finalized {
			state = "pending"
		}
		fmt.Printf("  %-40s messages=%-6d vocabulary=%-6d starters=%-5d %s\n",
			s.AuthorID, s.Messages, s.Vocabulary, s.Starters, state)
	}
	return 0
}
