package main

import (
	"flag"
	"fmt"
	"os"
)

func (a *app) cmdLog(args []string) int {
	flags := flag.NewFlagSet("log", flag.ContinueOnError)
	source := flags.String("source", "", "only runs over this source")
	limit := flags.Int("limit", 50, "max runs to return")
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	runs, err := a.store.ListRuns(*source, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mimic: log: %v\n", err)
		return 1
	}

	if *jsonOut {
		printJSON(map[string]interface{}{"runs": runs, "count": len(runs)})
		return 0
	}
	if len(runs) == 0 {
		fmt.Println("no runs")
		return 0
	}
	for _, r := range runs {
		fmt.Printf("[%s] ", r.FinishedAt.Local().Format("2006-01-02 15:04:05"))
		printRun(r)
	}
	return 0
}
