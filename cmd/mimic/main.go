// Command mimic learns how people in a chat write and generates new
// messages in their style, one first-order word chain per author.
package main

import (
	"fmt"
	"os"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "--help", "-h", "help":
		printUsage()
		return
	case "--version", "-v", "version":
		fmt.Println("mimic", version)
		return
	}

	a, err := newApp()
	if err != nil {
		fatal("%v", err)
	}
	defer a.Close()

	switch os.Args[1] {
	// Setup
	case "init":
		os.Exit(a.cmdInit(os.Args[2:]))

	// Learning
	case "import":
		os.Exit(a.cmdImport(os.Args[2:]))
	case "ingest":
		os.Exit(a.cmdIngest(os.Args[2:]))

	// Output
	case "generate", "gen":
		os.Exit(a.cmdGenerate(os.Args[2:]))
	case "serve":
		os.Exit(a.cmdServe(os.Args[2:]))

	// Inspection
	case "authors":
		os.Exit(a.cmdAuthors(os.Args[2:]))
	case "coverage":
		os.Exit(a.cmdCoverage(os.Args[2:]))
	case "log":
		os.Exit(a.cmdLog(os.Args[2:]))
	case "status":
		os.Exit(a.cmdStatus(os.Args[2:]))

	default:
		fmt.Fprintf(os.Stderr, "mimic: unknown command %q\n", os.Args[1])
		fmt.Fprintln(os.Stderr, "Run 'mimic --help' for usage.")
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`mimic: per-author Markov chains over chat history

Reads a room's history newest-first, remembers which stretches it has
already counted, and generates messages in any author's style.

Usage:
  mimic <command> [flags]

Setup:
  init [--write-config]            Create the database (and a config template)

Learning:
  import <file.jsonl> --source ID  Ingest an exported history, one JSON message per line
         [--complete]              (the export starts at the room's first message)
  ingest [--room ID]... [--max N]  Ingest Matrix room history (default: configured rooms)

Output:
  generate <author> [--count N]    Generate messages in an author's style
  generate --random                Pick a random author
  serve                            Answer !markov commands in the configured rooms

Inspection:
  authors                          Per-author model statistics
  coverage [source]                Covered ranges and gaps per source
  log [--source ID] [--limit N]    Past ingestion runs
  status                           Overview of models, sources and runs

Aliases:
  gen = generate

Environment:
  MIMIC_CONFIG        Config file (default: .mimic/config.yaml, optional)
  MIMIC_DB            SQLite database path (overrides the config)
  MIMIC_ACCESS_TOKEN  Matrix access token (overrides the config)

All inspection and output commands support --json for machine-readable output.

Exit codes:
  0  success
  1  error
  2  no data for the requested author
`)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "mimic: "+format+"\n", args...)
	os.Exit(1)
}
