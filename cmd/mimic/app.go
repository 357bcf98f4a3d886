package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/daviddao/mimic/pkg/config"
	"github.com/daviddao/mimic/pkg/ingest"
	"github.com/daviddao/mimic/pkg/logging"
	"github.com/daviddao/mimic/pkg/model"
	"github.com/daviddao/mimic/pkg/registry"
	"github.com/daviddao/mimic/pkg/store"
)

const (
	defaultDir    = ".mimic"
	defaultDB     = defaultDir + "/mimic.db"
	defaultConfig = defaultDir + "/config.yaml"
)

// exitNoData is returned when the requested author has no model.
const exitNoData = 2

// app holds shared state for all CLI subcommands.
type app struct {
	store   store.StoreInterface
	cfg     *config.Config
	cfgPath string
}

// newApp loads the configuration, sets up logging and opens the database.
// Creates the .mimic/ directory if using the default DB path.
func newApp() (*app, error) {
	cfgPath := envOr("MIMIC_CONFIG", defaultConfig)
	cfg, err := config.Load(cfgPath, cfgPath == defaultConfig)
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	if cfg.Database == defaultDB {
		if err := os.MkdirAll(defaultDir, 0755); err != nil {
			return nil, fmt.Errorf("cannot create %s: %w", defaultDir, err)
		}
	}
	s, err := store.New(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("cannot open database %q: %w", cfg.Database, err)
	}
	return &app{store: s, cfg: cfg, cfgPath: cfgPath}, nil
}

// Close releases the database connection.
func (a *app) Close() { a.store.Close() }

// loadRegistry restores the registry saved by the last mutating command.
func (a *app) loadRegistry() (*registry.Registry, error) {
	snap, err := a.store.LoadRegistry()
	if err != nil {
		return nil, fmt.Errorf("load models: %w", err)
	}
	reg, err := registry.Restore(snap)
	if err != nil {
		return nil, fmt.Errorf("load models: %w", err)
	}
	return reg, nil
}

// commitRuns persists reg and then logs every run that covered something.
// The registry goes first: a run in the log always has its effect saved.
func (a *app) commitRuns(reg *registry.Registry, runs ...model.Run) error {
	if err := a.store.SaveRegistry(reg.Snapshot()); err != nil {
		return fmt.Errorf("save models: %w", err)
	}
	for _, r := range runs {
		if r.Covered == nil {
			continue
		}
		if err := a.store.InsertRun(r); err != nil {
			return fmt.Errorf("record run %s: %w", r.ID, err)
		}
	}
	return nil
}

// ingestOptions builds run options from the config and an optional
// --max override (negative means "use the config").
func (a *app) ingestOptions(maxMessages int) ingest.Options {
	opts := ingest.DefaultOptions()
	opts.MaxMessages = a.cfg.Ingest.MaxMessages
	if maxMessages >= 0 {
		opts.MaxMessages = maxMessages
	}
	if a.cfg.Ingest.IgnorePrefixes != nil {
		opts.IgnorePrefixes = a.cfg.Ingest.IgnorePrefixes
	}
	return opts
}

// redact renders err with the access token masked.
func (a *app) redact(err error) string {
	return logging.Redact(err.Error(), a.cfg.Matrix.AccessToken)
}

// printRun writes a one-line run summary to stdout.
func printRun(r model.Run) {
	span := "nothing new"
	if r.Covered != nil {
		span = fmt.Sprintf("%s .. %s", r.Covered.Min, r.Covered.Max)
	}
	start := ""
	if r.ReachedStart {
		start = " (reached start)"
	}
	fmt.Printf("%s  %-30s observed=%-5d skipped=%-5d ignored=%-4d authors=%-3d %s%s\n",
		shortID(r.ID), r.SourceID, r.Observed, r.Skipped, r.Ignored, len(r.Authors), span, start)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// parseArgs parses flags that may appear before, between or after the
// positional arguments, and returns the positionals in order.
func parseArgs(flags *flag.FlagSet, args []string) ([]string, error) {
	var pos []string
	for {
		if err := flags.Parse(args); err != nil {
			return nil, err
		}
		args = flags.Args()
		if len(args) == 0 {
			return pos, nil
		}
		pos = append(pos, args[0])
		args = args[1:]
	}
}

// stringList is a repeatable string flag.
type stringList []string

func (l *stringList) String() string { return fmt.Sprint([]string(*l)) }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
