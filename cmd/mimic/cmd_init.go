package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/daviddao/mimic/pkg/config"
)

func (a *app) cmdInit(args []string) int {
	flags := flag.NewFlagSet("init", flag.ContinueOnError)
	writeConfig := flags.Bool("write-config", false, "write a config template if none exists")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	snap, err := a.store.LoadRegistry()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mimic: init: database error: %v\n", err)
		return 1
	}

	fmt.Printf("initialized mimic (db: %s)\n", a.cfg.Database)
	if n := len(snap.Chains); n > 0 {
		fmt.Printf("  %d existing author model(s), %d source(s)\n", n, len(snap.Trackers))
	}

	if *writeConfig {
		wrote, err := writeConfigTemplate(a.cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mimic: init: config: %v\n", err)
			return 1
		}
		if wrote {
			fmt.Printf("  wrote config template %s\n", a.cfgPath)
		} else {
			fmt.Printf("  config %s already exists, left untouched\n", a.cfgPath)
		}
	}

	fmt.Println()
	fmt.Println("next steps:")
	fmt.Println("  mimic import history.jsonl --source <room>   learn from an export")
	fmt.Println("  mimic ingest                                 learn from Matrix rooms in the config")
	fmt.Println("  mimic generate --random")
	return 0
}

// writeConfigTemplate writes the default configuration to path unless a
// file is already there. It reports whether it wrote one.
func writeConfigTemplate(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, err
	}
	// The file will hold an access token.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return false, err
	}
	return true, nil
}
