package main

import (
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/daviddao/mimic/pkg/registry"
)

func (a *app) cmdGenerate(args []string) int {
	flags := flag.NewFlagSet("generate", flag.ContinueOnError)
	random := flags.Bool("random", false, "pick a random author for each message")
	mult := flags.Float64("multiplier", 0, "length multiplier (default from config)")
	count := flags.Int("count", 1, "number of messages")
	seed := flags.Uint64("seed", 0, "random seed (0 = time based)")
	jsonOut := flags.Bool("json", false, "JSON output")
	pos, err := parseArgs(flags, args)
	if err != nil {
		return 1
	}
	if *random == (len(pos) == 1) || len(pos) > 1 {
		fmt.Fprintln(os.Stderr, "mimic: usage: generate <author> | generate --random")
		return 1
	}
	if *count < 1 {
		fmt.Fprintln(os.Stderr, "mimic: generate: --count must be at least 1")
		return 1
	}
	multiplier := a.cfg.Generate.LengthMultiplier
	if *mult != 0 {
		multiplier = *mult
	}
	s := *seed
	if s == 0 {
		s = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(s, s>>1|1))

	reg, err := a.loadRegistry()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mimic: generate: %v\n", err)
		return 1
	}

	type generated struct {
		Author string `json:"author"`
		Text   string `json:"text"`
	}
	out := make([]generated, 0, *count)
	for i := 0; i < *count; i++ {
		var g generated
		if *random {
			g.Author, g.Text, err = reg.GenerateRandom(rng, multiplier)
		} else {
			g.Author = pos[0]
			g.Text, err = reg.Generate(g.Author, rng, multiplier)
		}
		if errors.Is(err, registry.ErrUnknownAuthor) {
			fmt.Fprintln(os.Stderr, "mimic: No data on that user.")
			return exitNoData
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "mimic: generate: %v\n", err)
			return 1
		}
		out = append(out, g)
	}

	if *jsonOut {
		printJSON(map[string]interface{}{"messages": out, "count": len(out)})
	} else {
		for _, g := range out {
			if *random {
				fmt.Printf("%s: %s\n", g.Author, g.Text)
			} else {
				fmt.Println(g.Text)
			}
		}
	}
	return 0
}
