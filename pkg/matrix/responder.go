package matrix

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"

	"maunium.net/go/mautrix/id"

	"github.com/daviddao/mimic/pkg/markov"
	"github.com/daviddao/mimic/pkg/registry"
)

// Chat replies.
const (
	CommandPrefix = "!markov"
	HelpCommand   = "!help"

	HelpText = "!markov random - Random message from random user\n" +
		"!markov @user:server - Random message from that user\n"
	NoDataText = "No data on that user."
)

// Generator produces messages in an author's style. *registry.Registry
// implements it.
type Generator interface {
	Generate(author string, rng markov.Rand, lengthMultiplier float64) (string, error)
	GenerateRandom(rng markov.Rand, lengthMultiplier float64) (string, string, error)
}

var _ Generator = (*registry.Registry)(nil)

// Responder answers chat commands from the models.
type Responder struct {
	gen  Generator
	mult float64

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// NewResponder returns a Responder drawing from a PCG source seeded with
// seed.
func NewResponder(gen Generator, lengthMultiplier float64, seed uint64) *Responder {
	return &Responder{
		gen:  gen,
		mult: lengthMultiplier,
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Reply returns the answer to a chat message body, or false if the body is
// not a command. mentions are the users the message explicitly mentions;
// the first one is the target of "!markov <user>".
func (r *Responder) Reply(body string, mentions []id.UserID) (string, bool) {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return "", false
	}
	if fields[0] == HelpCommand && len(fields) == 1 {
		return HelpText, true
	}
	if fields[0] != CommandPrefix {
		return "", false
	}
	if len(fields) == 1 || fields[1] == "help" {
		return HelpText, true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if fields[1] == "random" {
		author, text, err := r.gen.GenerateRandom(r.rng, r.mult)
		if err != nil {
			slog.Warn("random generation failed", "author", author, "err", err)
			return NoDataText, true
		}
		return text, true
	}

	target := ""
	switch {
	case len(mentions) > 0:
		target = mentions[0].String()
	case strings.HasPrefix(fields[1], "@"):
		target = fields[1]
	default:
		return NoDataText, true
	}
	text, err := r.gen.Generate(target, r.rng, r.mult)
	if err != nil {
		if !errors.Is(err, registry.ErrUnknownAuthor) {
			slog.Warn("generation failed", "author", target, "err", err)
		}
		return NoDataText, true
	}
	return text, true
}
