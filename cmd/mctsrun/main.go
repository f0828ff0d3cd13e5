/*
mctsrun drives the watch-and-update UCT planner against the term-rewriting
engine to simplify a starting expression, optionally serving a live view of
planning progress in a browser.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"egraphmcts/internal/atomicfloat"
	"egraphmcts/internal/config"
	"egraphmcts/internal/egmcts"
	"egraphmcts/internal/egraph"
	"egraphmcts/internal/progressview"

	"github.com/rs/zerolog"
)

var (
	dbg        *bool
	configPath *string
	expr       *string
	seed       *int64
	serve      *bool
	addr       *string
)

// TODO: per 12-factor rules these should come from env/config-map; KISS for now.
func init() {
	dbg = flag.Bool("debug", false, "debug logging")
	configPath = flag.String("config", "./config.yaml", "path to planner config yaml")
	expr = flag.String("expr", "(+ (* a 0) (* 1 b))", "starting expression to simplify")
	seed = flag.Int64("seed", 1, "planner rng seed")
	serve = flag.Bool("serve", false, "serve a live progress view")
	addr = flag.String("addr", ":8080", "address for the live progress view")
	flag.Parse()
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if *dbg {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.NewConsoleWriter()).Level(level).With().Timestamp().Logger()
}

func runApp() (err error) {
	log := newLogger()

	args, err := config.FromYAML(*configPath)
	if err != nil {
		log.Warn().Err(err).Msg("falling back to default planner args")
		args = config.Defaults()
	}

	rules := egraph.DefaultRules()

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()
	runCtx, runCancel := args.WithDeadline(appCtx, args.TimeLimit()*time.Duration(args.Budget))
	defer runCancel()

	cumulative := atomicfloat.New(0)

	var statsChan chan progressview.Stats
	var done chan struct{}
	if *serve {
		statsChan = make(chan progressview.Stats)
		done = make(chan struct{})
		defer close(done)

		srv, serr := progressview.NewServer(*addr, statsChan, done, cumulative, log)
		if serr != nil {
			return fmt.Errorf("mctsrun: build progress server: %w", serr)
		}
		go func() {
			if serr := srv.Serve(); serr != nil {
				log.Error().Err(serr).Msg("progress server stopped")
			}
		}()
		log.Info().Str("addr", *addr).Msg("serving live progress view")
	}

	observe := func(s egmcts.IterationStats) {
		log.Info().
			Int("iter", s.Iter).
			Str("rule", s.RuleName).
			Float64("reward", s.Reward).
			Float64("cumulative_reward", s.CumulativeReward).
			Int("cost", s.Cost).
			Str("expr", s.Expr).
			Bool("done", s.Done).
			Msg("planning round complete")

		if statsChan == nil {
			return
		}
		select {
		case statsChan <- progressview.Stats{
			Iter:             s.Iter,
			RuleName:         s.RuleName,
			Reward:           s.Reward,
			CumulativeReward: s.CumulativeReward,
			Cost:             s.Cost,
			Expr:             s.Expr,
			Done:             s.Done,
		}:
		case <-runCtx.Done():
		}
	}

	env, err := egmcts.RunMCTS(runCtx, *expr, rules, args, *seed, log, observe, cumulative)
	if err != nil {
		return fmt.Errorf("mctsrun: run: %w", err)
	}

	fmt.Printf("final expression: %s (cost %d)\n", env.Expr(), env.Cost())
	return nil
}

func main() {
	if err := runApp(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
