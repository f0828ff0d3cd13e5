package egmcts

import (
	"context"
	"fmt"
	"time"

	"egraphmcts/internal/atomicfloat"
	"egraphmcts/internal/config"
	"egraphmcts/internal/egraph"

	"github.com/rs/zerolog"
)

// IterationStats is what RunMCTS reports after each env step, the payload
// the CLI prints and the optional progress view pushes over its websocket.
type IterationStats struct {
	Iter             int
	Action           int
	RuleName         string
	Reward           float64
	CumulativeReward float64
	Cost             int
	Expr             string
	Done             bool
}

// Observer receives one IterationStats per outer-loop step; nil is a valid
// no-op observer.
type Observer func(IterationStats)

// RunMCTS drives the outer env/plan/step loop: plan a round from the
// current state, take the greedily-chosen action, repeat until the engine
// reports done or the extracted cost reaches args.CostThreshold. It mirrors
// the original run_loop almost exactly, generalized with a cost-threshold
// early exit and a pluggable observer instead of a bare println.
//
// cumulative, if non-nil, receives every reward as the loop runs so a
// concurrent reader (the progress view's HTTP handler, on its own
// goroutine) can poll the running total without waiting for an
// IterationStats observation. A nil cumulative is fine; RunMCTS tracks its
// own in that case.
func RunMCTS(
	ctx context.Context,
	startExpr string,
	rules []egraph.Rule,
	args config.PlannerArgs,
	seed int64,
	log zerolog.Logger,
	observe Observer,
	cumulative *atomicfloat.Float64,
) (*egraph.Env, error) {
	if err := args.Validate(); err != nil {
		return nil, fmt.Errorf("egmcts: run: %w", err)
	}

	env, err := egraph.New(startExpr, rules, args.NodeLimit, args.TimeLimit(), log)
	if err != nil {
		return nil, fmt.Errorf("egmcts: run: build env: %w", err)
	}
	env.Reset()

	tree, err := New(
		args.Budget, args.MaxSimStep, args.Gamma,
		args.ExpansionWorkerNum, args.SimulationWorkerNum,
		args.NodeLimit, args.TimeLimit(),
		startExpr, rules, seed, log,
	)
	if err != nil {
		return nil, fmt.Errorf("egmcts: run: build tree: %w", err)
	}
	defer tree.Shutdown()

	names := env.RuleNames()
	if cumulative == nil {
		cumulative = atomicfloat.New(0)
	}

	for iter := 0; ; iter++ {
		planStart := time.Now()
		action, err := tree.Plan(ctx, env)
		if err != nil {
			return env, fmt.Errorf("egmcts: run: iteration %d: %w", iter, err)
		}
		planElapsed := time.Since(planStart)

		reward, done, _, err := env.Step(action)
		if err != nil {
			return env, fmt.Errorf("egmcts: run: iteration %d: step: %w", iter, err)
		}
		var runningTotal float64
		for {
			var ok bool
			if runningTotal, ok = cumulative.Add(reward); ok {
				break
			}
		}

		log.Debug().
			Int("iter", iter).
			Int("action", action).
			Dur("plan_time", planElapsed).
			Msg("planning round complete")

		if observe != nil {
			observe(IterationStats{
				Iter:             iter,
				Action:           action,
				RuleName:         names[action],
				Reward:           reward,
				CumulativeReward: runningTotal,
				Cost:             env.Cost(),
				Expr:             env.Expr(),
				Done:             done,
			})
		}

		if done || env.Cost() <= args.CostThreshold {
			break
		}

		select {
		case <-ctx.Done():
			return env, ctx.Err()
		default:
		}
	}

	return env, nil
}
