// Package config loads planner parameters from a YAML file through the same
// viper-then-yaml.v3 dance the reinforcement-learning trainer uses: viper
// reads the file into an untyped envelope, and a second yaml.Unmarshal pass
// decodes the envelope's payload into the typed record the rest of the
// module consumes. Keeping both steps avoids binding callers to viper's
// own (stateful, process-wide-flavored) config type.
package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// envelope is the on-disk wrapper: Kind lets one file host more than one
// config shape someday, Def is whatever payload Kind names.
type envelope struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// PlannerArgs is the planner's configuration record -- the only fields
// run_mcts recognizes. Zero value is invalid; use Defaults() or FromYAML.
// TimeLimitSeconds mirrors the spec's usize-seconds field directly rather
// than a time.Duration, since yaml.v3 has no built-in duration decoding.
// The yaml tags are lowercase because viper lowercases every key it reads,
// so a file may spell them in any case (e.g. maxSimStep).
type PlannerArgs struct {
	Budget              uint32  `yaml:"budget"`
	MaxSimStep          uint32  `yaml:"maxsimstep"`
	Gamma               float64 `yaml:"gamma"`
	ExpansionWorkerNum  int     `yaml:"expansionworkernum"`
	SimulationWorkerNum int     `yaml:"simulationworkernum"`
	LPExtract           bool    `yaml:"lpextract"`
	NodeLimit           int     `yaml:"nodelimit"`
	TimeLimitSeconds    int     `yaml:"timelimitseconds"`
	CostThreshold       int     `yaml:"costthreshold"`
}

// Defaults returns the planner's documented defaults.
func Defaults() PlannerArgs {
	return PlannerArgs{
		Budget:              12,
		MaxSimStep:          5,
		Gamma:               0.99,
		ExpansionWorkerNum:  1,
		SimulationWorkerNum: 4,
		LPExtract:           false,
		NodeLimit:           10000,
		TimeLimitSeconds:    1,
		CostThreshold:       0,
	}
}

// TimeLimit is TimeLimitSeconds as a time.Duration, ready for egraph.New.
func (a PlannerArgs) TimeLimit() time.Duration {
	return time.Duration(a.TimeLimitSeconds) * time.Second
}

// Validate rejects configurations this version cannot run: lp_extract is
// reserved and must stay false, and the remaining numeric fields must be
// usable as worker counts, caps, and a discount factor.
func (a PlannerArgs) Validate() error {
	if a.LPExtract {
		return fmt.Errorf("config: lp_extract is reserved and must be false")
	}
	if a.Gamma <= 0 || a.Gamma > 1 {
		return fmt.Errorf("config: gamma %f out of range (0,1]", a.Gamma)
	}
	if a.ExpansionWorkerNum < 1 || a.SimulationWorkerNum < 1 {
		return fmt.Errorf("config: worker counts must be at least 1, got expansion=%d simulation=%d", a.ExpansionWorkerNum, a.SimulationWorkerNum)
	}
	if a.NodeLimit < 1 {
		return fmt.Errorf("config: node_limit must be positive, got %d", a.NodeLimit)
	}
	if a.TimeLimitSeconds < 1 {
		return fmt.Errorf("config: time_limit must be positive, got %ds", a.TimeLimitSeconds)
	}
	return nil
}

// WithDeadline derives a context bounded by cost_threshold's sibling
// wall-clock budget, if the caller wants one; a zero TimeBudget disables it
// and the returned cancel is still safe to defer.
func (a PlannerArgs) WithDeadline(ctx context.Context, timeBudget time.Duration) (context.Context, context.CancelFunc) {
	if timeBudget <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeBudget)
}

// FromYAML reads path via viper (kind/def envelope), then re-decodes the
// "def" payload through yaml.v3 into a PlannerArgs, starting from Defaults()
// so an incomplete file still yields a runnable configuration.
func FromYAML(path string) (PlannerArgs, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	vp.AddConfigPath(filepath.Dir(path))
	if err := vp.ReadInConfig(); err != nil {
		return PlannerArgs{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	env := &envelope{}
	if err := vp.Unmarshal(env); err != nil {
		return PlannerArgs{}, fmt.Errorf("config: decode envelope: %w", err)
	}

	raw, err := yaml.Marshal(env.Def)
	if err != nil {
		return PlannerArgs{}, fmt.Errorf("config: remarshal def: %w", err)
	}

	args := Defaults()
	if err := yaml.Unmarshal(raw, &args); err != nil {
		return PlannerArgs{}, fmt.Errorf("config: decode planner args: %w", err)
	}
	if err := args.Validate(); err != nil {
		return PlannerArgs{}, err
	}
	return args, nil
}
