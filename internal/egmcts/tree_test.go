package egmcts

import (
	"context"
	"errors"
	"testing"
	"time"

	"egraphmcts/internal/egraph"
	"egraphmcts/internal/node"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/rs/zerolog"
)

func neverMatch(name string) egraph.Rule {
	return egraph.Rule{
		Name: name,
		Apply: func(t *egraph.Term) (*egraph.Term, bool) {
			return t, false
		},
	}
}

func TestPlanActionSpaceOneShortCircuits(t *testing.T) {
	Convey("Given an env with a single available action", t, func() {
		rules := []egraph.Rule{{Name: "only", Apply: func(t *egraph.Term) (*egraph.Term, bool) { return t, false }}}
		env, err := egraph.New("a", rules, 1000, time.Second, zerolog.Nop())
		So(err, ShouldBeNil)
		env.Reset()

		tr, err := New(10, 4, 0.9, 1, 1, 1000, time.Second, "a", rules, 1, zerolog.Nop())
		So(err, ShouldBeNil)

		Convey("Plan returns action 0 without touching the pools", func() {
			action, err := tr.Plan(context.Background(), env)
			So(err, ShouldBeNil)
			So(action, ShouldEqual, 0)
			So(tr.SimulationCount(), ShouldEqual, uint32(0))
			So(tr.Shutdown(), ShouldBeNil)
		})
	})
}

func TestPlanBudgetZeroIsNoSelectableChild(t *testing.T) {
	Convey("Given a zero-budget planning round over a multi-action rule set", t, func() {
		rules := egraph.DefaultRules()
		env, err := egraph.New("(* 0 a)", rules, 1000, time.Second, zerolog.Nop())
		So(err, ShouldBeNil)
		env.Reset()

		tr, err := New(0, 4, 0.9, 1, 1, 1000, time.Second, "(* 0 a)", rules, 1, zerolog.Nop())
		So(err, ShouldBeNil)

		Convey("Plan fails since the root never got a single expanded child", func() {
			_, err := tr.Plan(context.Background(), env)
			So(errors.Is(err, node.ErrNoSelectableChild), ShouldBeTrue)
			So(tr.Shutdown(), ShouldBeNil)
		})
	})
}

func TestPlanAllActionsSaturateGracefully(t *testing.T) {
	Convey("Given a two-action rule set that never matches anything", t, func() {
		rules := []egraph.Rule{neverMatch("never-a"), neverMatch("never-b")}
		env, err := egraph.New("a", rules, 1000, time.Second, zerolog.Nop())
		So(err, ShouldBeNil)
		env.Reset()

		const budget = uint32(6)
		tr, err := New(budget, 4, 0.9, 1, 1, 1000, time.Second, "a", rules, 1, zerolog.Nop())
		So(err, ShouldBeNil)

		Convey("Plan exhausts both actions, saturates the root, and defaults to action 0", func() {
			action, err := tr.Plan(context.Background(), env)
			So(err, ShouldBeNil)
			So(action, ShouldEqual, 0)
			So(tr.SimulationCount(), ShouldEqual, budget)
			So(tr.Shutdown(), ShouldBeNil)
		})
	})
}

func TestPlanSimulationCountReachesBudget(t *testing.T) {
	Convey("Given the default rule set over a reducible expression", t, func() {
		rules := egraph.DefaultRules()
		env, err := egraph.New("(* 0 (+ a b))", rules, 1000, time.Second, zerolog.Nop())
		So(err, ShouldBeNil)
		env.Reset()

		const budget = uint32(20)
		tr, err := New(budget, 4, 0.9, 2, 2, 1000, time.Second, "(* 0 (+ a b))", rules, 7, zerolog.Nop())
		So(err, ShouldBeNil)

		Convey("Plan always finishes every simulation it started", func() {
			action, err := tr.Plan(context.Background(), env)
			So(err, ShouldBeNil)
			So(tr.SimulationCount(), ShouldEqual, budget)
			So(action >= 0 && action < len(rules), ShouldBeTrue)
			So(tr.Shutdown(), ShouldBeNil)
		})
	})
}
