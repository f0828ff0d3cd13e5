package egraph

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestParseAndSize(t *testing.T) {
	Convey("Given a starting expression", t, func() {
		term, err := Parse("(* 0 42)")
		So(err, ShouldBeNil)
		So(term.Size(), ShouldEqual, 3)
		So(term.String(), ShouldEqual, "(* 0 42)")
	})
}

func TestStepMulZeroCollapsesTerm(t *testing.T) {
	Convey("Given env over (* 0 42) with the default rules", t, func() {
		env, err := New("(* 0 42)", DefaultRules(), 10000, time.Second, discardLogger())
		So(err, ShouldBeNil)
		env.Reset()

		mulZeroIdx := ruleIndex(env, "mul-0")

		Convey("Stepping mul-0 collapses the term to 0 with reward 2", func() {
			reward, done, reason, err := env.Step(mulZeroIdx)
			So(err, ShouldBeNil)
			So(reward, ShouldEqual, 2.0)
			So(env.Expr(), ShouldEqual, "0")
			So(reason, ShouldEqual, StopIterationLimit)
			So(done, ShouldBeFalse)
		})
	})
}

func TestStepAllSaturated(t *testing.T) {
	Convey("Given env over a bare symbol", t, func() {
		env, err := New("a", DefaultRules(), 10000, time.Second, discardLogger())
		So(err, ShouldBeNil)
		env.Reset()

		Convey("Every rule saturates immediately since there is nothing to rewrite", func() {
			n := env.ActionSpace()
			var done bool
			var reason StopReason
			for i := 0; i < n; i++ {
				var reward float64
				reward, done, reason, err = env.Step(0)
				So(err, ShouldBeNil)
				So(reward, ShouldEqual, 0.0)
				So(reason, ShouldEqual, StopSaturated)
			}
			So(done, ShouldBeTrue)
		})
	})
}

func TestCheckpointRestoreRoundTrip(t *testing.T) {
	Convey("Given an env that has taken a step", t, func() {
		env, err := New("(+ (* 1 a) 0)", DefaultRules(), 10000, time.Second, discardLogger())
		So(err, ShouldBeNil)
		env.Reset()
		mulOneIdx := ruleIndex(env, "mul-1")
		_, _, _, err = env.Step(mulOneIdx)
		So(err, ShouldBeNil)
		snap := env.Checkpoint()

		Convey("Restoring the snapshot into a fresh env reproduces identical behavior", func() {
			other, err := New("(+ (* 1 a) 0)", DefaultRules(), 10000, time.Second, discardLogger())
			So(err, ShouldBeNil)
			other.Reset()
			other.Restore(snap)

			addZeroIdx := ruleIndex(env, "add-0")
			r1, d1, s1, err1 := env.Step(addZeroIdx)
			r2, d2, s2, err2 := other.Step(addZeroIdx)
			So(err1, ShouldBeNil)
			So(err2, ShouldBeNil)
			So(r1, ShouldEqual, r2)
			So(d1, ShouldEqual, d2)
			So(s1, ShouldEqual, s2)
			So(env.Expr(), ShouldEqual, other.Expr())
		})
	})
}

func ruleIndex(env *Env, name string) int {
	for i, n := range env.RuleNames() {
		if n == name {
			return i
		}
	}
	panic("rule not found: " + name)
}
