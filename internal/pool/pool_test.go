package pool

import (
	"testing"
	"time"

	"egraphmcts/internal/egraph"
	"egraphmcts/internal/node"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/rs/zerolog"
)

func newTestPool(t *testing.T, n int) *Pool {
	t.Helper()
	rules := egraph.DefaultRules()
	p, err := New("test", n, "(* 0 a)", rules, 1000, time.Second, 0.9, 4, 1, zerolog.Nop())
	if err != nil {
		t.Fatalf("pool.New: %v", err)
	}
	return p
}

func TestAssignExpansionAndCollect(t *testing.T) {
	Convey("Given a one-worker pool", t, func() {
		p := newTestPool(t, 1)
		rules := egraph.DefaultRules()

		stub := node.Stub{
			ActionN:         len(rules),
			IsHead:          true,
			ChildPresent:    make([]bool, len(rules)),
			ChildVisitCount: make([]uint32, len(rules)),
		}
		term, err := egraph.Parse("(* 0 a)")
		So(err, ShouldBeNil)
		snap := egraph.Snapshot{Term: term, LastCost: term.Size(), BaseCost: term.Size()}

		Convey("Assigning an expansion task returns a done-expansion reply", func() {
			So(p.HasIdleWorker(), ShouldBeTrue)
			So(p.AssignExpansion(ExpansionTask{Snapshot: snap, Stub: stub}, 1, 42), ShouldBeNil)
			So(p.HasIdleWorker(), ShouldBeFalse)

			reply := p.CollectOne()
			So(reply.Kind, ShouldEqual, ReplyDoneExpansion)
			So(reply.TaskID, ShouldEqual, uint32(42))
			So(p.HasIdleWorker(), ShouldBeTrue)

			Convey("A second assignment with no idle worker fails once busy", func() {
				So(p.AssignExpansion(ExpansionTask{Snapshot: snap, Stub: stub}, 2, 43), ShouldBeNil)
				err := p.AssignExpansion(ExpansionTask{Snapshot: snap, Stub: stub}, 3, 44)
				So(err, ShouldEqual, ErrNoIdleWorker)
				So(p.Shutdown(), ShouldBeNil)
			})
		})
	})
}

func TestAssignSimulationAndCollect(t *testing.T) {
	Convey("Given a one-worker pool", t, func() {
		p := newTestPool(t, 1)
		term, err := egraph.Parse("(* 0 a)")
		So(err, ShouldBeNil)
		snap := egraph.Snapshot{Term: term, LastCost: term.Size(), BaseCost: term.Size()}

		Convey("Assigning a simulation task returns a done-simulation reply", func() {
			So(p.AssignSimulation(SimulationTask{Action: 0, Snapshot: snap}, 7), ShouldBeNil)
			reply := p.CollectOne()
			So(reply.Kind, ShouldEqual, ReplyDoneSimulation)
			So(reply.TaskID, ShouldEqual, uint32(7))
			So(p.Shutdown(), ShouldBeNil)
		})
	})
}

func TestDrainToIdleWaitsForAllWorkers(t *testing.T) {
	Convey("Given a two-worker pool with both busy", t, func() {
		p := newTestPool(t, 2)
		rules := egraph.DefaultRules()
		stub := node.Stub{
			ActionN:         len(rules),
			IsHead:          false,
			ChildPresent:    make([]bool, len(rules)),
			ChildVisitCount: make([]uint32, len(rules)),
		}
		term, err := egraph.Parse("(+ a b)")
		So(err, ShouldBeNil)
		snap := egraph.Snapshot{Term: term, LastCost: term.Size(), BaseCost: term.Size()}

		So(p.AssignExpansion(ExpansionTask{Snapshot: snap, Stub: stub}, 1, 1), ShouldBeNil)
		So(p.AssignExpansion(ExpansionTask{Snapshot: snap, Stub: stub}, 2, 2), ShouldBeNil)

		Convey("DrainToIdle returns only once both report back", func() {
			So(p.DrainToIdle(), ShouldBeNil)
			So(p.HasBusyWorker(), ShouldBeFalse)
			So(p.Shutdown(), ShouldBeNil)
		})
	})
}
