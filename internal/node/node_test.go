package node

import (
	"errors"
	"math/rand"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestIncompleteCompleteAccounting(t *testing.T) {
	Convey("Given a root node with two actions", t, func() {
		root := NewRoot(2, 0, 0.9)

		Convey("A simulation recorded and incompletely updated raises visit counts once", func() {
			root.RecordStep(7, 1, 0.0)
			So(root.UpdateIncomplete(7), ShouldBeNil)
			So(root.VisitCount[1], ShouldEqual, 1)
			So(root.VisitTotal, ShouldEqual, 1)
			So(root.VisitedActions, ShouldEqual, 1)

			Convey("Completing it raises the complete count and the updated-action count", func() {
				So(root.AddChild(1, 3, false), ShouldBeNil)
				accu, err := root.UpdateComplete(7, 0.0)
				So(err, ShouldBeNil)
				So(accu, ShouldEqual, 0.0)
				So(root.CompleteCount[1], ShouldEqual, 1)
				So(root.UpdatedActions, ShouldEqual, 1)

				Convey("A second complete_update for the same id fails: history was consumed", func() {
					_, err := root.UpdateComplete(7, 0.0)
					So(err, ShouldNotBeNil)
				})
			})
		})
	})
}

func TestAddChildTwiceFails(t *testing.T) {
	Convey("Given a node with one child already added", t, func() {
		root := NewRoot(3, 0, 1.0)
		So(root.AddChild(0, 1, false), ShouldBeNil)

		Convey("Adding the same action again is an error", func() {
			err := root.AddChild(0, 2, false)
			So(errors.Is(err, ErrChildAlreadyExists), ShouldBeTrue)
		})
	})
}

func TestSelectUCTNoSelectableChild(t *testing.T) {
	Convey("Given a node with no expanded children", t, func() {
		root := NewRoot(4, 0, 1.0)

		Convey("SelectUCT fails with ErrNoSelectableChild", func() {
			_, err := root.SelectUCT(false)
			So(err, ShouldEqual, ErrNoSelectableChild)
		})
	})
}

func TestSelectUCTPrefersHigherQValue(t *testing.T) {
	Convey("Given two expanded, unsaturated children with different returns", t, func() {
		root := NewRoot(2, 0, 1.0)
		root.RecordStep(0, 0, 1.0)
		So(root.UpdateIncomplete(0), ShouldBeNil)
		So(root.AddChild(0, 1, false), ShouldBeNil)
		_, err := root.UpdateComplete(0, 0.0)
		So(err, ShouldBeNil)

		root.RecordStep(1, 1, 5.0)
		So(root.UpdateIncomplete(1), ShouldBeNil)
		So(root.AddChild(1, 2, false), ShouldBeNil)
		_, err = root.UpdateComplete(1, 0.0)
		So(err, ShouldBeNil)

		Convey("Greedy selection (max_only) picks the higher-reward action", func() {
			best, err := root.SelectUCT(true)
			So(err, ShouldBeNil)
			So(best, ShouldEqual, 1)
		})
	})
}

func TestStubSelectExpansionActionPrefersUnvisited(t *testing.T) {
	Convey("Given a stub where action 0 is visited and 1 is not", t, func() {
		stub := Stub{
			ActionN:         2,
			IsHead:          false,
			ChildPresent:    []bool{false, false},
			ChildVisitCount: []uint32{5, 0},
		}
		rng := rand.New(rand.NewSource(1))

		Convey("Repeated sampling eventually returns the unvisited action", func() {
			found := false
			for i := 0; i < 50; i++ {
				if stub.SelectExpansionAction(rng) == 1 {
					found = true
					break
				}
			}
			So(found, ShouldBeTrue)
		})
	})
}
