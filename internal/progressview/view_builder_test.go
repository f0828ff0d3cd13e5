package progressview

import (
	"fmt"
	"html/template"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

// recordingView is a minimal ViewComponent that turns each Stats value into
// one element update keyed by the iteration number, just enough to observe
// that ViewBuilder actually wired the conversion/fan-out plumbing together.
type recordingView struct {
	updates chan []EleUpdate
}

func newRecordingView(done <-chan struct{}, input <-chan Stats) ViewComponent {
	rv := &recordingView{updates: make(chan []EleUpdate)}
	go func() {
		defer close(rv.updates)
		for {
			select {
			case <-done:
				return
			case s, ok := <-input:
				if !ok {
					return
				}
				update := []EleUpdate{{
					EleId: fmt.Sprintf("iter-%d", s.Iter),
					Ops:   []Op{{Key: "textContent", Value: s.Expr}},
				}}
				select {
				case rv.updates <- update:
				case <-done:
					return
				}
			}
		}
	}()
	return rv
}

func (rv *recordingView) Parse(t *template.Template) (name string, err error) {
	return
}

func (rv *recordingView) Updates() <-chan []EleUpdate {
	return rv.updates
}

func TestViewBuilderWiresStatsThroughToAView(t *testing.T) {
	Convey("Given a builder fed by a Stats channel", t, func() {
		input := make(chan Stats)
		views, err := NewViewBuilder[Stats, Stats]().
			WithModel(input, func(s Stats) Stats { return s }).
			WithView(newRecordingView).
			Build()
		So(err, ShouldBeNil)
		So(len(views), ShouldEqual, 1)

		Convey("A Stats value sent in arrives as an element update", func() {
			go func() {
				input <- Stats{Iter: 3, Expr: "a"}
			}()
			update := <-views[0].Updates()
			So(len(update), ShouldEqual, 1)
			So(update[0].EleId, ShouldEqual, "iter-3")
			So(update[0].Ops[0].Value, ShouldEqual, "a")
		})
	})

	Convey("Given a builder missing its view or model", t, func() {
		Convey("Build fails without a registered view", func() {
			_, err := NewViewBuilder[Stats, Stats]().
				WithModel(make(chan Stats), func(s Stats) Stats { return s }).
				Build()
			So(err, ShouldEqual, ErrNoViews)
		})

		Convey("Build fails without a registered model", func() {
			_, err := NewViewBuilder[Stats, Stats]().
				WithView(newRecordingView).
				Build()
			So(err, ShouldEqual, ErrNoModel)
		})
	})
}
