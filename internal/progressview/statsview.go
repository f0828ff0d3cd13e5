package progressview

import (
	"fmt"
	"html/template"
)

// Stats is the live-view payload: one planning round's outcome, decoupled
// from egmcts.IterationStats so this package never imports the planner.
type Stats struct {
	Iter             int
	RuleName         string
	Reward           float64
	CumulativeReward float64
	Cost             int
	Expr             string
	Done             bool
}

const statsTemplate = `
<div id="stats">
  <span id="stats-iter">0</span>
  <span id="stats-rule"></span>
  <span id="stats-reward">0</span>
  <span id="stats-cumulative">0</span>
  <span id="stats-cost">0</span>
  <span id="stats-expr"></span>
</div>
`

// StatsView is the single view component the CLI's progress server builds:
// it renders the last-known planner stats and pushes element updates for
// every new Stats value that arrives on its input channel.
type StatsView struct {
	updates chan []EleUpdate
}

// NewStatsView adapts a Stats stream into a ViewComponent, matching the
// teacher's view-builder shape (done channel for cleanup, typed input chan).
func NewStatsView(done <-chan struct{}, input <-chan Stats) ViewComponent {
	sv := &StatsView{updates: make(chan []EleUpdate)}
	go sv.run(done, input)
	return sv
}

func (sv *StatsView) run(done <-chan struct{}, input <-chan Stats) {
	defer close(sv.updates)
	for {
		select {
		case <-done:
			return
		case s, ok := <-input:
			if !ok {
				return
			}
			update := []EleUpdate{
				{EleId: "stats-iter", Ops: []Op{{Key: "textContent", Value: fmt.Sprintf("%d", s.Iter)}}},
				{EleId: "stats-rule", Ops: []Op{{Key: "textContent", Value: s.RuleName}}},
				{EleId: "stats-reward", Ops: []Op{{Key: "textContent", Value: fmt.Sprintf("%.3f", s.Reward)}}},
				{EleId: "stats-cumulative", Ops: []Op{{Key: "textContent", Value: fmt.Sprintf("%.3f", s.CumulativeReward)}}},
				{EleId: "stats-cost", Ops: []Op{{Key: "textContent", Value: fmt.Sprintf("%d", s.Cost)}}},
				{EleId: "stats-expr", Ops: []Op{{Key: "textContent", Value: s.Expr}}},
			}
			select {
			case sv.updates <- update:
			case <-done:
				return
			}
		}
	}
}

// Updates streams one []EleUpdate per Stats value received.
func (sv *StatsView) Updates() <-chan []EleUpdate {
	return sv.updates
}

// Parse registers the stats fragment under the parent template and returns
// its name.
func (sv *StatsView) Parse(t *template.Template) (string, error) {
	const name = "stats"
	if _, err := t.New(name).Parse(statsTemplate); err != nil {
		return "", err
	}
	return name, nil
}
