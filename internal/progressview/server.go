package progressview

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"

	"egraphmcts/internal/atomicfloat"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const indexTemplate = `{{define "index"}}
<!DOCTYPE html>
<html>
<head><title>egraphmcts progress</title></head>
<body>
{{template "stats"}}
<script>
var ws = new WebSocket("ws://" + location.host + "/ws/stats");
ws.onmessage = function(ev) {
  JSON.parse(ev.data).forEach(function(update) {
    var ele = document.getElementById(update.EleId);
    if (!ele) { return; }
    update.Ops.forEach(function(op) {
      if (op.Key === "textContent") { ele.textContent = op.Value; } else { ele.setAttribute(op.Key, op.Value); }
    });
  });
};
</script>
</body>
</html>
{{end}}`

// Server serves a single live-updating page of planner progress: one
// StatsView pushed to a single connected browser over websocket, the same
// single-client scope as the teacher's own prototype server. cumulative, if
// set, backs a plain polling endpoint for callers that would rather GET a
// number than hold a websocket open.
type Server struct {
	addr       string
	tmpl       *template.Template
	view       ViewComponent
	cumulative *atomicfloat.Float64
	log        zerolog.Logger
}

// NewServer builds the page template around a StatsView fed by statsSource;
// done should close when the caller wants the view's goroutine to exit.
// cumulative may be nil, in which case /cumulative reports 0.
func NewServer(addr string, statsSource <-chan Stats, done <-chan struct{}, cumulative *atomicfloat.Float64, log zerolog.Logger) (*Server, error) {
	views, err := NewViewBuilder[Stats, Stats]().
		WithModel(statsSource, func(s Stats) Stats { return s }).
		WithView(func(done <-chan struct{}, input <-chan Stats) ViewComponent { return NewStatsView(done, input) }).
		WithDone(done).
		Build()
	if err != nil {
		return nil, fmt.Errorf("progressview: build view: %w", err)
	}
	view := views[0]

	t := template.New("index")
	if _, err := view.Parse(t); err != nil {
		return nil, fmt.Errorf("progressview: parse stats fragment: %w", err)
	}
	if _, err := t.Parse(indexTemplate); err != nil {
		return nil, fmt.Errorf("progressview: parse index template: %w", err)
	}

	return &Server{addr: addr, tmpl: t, view: view, cumulative: cumulative, log: log}, nil
}

// Routes returns the mux router, exported so callers can mount it under
// their own http.Server rather than being forced into ListenAndServe.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.serveIndex).Methods(http.MethodGet)
	r.HandleFunc("/ws/stats", s.serveWebsocket)
	r.HandleFunc("/cumulative", s.serveCumulative).Methods(http.MethodGet)
	return r
}

// Serve blocks, listening on addr.
func (s *Server) Serve() error {
	if err := http.ListenAndServe(s.addr, s.Routes()); err != nil {
		return fmt.Errorf("progressview: serve: %w", err)
	}
	return nil
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	if err := s.tmpl.ExecuteTemplate(w, "index", nil); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// serveCumulative answers with the planner's running cumulative reward,
// read concurrently off the same atomic box RunMCTS writes into -- no lock,
// no coordination with the websocket push path.
func (s *Server) serveCumulative(w http.ResponseWriter, r *http.Request) {
	var total float64
	if s.cumulative != nil {
		total = s.cumulative.Read()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(struct {
		CumulativeReward float64 `json:"cumulative_reward"`
	}{CumulativeReward: total}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	cli, err := NewClient(s.view.Updates(), w, r)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	if err := cli.Sync(); err != nil {
		s.log.Debug().Err(err).Msg("progress view client disconnected")
	}
}
