// Package progressview implements the planner's optional live view: the
// teacher's fastview builder pattern (convert a data model to a view model,
// fan it out to view components, push their element updates to a browser
// over websocket) repurposed so the "data model" is a stream of planner
// IterationStats instead of grid-world cell states.
package progressview

import (
	"html/template"
)

// EleUpdate names one DOM element and the attribute/content operations to
// apply to it.
type EleUpdate struct {
	EleId string
	Ops   []Op
}

// Op is a single attribute-or-textContent assignment; "textContent" is the
// reserved key for an element's text body.
type Op struct {
	Key   string
	Value string
}

// ViewComponent is one server-rendered fragment: Parse registers its markup
// (and any sub-templates) with the page template and returns the name to
// render it by; Updates streams the element mutations to push live.
type ViewComponent interface {
	Updates() <-chan []EleUpdate
	Parse(*template.Template) (string, error)
}
