// Package render converts validated models into the formats the external
// rendering libraries consume. It carries no business rules: both
// conversions are direct, lossless re-encodings.
package render

import (
	"github.com/trialviz/soa-analyzer/pkg/model"
)

// Element is one entry of the flattened graph-drawing element list.
type Element struct {
	Group    string          `json:"group"` // "nodes" or "edges"
	Data     map[string]any  `json:"data"`
	Position *model.Position `json:"position,omitempty"`
	Locked   bool            `json:"locked,omitempty"`
	Classes  string          `json:"classes,omitempty"`
}

// dashed edge types get a rendering class so the drawing library styles them.
var dashedEdges = map[model.EdgeType]bool{
	model.EdgeWindow:    true,
	model.EdgeTiming:    true,
	model.EdgeCondition: true,
}

// GraphElements flattens a graph model into the drawing library's element
// list. Output length always equals node count plus edge count.
func GraphElements(m *model.GraphModel) []Element {
	elements := make([]Element, 0, len(m.Nodes)+len(m.Edges))

	for _, n := range m.Nodes {
		pos := n.Position
		classes := string(n.Data.Type)
		if n.Highlight {
			classes += " highlight"
		}
		elements = append(elements, Element{
			Group: "nodes",
			Data: map[string]any{
				"id":      n.Data.ID,
				"label":   n.Data.Label,
				"type":    string(n.Data.Type),
				"usdmRef": n.Data.USDMRef,
			},
			Position: &pos,
			Locked:   n.Locked,
			Classes:  classes,
		})
	}

	for _, e := range m.Edges {
		classes := string(e.Type)
		if dashedEdges[e.Type] {
			classes += " dashed"
		}
		elements = append(elements, Element{
			Group: "edges",
			Data: map[string]any{
				"id":     e.ID,
				"source": e.Source,
				"target": e.Target,
				"type":   string(e.Type),
				"label":  e.Label,
			},
			Classes: classes,
		})
	}

	return elements
}
