// Package overlay defines the user-adjustable layout state kept separate
// from the source document. The builders read a snapshot; all writes happen
// in the host application's edit store.
package overlay

// NodePosition is a user-adjusted diagram position for one graph node.
type NodePosition struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Locked    bool    `json:"locked,omitempty"`
	Highlight bool    `json:"highlight,omitempty"`
}

// DiagramOverlay holds saved node positions keyed by graph node id.
type DiagramOverlay struct {
	Nodes map[string]NodePosition `json:"nodes,omitempty"`
}

// TableOverlay holds user-chosen row and column ordering for the SoA table.
type TableOverlay struct {
	RowOrder    []string `json:"rowOrder,omitempty"`
	ColumnOrder []string `json:"columnOrder,omitempty"`
}

// Overlay is the full overlay payload.
type Overlay struct {
	Diagram DiagramOverlay `json:"diagram,omitempty"`
	Table   TableOverlay   `json:"table,omitempty"`
}

// Position returns the saved position for a node id, if any. Safe on a nil
// overlay so builders can treat the payload as optional.
func (o *Overlay) Position(nodeID string) (NodePosition, bool) {
	if o == nil || o.Diagram.Nodes == nil {
		return NodePosition{}, false
	}
	pos, ok := o.Diagram.Nodes[nodeID]
	return pos, ok
}
