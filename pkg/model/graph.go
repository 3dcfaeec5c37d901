package model

// NodeType is the closed set of graph node types.
type NodeType string

const (
	NodeEpoch      NodeType = "epoch"
	NodeInstance   NodeType = "instance"
	NodeTiming     NodeType = "timing"
	NodeActivity   NodeType = "activity"
	NodeDecision   NodeType = "decision"
	NodeAnchor     NodeType = "anchor"
	NodeWindow     NodeType = "window"
	NodeRepetition NodeType = "repetition"
)

// EdgeType is the closed set of graph edge types.
type EdgeType string

const (
	EdgeSequence        EdgeType = "sequence"
	EdgeActivity        EdgeType = "activity"
	EdgeTiming          EdgeType = "timing"
	EdgeWindow          EdgeType = "window"
	EdgeTransition      EdgeType = "transition"
	EdgeDecisionBranch  EdgeType = "decision-branch"
	EdgeDecisionDefault EdgeType = "decision-default"
	EdgeCondition       EdgeType = "condition"
)

// Position is a node's diagram coordinate. Both components must be finite.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeData carries the typed attributes of a graph node. USDMRef points back
// to the source entity id so edits can be routed to the document store.
type NodeData struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Type        NodeType `json:"type"`
	USDMRef     string   `json:"usdmRef,omitempty"`
	EpochID     string   `json:"epochId,omitempty"`
	EncounterID string   `json:"encounterId,omitempty"`
	ActivityID  string   `json:"activityId,omitempty"`
	TimingType  string   `json:"timingType,omitempty"`
	TimingValue string   `json:"timingValue,omitempty"`
	WindowLabel string   `json:"windowLabel,omitempty"`
	IsAnchor    bool     `json:"isAnchor,omitempty"`
	HasWindow   bool     `json:"hasWindow,omitempty"`
}

// Node is one vertex of the built graph. The rendering layer treats it as a
// value object; position changes go through the overlay, never the model.
type Node struct {
	Data      NodeData `json:"data"`
	Position  Position `json:"position"`
	Locked    bool     `json:"locked,omitempty"`
	Highlight bool     `json:"highlight,omitempty"`
}

// Edge is one directed connection. Source and Target must both reference
// node ids present in the same model; the validator enforces this.
type Edge struct {
	ID     string   `json:"id"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Type   EdgeType `json:"type"`
	Label  string   `json:"label,omitempty"`
}

// GraphModel is the aggregate output of one builder invocation. It is either
// fully valid and safe to render, or invalid with a non-empty error list.
type GraphModel struct {
	Nodes      []Node     `json:"nodes"`
	Edges      []Edge     `json:"edges"`
	Validation Validation `json:"validation"`
}

// NewGraphModel creates an empty, valid model.
func NewGraphModel() *GraphModel {
	return &GraphModel{
		Nodes:      make([]Node, 0),
		Edges:      make([]Edge, 0),
		Validation: Validation{Valid: true, Errors: make([]ValidationError, 0)},
	}
}
