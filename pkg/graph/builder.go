// Package graph builds the interactive study-design diagram model from a
// USDM study design, the user's layout overlay, and the optional
// execution-model extraction.
package graph

import (
	"fmt"
	"sort"

	"github.com/trialviz/soa-analyzer/pkg/layout"
	"github.com/trialviz/soa-analyzer/pkg/logging"
	"github.com/trialviz/soa-analyzer/pkg/model"
	"github.com/trialviz/soa-analyzer/pkg/overlay"
	"github.com/trialviz/soa-analyzer/pkg/resolve"
	"github.com/trialviz/soa-analyzer/pkg/usdm"
)

// encounterNode tracks one created encounter node for later build steps.
type encounterNode struct {
	nodeID      string
	encounterID string
	label       string
	x           float64
}

// builder holds the per-invocation accumulators. Nothing escapes the build
// call; every invocation starts from a fresh builder.
type builder struct {
	design *usdm.StudyDesign
	ov     *overlay.Overlay
	exec   *usdm.ExecutionModel
	res    *resolve.Resolver
	eng    *layout.Engine

	nodes   []model.Node
	edges   []model.Edge
	nodeIDs map[string]struct{}

	spans        []layout.Span
	epochCounts  []int
	epochIndex   map[string]int
	epochNodeIDs []string
	encounters   []encounterNode
	encByID      map[string]int // encounter entity id -> index into encounters
	activityRows map[string]int // encounter node id -> next free activity row
	graphWidth   float64
}

// Build constructs the diagram model with the default layout configuration.
// It is a pure function of its inputs and never fails: a nil design yields
// an empty, valid model.
func Build(design *usdm.StudyDesign, ov *overlay.Overlay, exec *usdm.ExecutionModel) *model.GraphModel {
	return BuildWithLayout(design, ov, exec, layout.DefaultConfig())
}

// BuildWithLayout is Build with explicit spacing constants.
func BuildWithLayout(design *usdm.StudyDesign, ov *overlay.Overlay, exec *usdm.ExecutionModel, cfg layout.Config) *model.GraphModel {
	if design == nil {
		return model.NewGraphModel()
	}

	b := &builder{
		design:       design,
		ov:           ov,
		exec:         exec,
		res:          resolve.New(design),
		eng:          layout.NewEngine(cfg),
		nodes:        make([]model.Node, 0),
		edges:        make([]model.Edge, 0),
		nodeIDs:      make(map[string]struct{}),
		epochIndex:   make(map[string]int),
		encByID:      make(map[string]int),
		activityRows: make(map[string]int),
	}

	// 1. Epoch nodes, laid out left to right.
	b.addEpochNodes()

	// 2. Encounter nodes within their parent epoch span, plus visit-window
	// satellites. Encounters with an unresolvable epoch are skipped here so
	// no later step can reference them.
	b.addEncounterNodes()

	// 3. Sequence edges chaining the encounters that were actually created.
	b.addSequenceEdges()

	// 4. Activity nodes from scheduled activity instances.
	b.addActivityNodes()

	// 5. Timing and anchor nodes from root-level timing definitions.
	b.addTimingNodes()

	// 6. Anchor and repetition nodes from the execution model, deduplicated
	// against step 5 and aligned to encounters best-effort.
	b.addExecutionModelNodes()

	// 7. Decision nodes with per-condition branch edges.
	b.addDecisionNodes()

	// 8. Coarse epoch-transition edges, distinct from the visit-level chain.
	b.addEpochTransitions()

	m := &model.GraphModel{Nodes: b.nodes, Edges: b.edges}

	// 9. Structural validation always runs last.
	m.Validation = model.Validate(m.Nodes, m.Edges, b.nodeIDs)

	logging.Debug("built graph model",
		"nodes", len(m.Nodes), "edges", len(m.Edges), "valid", m.Validation.Valid)
	return m
}

// addNode appends a node with the layout default position unless the overlay
// carries a saved position for its id. Duplicate ids are dropped so the
// model is free of duplicates by construction.
func (b *builder) addNode(data model.NodeData, def layout.Point) bool {
	if _, dup := b.nodeIDs[data.ID]; dup {
		logging.Debug("dropping duplicate node", "id", data.ID)
		return false
	}

	n := model.Node{Data: data, Position: model.Position{X: def.X, Y: def.Y}}
	if saved, ok := b.ov.Position(data.ID); ok {
		n.Position = model.Position{X: saved.X, Y: saved.Y}
		n.Locked = saved.Locked
		n.Highlight = saved.Highlight
	}

	b.nodes = append(b.nodes, n)
	b.nodeIDs[data.ID] = struct{}{}
	return true
}

// addEdge appends an edge only when both endpoints already exist. Dropping
// the edge instead of creating it keeps referential integrity a construction
// invariant rather than a validator catch.
func (b *builder) addEdge(id, source, target string, t model.EdgeType, label string) bool {
	if _, ok := b.nodeIDs[source]; !ok {
		logging.Debug("dropping edge with missing source", "edge", id, "source", source)
		return false
	}
	if _, ok := b.nodeIDs[target]; !ok {
		logging.Debug("dropping edge with missing target", "edge", id, "target", target)
		return false
	}
	b.edges = append(b.edges, model.Edge{ID: id, Source: source, Target: target, Type: t, Label: label})
	return true
}

func (b *builder) addEpochNodes() {
	b.epochCounts = make([]int, len(b.design.Epochs))
	for i, e := range b.design.Epochs {
		b.epochIndex[e.ID] = i
	}
	for _, enc := range b.design.Encounters {
		if epochID, ok := b.res.Epoch(enc.EpochID); ok {
			if i, known := b.epochIndex[epochID]; known {
				b.epochCounts[i]++
			}
		}
	}

	b.spans = b.eng.EpochSpans(b.epochCounts)
	b.graphWidth = b.eng.GraphWidth(b.spans)

	for i, e := range b.design.Epochs {
		id := "epoch_" + e.ID
		if b.addNode(model.NodeData{
			ID:      id,
			Label:   b.res.DisplayName(e.ID),
			Type:    model.NodeEpoch,
			USDMRef: e.ID,
			EpochID: e.ID,
		}, b.eng.EpochPosition(b.spans[i])) {
			b.epochNodeIDs = append(b.epochNodeIDs, id)
		}
	}
}

func (b *builder) addEncounterNodes() {
	placed := make([]int, len(b.design.Epochs))

	for _, enc := range b.design.Encounters {
		epochID, ok := b.res.Epoch(enc.EpochID)
		if !ok {
			logging.Debug("skipping encounter with unresolvable epoch",
				"encounter", enc.ID, "epochRef", enc.EpochID)
			continue
		}
		epochIdx, known := b.epochIndex[epochID]
		if !known {
			logging.Debug("skipping encounter with unknown epoch", "encounter", enc.ID, "epoch", epochID)
			continue
		}

		pos := b.eng.EncounterPosition(b.spans[epochIdx], placed[epochIdx], b.epochCounts[epochIdx])
		placed[epochIdx]++

		windowLabel := b.windowLabel(enc)
		id := "enc_" + enc.ID
		b.addNode(model.NodeData{
			ID:          id,
			Label:       b.res.DisplayName(enc.ID),
			Type:        model.NodeInstance,
			USDMRef:     enc.ID,
			EpochID:     epochID,
			EncounterID: enc.ID,
			HasWindow:   windowLabel != "",
		}, pos)

		b.encByID[enc.ID] = len(b.encounters)
		b.encounters = append(b.encounters, encounterNode{
			nodeID:      id,
			encounterID: enc.ID,
			label:       b.res.DisplayName(enc.ID),
			x:           pos.X,
		})

		if windowLabel != "" {
			winID := "window_" + enc.ID
			b.addNode(model.NodeData{
				ID:          winID,
				Label:       windowLabel,
				Type:        model.NodeWindow,
				USDMRef:     enc.ID,
				EncounterID: enc.ID,
				WindowLabel: windowLabel,
			}, b.eng.WindowPosition(pos))
			b.addEdge("edge_window_"+enc.ID, id, winID, model.EdgeWindow, "")
		}
	}
}

// windowLabel prefers the encounter's own window, falling back to the
// execution model's visit-window map. An exact-id key wins; among looser
// matches the lexicographically first ref is taken, so identical builds
// always pick the same window.
func (b *builder) windowLabel(enc usdm.Encounter) string {
	if enc.Window != nil && enc.Window.Label != "" {
		return enc.Window.Label
	}
	if b.exec == nil {
		return ""
	}
	if win, ok := b.exec.VisitWindows[enc.ID]; ok {
		return win.Label
	}
	var refs []string
	for ref := range b.exec.VisitWindows {
		if id, ok := b.res.Encounter(ref); ok && id == enc.ID {
			refs = append(refs, ref)
		}
	}
	if len(refs) == 0 {
		return ""
	}
	sort.Strings(refs)
	return b.exec.VisitWindows[refs[0]].Label
}

func (b *builder) addSequenceEdges() {
	for i := 1; i < len(b.encounters); i++ {
		b.addEdge(fmt.Sprintf("seq_%d", i),
			b.encounters[i-1].nodeID, b.encounters[i].nodeID, model.EdgeSequence, "")
	}
}

func (b *builder) addActivityNodes() {
	for _, inst := range b.design.ActivityInstances() {
		encID, ok := b.res.Encounter(inst.EncounterID)
		if !ok {
			logging.Debug("skipping activity instance with unresolvable encounter",
				"instance", inst.ID, "encounterRef", inst.EncounterID)
			continue
		}
		encIdx, created := b.encByID[encID]
		if !created {
			continue
		}
		enc := b.encounters[encIdx]

		for _, actRef := range inst.ActivityIDs {
			actID, _ := b.res.Activity(actRef)
			id := "act_" + inst.ID + "_" + actID

			// Label from the activity, never the instance: instance names
			// are frequently synthetic identifiers.
			row := b.activityRows[enc.nodeID]
			if !b.addNode(model.NodeData{
				ID:          id,
				Label:       b.res.DisplayName(actID),
				Type:        model.NodeActivity,
				USDMRef:     inst.ID,
				EncounterID: encID,
				ActivityID:  actID,
			}, b.eng.ActivityPosition(enc.x, row)) {
				continue
			}
			b.activityRows[enc.nodeID] = row + 1
			b.addEdge("edge_act_"+id, enc.nodeID, id, model.EdgeActivity, "")
		}
	}
}

func (b *builder) addEpochTransitions() {
	for i := 1; i < len(b.epochNodeIDs); i++ {
		label := fmt.Sprintf("%s → %s",
			b.res.DisplayName(b.design.Epochs[i-1].ID),
			b.res.DisplayName(b.design.Epochs[i].ID))
		b.addEdge(fmt.Sprintf("trans_%d", i),
			b.epochNodeIDs[i-1], b.epochNodeIDs[i], model.EdgeTransition, label)
	}
}

// truncateCondition shortens a branch condition expression for edge labels.
// Truncation counts runes, not bytes, so multi-byte text stays valid UTF-8.
func truncateCondition(cond string, max int) string {
	runes := []rune(cond)
	if len(runes) <= max {
		return cond
	}
	return string(runes[:max-1]) + "…"
}
