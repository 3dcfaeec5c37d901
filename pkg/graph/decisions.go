package graph

import (
	"fmt"

	"github.com/trialviz/soa-analyzer/pkg/logging"
	"github.com/trialviz/soa-analyzer/pkg/model"
	"github.com/trialviz/soa-analyzer/pkg/usdm"
)

// conditionLabelMax bounds branch-edge labels so long extracted expressions
// do not overwhelm the diagram.
const conditionLabelMax = 40

// addDecisionNodes emits one decision node per scheduled decision instance
// (the unscheduled-visit routing construct) with its branch edges.
func (b *builder) addDecisionNodes() {
	decisionCount := 0
	for _, inst := range b.design.DecisionInstances() {
		b.addDecision(inst, decisionCount)
		decisionCount++
	}
}

func (b *builder) addDecision(inst usdm.ScheduledInstance, ordinal int) {
	ctrl := b.controllingEncounter(inst)

	id := "decision_" + inst.ID
	pos := b.eng.TimingPosition(ordinal, ordinal+1, b.graphWidth)
	if ctrl != nil {
		pos = b.eng.DecisionPosition(ctrl.x)
	}

	label := inst.Name
	if label == "" {
		label = "Decision"
	}
	if !b.addNode(model.NodeData{
		ID:      id,
		Label:   label,
		Type:    model.NodeDecision,
		USDMRef: inst.ID,
	}, pos) {
		return
	}

	// Incoming edge from the chronologically preceding encounter.
	if ctrl != nil {
		if idx, ok := b.encByID[ctrl.encounterID]; ok && idx > 0 {
			prev := b.encounters[idx-1]
			b.addEdge("edge_cond_"+inst.ID, prev.nodeID, id, model.EdgeCondition, "")
		}
	}

	// One outgoing edge per condition assignment. A branch matching the
	// declared default target is typed as the default path.
	for i, ca := range inst.ConditionAssignments {
		targetNode, ok := b.branchTarget(ca.TargetID)
		if !ok {
			logging.Debug("skipping branch with unresolvable target",
				"decision", inst.ID, "targetRef", ca.TargetID)
			continue
		}

		edgeType := model.EdgeDecisionBranch
		if b.isDefaultTarget(inst, ca.TargetID) {
			edgeType = model.EdgeDecisionDefault
		}
		b.addEdge(fmt.Sprintf("edge_branch_%s_%d", inst.ID, i),
			id, targetNode, edgeType, truncateCondition(ca.Condition, conditionLabelMax))
	}
}

// controllingEncounter resolves the decision's controlling encounter: the
// declared extension attribute first, then the first conditional target that
// resolves to a created encounter.
func (b *builder) controllingEncounter(inst usdm.ScheduledInstance) *encounterNode {
	if ref := usdm.ControllingEncounterRef(inst); ref != "" {
		if encID, ok := b.res.Encounter(ref); ok {
			if idx, created := b.encByID[encID]; created {
				return &b.encounters[idx]
			}
		}
	}
	for _, ca := range inst.ConditionAssignments {
		if encID, ok := b.res.Encounter(ca.TargetID); ok {
			if idx, created := b.encByID[encID]; created {
				return &b.encounters[idx]
			}
		}
	}
	return nil
}

// branchTarget maps a condition target reference onto an existing node id:
// an encounter node, another decision node, or an already-created activity
// instance node.
func (b *builder) branchTarget(ref string) (string, bool) {
	if encID, ok := b.res.Encounter(ref); ok {
		if idx, created := b.encByID[encID]; created {
			return b.encounters[idx].nodeID, true
		}
	}
	if _, ok := b.nodeIDs["decision_"+ref]; ok {
		return "decision_" + ref, true
	}
	if _, ok := b.nodeIDs[ref]; ok {
		return ref, true
	}
	return "", false
}

// isDefaultTarget compares the branch target against the instance's declared
// default, both raw and resolved.
func (b *builder) isDefaultTarget(inst usdm.ScheduledInstance, targetRef string) bool {
	if inst.DefaultConditionID == "" {
		return false
	}
	if targetRef == inst.DefaultConditionID {
		return true
	}
	tgt, ok1 := b.res.Encounter(targetRef)
	def, ok2 := b.res.Encounter(inst.DefaultConditionID)
	return ok1 && ok2 && tgt == def
}
