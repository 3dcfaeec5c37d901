package graph

import (
	"testing"

	"github.com/trialviz/soa-analyzer/pkg/model"
	"github.com/trialviz/soa-analyzer/pkg/usdm"
)

// withDecision adds an unscheduled-visit decision after the baseline visit:
// one branch to Week 4, a default branch back to Baseline.
func withDecision() *usdm.StudyDesign {
	d := smallDesign()
	d.ScheduleTimelines[0].Instances = append(d.ScheduleTimelines[0].Instances,
		usdm.ScheduledInstance{
			ID:                 "sdi-1",
			Name:               "AE follow-up?",
			InstanceType:       usdm.InstanceTypeDecision,
			DefaultConditionID: "enc-2",
			ConditionAssignments: []usdm.ConditionAssignment{
				{Condition: "if adverse event reported", TargetID: "enc-3"},
				{Condition: "", TargetID: "enc-2"},
			},
			ExtensionAttributes: []usdm.ExtensionAttribute{
				{URL: "vendor/x-controllingEncounter", ValueString: "enc-2"},
			},
		})
	return d
}

func TestBuildDecisionNode(t *testing.T) {
	m := Build(withDecision(), nil, nil)

	if !m.Validation.Valid {
		t.Fatalf("model invalid: %v", m.Validation.Errors)
	}

	dec := findNode(t, m, "decision_sdi-1")
	if dec.Data.Type != model.NodeDecision || dec.Data.Label != "AE follow-up?" {
		t.Errorf("decision node = %+v", dec.Data)
	}

	// Positioned relative to the controlling encounter, not the timing row.
	ctrl := findNode(t, m, "enc_enc-2")
	if dec.Position.X <= ctrl.Position.X {
		t.Errorf("decision x = %v, want offset right of controlling encounter x %v",
			dec.Position.X, ctrl.Position.X)
	}
}

func TestBuildDecisionBranchEdges(t *testing.T) {
	m := Build(withDecision(), nil, nil)

	branch := findEdge(t, m, "edge_branch_sdi-1_0")
	if branch.Type != model.EdgeDecisionBranch {
		t.Errorf("conditional branch type = %q, want decision-branch", branch.Type)
	}
	if branch.Target != "enc_enc-3" {
		t.Errorf("branch target = %q, want enc_enc-3", branch.Target)
	}
	if branch.Label != "if adverse event reported" {
		t.Errorf("branch label = %q", branch.Label)
	}

	// The branch matching the declared default is typed as the default path.
	def := findEdge(t, m, "edge_branch_sdi-1_1")
	if def.Type != model.EdgeDecisionDefault {
		t.Errorf("default branch type = %q, want decision-default", def.Type)
	}
	if def.Target != "enc_enc-2" {
		t.Errorf("default branch target = %q, want enc_enc-2", def.Target)
	}
}

func TestBuildDecisionIncomingEdge(t *testing.T) {
	m := Build(withDecision(), nil, nil)

	// The decision hangs off the encounter preceding its controlling visit.
	in := findEdge(t, m, "edge_cond_sdi-1")
	if in.Source != "enc_enc-1" || in.Target != "decision_sdi-1" {
		t.Errorf("incoming edge = %q -> %q", in.Source, in.Target)
	}
	if in.Type != model.EdgeCondition {
		t.Errorf("incoming edge type = %q, want condition", in.Type)
	}
}

func TestBuildDecisionSkipsUnresolvableBranch(t *testing.T) {
	d := withDecision()
	d.ScheduleTimelines[0].Instances[1].ConditionAssignments = append(
		d.ScheduleTimelines[0].Instances[1].ConditionAssignments,
		usdm.ConditionAssignment{Condition: "never", TargetID: "no-such-visit"},
	)

	m := Build(d, nil, nil)
	for _, e := range m.Edges {
		if e.ID == "edge_branch_sdi-1_2" {
			t.Error("branch with unresolvable target was emitted")
		}
	}
	if !m.Validation.Valid {
		t.Errorf("model invalid: %v", m.Validation.Errors)
	}
}

func TestBuildDecisionChain(t *testing.T) {
	d := withDecision()
	// A second decision whose branch targets the first one.
	d.ScheduleTimelines[0].Instances = append(d.ScheduleTimelines[0].Instances,
		usdm.ScheduledInstance{
			ID:           "sdi-2",
			InstanceType: usdm.InstanceTypeDecision,
			ConditionAssignments: []usdm.ConditionAssignment{
				{Condition: "escalate", TargetID: "sdi-1"},
			},
		})

	m := Build(d, nil, nil)
	e := findEdge(t, m, "edge_branch_sdi-2_0")
	if e.Target != "decision_sdi-1" {
		t.Errorf("decision-to-decision branch target = %q, want decision_sdi-1", e.Target)
	}
}

func TestBuildDecisionWithoutName(t *testing.T) {
	d := withDecision()
	d.ScheduleTimelines[0].Instances[1].Name = ""

	m := Build(d, nil, nil)
	dec := findNode(t, m, "decision_sdi-1")
	if dec.Data.Label != "Decision" {
		t.Errorf("unnamed decision label = %q, want Decision", dec.Data.Label)
	}
}
