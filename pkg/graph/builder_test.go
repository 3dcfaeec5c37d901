package graph

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"

	"github.com/trialviz/soa-analyzer/pkg/model"
	"github.com/trialviz/soa-analyzer/pkg/overlay"
	"github.com/trialviz/soa-analyzer/pkg/usdm"
)

// smallDesign is two epochs, three encounters and one scheduled activity.
func smallDesign() *usdm.StudyDesign {
	return &usdm.StudyDesign{
		Name: "Demo Study",
		Epochs: []usdm.Epoch{
			{ID: "ep-scr", Name: "Screening"},
			{ID: "ep-trt", Name: "Treatment"},
		},
		Encounters: []usdm.Encounter{
			{ID: "enc-1", Name: "Screening Visit", EpochID: "ep-scr"},
			{ID: "enc-2", Name: "Baseline Visit", EpochID: "ep-trt"},
			{ID: "enc-3", Name: "Week 4", EpochID: "ep-trt"},
		},
		Activities: []usdm.Activity{
			{ID: "act-1", Name: "Vital Signs"},
		},
		ScheduleTimelines: []usdm.ScheduleTimeline{
			{
				ID:           "tl-main",
				MainTimeline: true,
				Instances: []usdm.ScheduledInstance{
					{
						ID:           "sai-1",
						InstanceType: usdm.InstanceTypeActivity,
						EncounterID:  "enc-2",
						ActivityIDs:  []string{"act-1"},
					},
				},
			},
		},
	}
}

func findNode(t *testing.T, m *model.GraphModel, id string) model.Node {
	t.Helper()
	for _, n := range m.Nodes {
		if n.Data.ID == id {
			return n
		}
	}
	t.Fatalf("node %q not in model", id)
	return model.Node{}
}

func hasNode(m *model.GraphModel, id string) bool {
	for _, n := range m.Nodes {
		if n.Data.ID == id {
			return true
		}
	}
	return false
}

func findEdge(t *testing.T, m *model.GraphModel, id string) model.Edge {
	t.Helper()
	for _, e := range m.Edges {
		if e.ID == id {
			return e
		}
	}
	t.Fatalf("edge %q not in model", id)
	return model.Edge{}
}

func countByType(m *model.GraphModel, nt model.NodeType) int {
	n := 0
	for _, node := range m.Nodes {
		if node.Data.Type == nt {
			n++
		}
	}
	return n
}

func countEdgesByType(m *model.GraphModel, et model.EdgeType) int {
	n := 0
	for _, e := range m.Edges {
		if e.Type == et {
			n++
		}
	}
	return n
}

func TestBuildSmallDesign(t *testing.T) {
	m := Build(smallDesign(), nil, nil)

	if !m.Validation.Valid {
		t.Fatalf("built model invalid: %v", m.Validation.Errors)
	}
	if got := countByType(m, model.NodeEpoch); got != 2 {
		t.Errorf("epoch nodes = %d, want 2", got)
	}
	if got := countByType(m, model.NodeInstance); got != 3 {
		t.Errorf("encounter nodes = %d, want 3", got)
	}
	if got := countByType(m, model.NodeActivity); got != 1 {
		t.Errorf("activity nodes = %d, want 1", got)
	}
	if got := countEdgesByType(m, model.EdgeSequence); got != 2 {
		t.Errorf("sequence edges = %d, want 2", got)
	}
	if got := countEdgesByType(m, model.EdgeActivity); got != 1 {
		t.Errorf("activity edges = %d, want 1", got)
	}
	if got := countEdgesByType(m, model.EdgeTransition); got != 1 {
		t.Errorf("transition edges = %d, want 1", got)
	}

	// The activity node hangs off its encounter.
	e := findEdge(t, m, "edge_act_act_sai-1_act-1")
	if e.Source != "enc_enc-2" {
		t.Errorf("activity edge source = %q, want enc_enc-2", e.Source)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	a := Build(smallDesign(), nil, nil)
	b := Build(smallDesign(), nil, nil)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("two builds of the same inputs differ (-first +second):\n%s", diff)
	}
}

func TestBuildNilDesign(t *testing.T) {
	m := Build(nil, nil, nil)
	if len(m.Nodes) != 0 || len(m.Edges) != 0 {
		t.Errorf("nil design built %d nodes %d edges, want empty", len(m.Nodes), len(m.Edges))
	}
	if !m.Validation.Valid {
		t.Error("empty model must be valid")
	}
}

func TestBuildSkipsEncounterWithUnresolvableEpoch(t *testing.T) {
	d := smallDesign()
	d.Encounters = append(d.Encounters, usdm.Encounter{
		ID: "enc-bad", Name: "Unmoored Visit", EpochID: "no-such-epoch",
	})

	m := Build(d, nil, nil)
	if hasNode(m, "enc_enc-bad") {
		t.Error("encounter with unresolvable epoch was not skipped")
	}
	for _, e := range m.Edges {
		if e.Source == "enc_enc-bad" || e.Target == "enc_enc-bad" {
			t.Errorf("edge %q references the skipped encounter", e.ID)
		}
	}
	if !m.Validation.Valid {
		t.Errorf("model invalid after skip: %v", m.Validation.Errors)
	}
}

func TestBuildResolvesEpochAlias(t *testing.T) {
	d := smallDesign()
	// Positional alias to the second epoch.
	d.Encounters[2].EpochID = "epoch_2"

	m := Build(d, nil, nil)
	n := findNode(t, m, "enc_enc-3")
	if n.Data.EpochID != "ep-trt" {
		t.Errorf("aliased epoch resolved to %q, want ep-trt", n.Data.EpochID)
	}
}

func TestBuildOverlayOverridesPosition(t *testing.T) {
	ov := &overlay.Overlay{
		Diagram: overlay.DiagramOverlay{
			Nodes: map[string]overlay.NodePosition{
				"enc_enc-1": {X: 999, Y: 777, Locked: true, Highlight: true},
			},
		},
	}

	m := Build(smallDesign(), ov, nil)
	n := findNode(t, m, "enc_enc-1")
	if n.Position.X != 999 || n.Position.Y != 777 {
		t.Errorf("position = %+v, want overlay values", n.Position)
	}
	if !n.Locked || !n.Highlight {
		t.Errorf("locked/highlight = %v/%v, want true/true", n.Locked, n.Highlight)
	}

	// Nodes without a saved position keep the layout default.
	other := findNode(t, m, "enc_enc-2")
	if other.Locked {
		t.Error("unsaved node inherited locked flag")
	}
}

func TestBuildVisitWindowSatellite(t *testing.T) {
	d := smallDesign()
	d.Encounters[1].Window = &usdm.VisitWindow{Label: "±3 days"}

	m := Build(d, nil, nil)
	win := findNode(t, m, "window_enc-2")
	if win.Data.Type != model.NodeWindow || win.Data.WindowLabel != "±3 days" {
		t.Errorf("window node = %+v", win.Data)
	}
	e := findEdge(t, m, "edge_window_enc-2")
	if e.Type != model.EdgeWindow || e.Source != "enc_enc-2" {
		t.Errorf("window edge = %+v", e)
	}

	enc := findNode(t, m, "enc_enc-2")
	if !enc.Data.HasWindow {
		t.Error("encounter HasWindow = false, want true")
	}
}

func TestBuildWindowLabelPrefersExactIDRef(t *testing.T) {
	exec := &usdm.ExecutionModel{
		VisitWindows: map[string]usdm.VisitWindow{
			"enc-2":          {Label: "±3 days"},
			"Baseline Visit": {Label: "±7 days"},
		},
	}

	// Both refs resolve to the same encounter; the exact-id entry must win
	// on every build, not whichever map key comes up first.
	for i := 0; i < 50; i++ {
		m := Build(smallDesign(), nil, exec)
		win := findNode(t, m, "window_enc-2")
		if win.Data.WindowLabel != "±3 days" {
			t.Fatalf("build %d: window label = %q, want the exact-id entry", i, win.Data.WindowLabel)
		}
	}
}

func TestBuildWindowLabelStableWithoutExactIDRef(t *testing.T) {
	// A name ref and a positional alias, both resolving to enc-2. The
	// lexicographically first ref wins, so repeated builds agree.
	exec := &usdm.ExecutionModel{
		VisitWindows: map[string]usdm.VisitWindow{
			"Baseline Visit": {Label: "±7 days"},
			"enc_2":          {Label: "±14 days"},
		},
	}

	for i := 0; i < 50; i++ {
		m := Build(smallDesign(), nil, exec)
		win := findNode(t, m, "window_enc-2")
		if win.Data.WindowLabel != "±7 days" {
			t.Fatalf("build %d: window label = %q, want the first ref in sorted order", i, win.Data.WindowLabel)
		}
	}
}

func TestBuildTimingNodes(t *testing.T) {
	d := smallDesign()
	d.ScheduleTimelines[0].Timings = []usdm.Timing{
		{
			ID: "tim-1", Name: "Week 4 offset", Value: "P28D", ValueLabel: "Day 28",
			RelativeToScheduledInstanceID: "sai-1",
		},
	}

	m := Build(d, nil, nil)
	n := findNode(t, m, "timing_tim-1")
	if n.Data.Type != model.NodeTiming {
		t.Errorf("timing node type = %q", n.Data.Type)
	}
	if n.Data.TimingValue != "Day 28" {
		t.Errorf("timing value = %q, want the value label", n.Data.TimingValue)
	}

	// The relative-to reference follows the instance down to its encounter.
	e := findEdge(t, m, "edge_rel_tim-1")
	if e.Target != "enc_enc-2" || e.Type != model.EdgeTiming {
		t.Errorf("relative edge = %+v", e)
	}
}

func TestBuildAnchorAlignsToKeywordEncounter(t *testing.T) {
	d := smallDesign()
	d.ScheduleTimelines[0].Timings = []usdm.Timing{
		{ID: "tim-anchor", Name: "baseline"},
	}
	// Mark the timing as a fixed reference via the coded type.
	d.ScheduleTimelines[0].Timings[0].Type = fixedReferenceType(t)

	m := Build(d, nil, nil)
	anchor := findNode(t, m, "anchor_tim-anchor")
	if anchor.Data.Type != model.NodeAnchor || !anchor.Data.IsAnchor {
		t.Fatalf("anchor node = %+v", anchor.Data)
	}

	// "baseline" keyword matches the Baseline Visit encounter; the anchor
	// aligns horizontally with it.
	baseline := findNode(t, m, "enc_enc-2")
	if anchor.Position.X != baseline.Position.X {
		t.Errorf("anchor x = %v, want aligned with baseline encounter x %v",
			anchor.Position.X, baseline.Position.X)
	}
}

func fixedReferenceType(t *testing.T) usdm.TimingType {
	t.Helper()
	var tp usdm.TimingType
	if err := tp.UnmarshalJSON([]byte(`{"code":"C201358","decode":"Fixed Reference"}`)); err != nil {
		t.Fatalf("building fixed reference type: %v", err)
	}
	return tp
}

func TestBuildExecutionModelAnchorsAndRepetitions(t *testing.T) {
	exec := &usdm.ExecutionModel{
		TimeAnchors: []usdm.TimeAnchor{
			{ID: "ta-1", Type: "first_dose", Definition: "first dose of study drug"},
		},
		Repetitions: []usdm.Repetition{
			{ID: "rep-1", EncounterID: "enc-3", Pattern: "q4w"},
		},
	}
	d := smallDesign()
	// Give the keyword heuristic something to bite on.
	d.Encounters[1].Label = "Day 1 Dosing"

	m := Build(d, nil, exec)

	anchor := findNode(t, m, "anchor_ta-1")
	dosing := findNode(t, m, "enc_enc-2")
	if anchor.Position.X != dosing.Position.X {
		t.Errorf("anchor x = %v, want aligned with dosing encounter x %v",
			anchor.Position.X, dosing.Position.X)
	}
	e := findEdge(t, m, "edge_anchor_ta-1")
	if e.Target != "enc_enc-2" {
		t.Errorf("anchor edge target = %q, want enc_enc-2", e.Target)
	}

	rep := findNode(t, m, "repetition_rep-1")
	if rep.Data.Type != model.NodeRepetition || rep.Data.Label != "q4w" {
		t.Errorf("repetition node = %+v", rep.Data)
	}
	if !m.Validation.Valid {
		t.Errorf("model invalid: %v", m.Validation.Errors)
	}
}

func TestBuildExecutionAnchorDeduplicatedAgainstTimings(t *testing.T) {
	d := smallDesign()
	d.ScheduleTimelines[0].Timings = []usdm.Timing{
		{ID: "shared", Name: "baseline", Type: fixedReferenceType(t)},
	}
	exec := &usdm.ExecutionModel{
		TimeAnchors: []usdm.TimeAnchor{{ID: "shared", Type: "baseline"}},
	}

	m := Build(d, nil, exec)
	count := 0
	for _, n := range m.Nodes {
		if n.Data.ID == "anchor_shared" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("anchor_shared occurs %d times, want 1", count)
	}
	if !m.Validation.Valid {
		t.Errorf("model invalid: %v", m.Validation.Errors)
	}
}

func TestBuildEpochTransitionLabel(t *testing.T) {
	m := Build(smallDesign(), nil, nil)
	e := findEdge(t, m, "trans_1")
	if e.Label != "Screening → Treatment" {
		t.Errorf("transition label = %q", e.Label)
	}
	if e.Source != "epoch_ep-scr" || e.Target != "epoch_ep-trt" {
		t.Errorf("transition endpoints = %q -> %q", e.Source, e.Target)
	}
}

func TestBuildDuplicateEpochIDNoSelfLoop(t *testing.T) {
	d := smallDesign()
	d.Epochs = append(d.Epochs, usdm.Epoch{ID: "ep-trt", Name: "Treatment Again"})

	m := Build(d, nil, nil)
	if got := countByType(m, model.NodeEpoch); got != 2 {
		t.Errorf("epoch nodes = %d, want the duplicate dropped", got)
	}
	for _, e := range m.Edges {
		if e.Type == model.EdgeTransition && e.Source == e.Target {
			t.Errorf("self-loop transition edge %q", e.ID)
		}
	}
	if got := countEdgesByType(m, model.EdgeTransition); got != 1 {
		t.Errorf("transition edges = %d, want 1", got)
	}
	if !m.Validation.Valid {
		t.Errorf("model invalid: %v", m.Validation.Errors)
	}
}

func TestTruncateCondition(t *testing.T) {
	if got := truncateCondition("short", 40); got != "short" {
		t.Errorf("short condition modified: %q", got)
	}
	long := "if subject experiences a grade 3 adverse event during the treatment period"
	got := truncateCondition(long, 40)
	if len(got) > len(long) {
		t.Errorf("truncation grew the string: %q", got)
	}
	if got[len(got)-3:] != "…" { // ellipsis rune is 3 bytes
		t.Errorf("truncated condition %q does not end with ellipsis", got)
	}
}

func TestTruncateConditionMultiByte(t *testing.T) {
	long := strings.Repeat("é", 50)
	got := truncateCondition(long, 40)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated condition is not valid UTF-8: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != 40 {
		t.Errorf("truncated length = %d runes, want 40 including the ellipsis", n)
	}
}
