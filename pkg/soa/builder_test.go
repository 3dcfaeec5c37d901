package soa

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/trialviz/soa-analyzer/pkg/overlay"
	"github.com/trialviz/soa-analyzer/pkg/provenance"
	"github.com/trialviz/soa-analyzer/pkg/resolve"
	"github.com/trialviz/soa-analyzer/pkg/usdm"
)

// tableDesign is two activities over two visits in one epoch, with one
// scheduled instance linking Vital Signs to the Screening Visit.
func tableDesign() *usdm.StudyDesign {
	return &usdm.StudyDesign{
		Epochs: []usdm.Epoch{
			{ID: "ep-1", Name: "Screening"},
		},
		Encounters: []usdm.Encounter{
			{ID: "enc-1", Name: "Screening Visit", EpochID: "ep-1"},
			{ID: "enc-2", Name: "Baseline Visit", EpochID: "ep-1"},
		},
		Activities: []usdm.Activity{
			{ID: "act-1", Name: "Vital Signs"},
			{ID: "act-2", Name: "12-Lead ECG"},
		},
		ScheduleTimelines: []usdm.ScheduleTimeline{
			{
				ID: "tl-main",
				Instances: []usdm.ScheduledInstance{
					{
						ID:           "sai-1",
						InstanceType: usdm.InstanceTypeActivity,
						EncounterID:  "enc-1",
						ActivityIDs:  []string{"act-1"},
					},
				},
			},
		},
	}
}

func enrichmentAttr() usdm.ExtensionAttribute {
	return usdm.ExtensionAttribute{URL: "vendor/x-instanceSource", ValueString: usdm.SourceEnrichment}
}

func cellOf(t *testing.T, m *TableModel, activityID, encounterID string) Cell {
	t.Helper()
	cell, ok := m.Cells[provenance.CellKey(activityID, encounterID)]
	if !ok {
		t.Fatalf("cell %s|%s missing from matrix", activityID, encounterID)
	}
	return cell
}

func TestBuildDenseCellMatrix(t *testing.T) {
	m := Build(tableDesign(), nil, nil)

	if len(m.Rows) != 2 || len(m.Columns) != 2 {
		t.Fatalf("rows=%d columns=%d, want 2x2", len(m.Rows), len(m.Columns))
	}
	// Every activity row has an entry for every column, even when empty.
	if len(m.Cells) != 4 {
		t.Errorf("cells = %d, want dense 4", len(m.Cells))
	}

	linked := cellOf(t, m, "act-1", "enc-1")
	if linked.Mark == nil || *linked.Mark != MarkX {
		t.Errorf("linked cell mark = %v, want X", linked.Mark)
	}
	if linked.InstanceID != "sai-1" {
		t.Errorf("linked cell instance = %q, want sai-1", linked.InstanceID)
	}

	empty := cellOf(t, m, "act-2", "enc-2")
	if empty.Mark != nil {
		t.Errorf("unlinked cell mark = %v, want nil (absent)", *empty.Mark)
	}
}

func TestBuildNilDesign(t *testing.T) {
	m := Build(nil, nil, nil)
	if len(m.Rows) != 0 || len(m.Columns) != 0 || len(m.Cells) != 0 {
		t.Errorf("nil design built a non-empty model: %+v", m)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	a := Build(tableDesign(), nil, nil)
	b := Build(tableDesign(), nil, nil)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("two builds differ (-first +second):\n%s", diff)
	}
}

func TestUserEditWinsOverLink(t *testing.T) {
	d := tableDesign()
	d.ExtensionAttributes = []usdm.ExtensionAttribute{
		{URL: "vendor/x-soa-cellEdits", ValueString: `{"act-1|enc-1":"O"}`},
	}

	m := Build(d, nil, nil)
	cell := cellOf(t, m, "act-1", "enc-1")
	if cell.Mark == nil || *cell.Mark != MarkO {
		t.Errorf("edited cell mark = %v, want O over the linked X", cell.Mark)
	}
	// An explicit user assertion never needs review.
	if cell.NeedsReview {
		t.Error("edited cell flagged for review")
	}
}

func TestLinkWithoutProvenanceNeedsReview(t *testing.T) {
	m := Build(tableDesign(), nil, nil)

	cell := cellOf(t, m, "act-1", "enc-1")
	if !cell.NeedsReview {
		t.Error("unconfirmed link not flagged for review")
	}
	if cell.Source != provenance.SourceNone {
		t.Errorf("unconfirmed link source = %q, want none", cell.Source)
	}
}

func TestProvenanceConfirmsLink(t *testing.T) {
	prov := &provenance.Payload{
		Cells: map[string]provenance.CellSource{
			"act-1|enc-1": provenance.SourceBoth,
		},
		CellFootnotes: map[string][]string{
			"act-1|enc-1": {"a", "c"},
		},
	}

	m := Build(tableDesign(), nil, prov)
	cell := cellOf(t, m, "act-1", "enc-1")
	if cell.NeedsReview {
		t.Error("confirmed link flagged for review")
	}
	if cell.Source != provenance.SourceBoth {
		t.Errorf("source = %q, want both", cell.Source)
	}
	if len(cell.Footnotes) != 2 {
		t.Errorf("footnotes = %v", cell.Footnotes)
	}
}

func TestProvenanceAssertionWithoutLink(t *testing.T) {
	prov := &provenance.Payload{
		Cells: map[string]provenance.CellSource{
			"act-2|enc-2": provenance.SourceVision,
		},
	}

	m := Build(tableDesign(), nil, prov)
	cell := cellOf(t, m, "act-2", "enc-2")
	if cell.Mark == nil || *cell.Mark != MarkX {
		t.Errorf("provenance-only cell mark = %v, want X", cell.Mark)
	}
	if cell.NeedsReview {
		t.Error("provenance-asserted cell flagged for review")
	}
}

func TestLegacyNestedProvenanceShape(t *testing.T) {
	prov := &provenance.Payload{
		ActivityTimepoints: map[string]map[string]provenance.CellSource{
			"act-1": {"enc-1": provenance.SourceExtraction},
		},
	}

	m := Build(tableDesign(), nil, prov)
	cell := cellOf(t, m, "act-1", "enc-1")
	if cell.Source != provenance.SourceExtraction {
		t.Errorf("nested-shape source = %q, want extraction", cell.Source)
	}
	if cell.NeedsReview {
		t.Error("nested-shape confirmed cell flagged for review")
	}
}

func TestEnrichmentActivitiesExcludedFromRows(t *testing.T) {
	d := tableDesign()
	d.Activities = append(d.Activities, usdm.Activity{
		ID: "act-proc", Name: "Implanted Procedure",
		ExtensionAttributes: []usdm.ExtensionAttribute{
			{URL: "vendor/x-activitySource", ValueString: usdm.SourceEnrichment},
		},
	})

	m := Build(d, nil, nil)
	for _, r := range m.Rows {
		if r.ActivityID == "act-proc" {
			t.Error("enrichment activity appeared as a table row")
		}
	}
	if len(m.Cells) != 4 {
		t.Errorf("cells = %d, enrichment activity must not widen the matrix", len(m.Cells))
	}
}

func TestEnrichmentInstanceDoesNotNeedReview(t *testing.T) {
	d := tableDesign()
	d.ScheduleTimelines[0].Instances = append(d.ScheduleTimelines[0].Instances,
		usdm.ScheduledInstance{
			ID:                  "sai-enr",
			InstanceType:        usdm.InstanceTypeActivity,
			EncounterID:         "enc-2",
			ActivityIDs:         []string{"act-2"},
			ExtensionAttributes: []usdm.ExtensionAttribute{enrichmentAttr()},
		})

	m := Build(d, nil, nil)
	cell := cellOf(t, m, "act-2", "enc-2")
	if cell.Mark == nil || *cell.Mark != MarkX {
		t.Errorf("enrichment cell mark = %v, want X", cell.Mark)
	}
	if !cell.FromEnrichment {
		t.Error("cell not flagged as enrichment-sourced")
	}
	// Enrichment links are self-confirming.
	if cell.NeedsReview {
		t.Error("enrichment cell flagged for review")
	}

	if len(m.Enrichment) != 1 || m.Enrichment[0].InstanceID != "sai-enr" {
		t.Errorf("enrichment list = %+v", m.Enrichment)
	}
}

func TestBuildLinksSkipsActivitiesOutsideTable(t *testing.T) {
	d := tableDesign()
	d.Activities = append(d.Activities, usdm.Activity{
		ID: "act-proc", Name: "Implanted Procedure",
		ExtensionAttributes: []usdm.ExtensionAttribute{
			{URL: "vendor/x-activitySource", ValueString: usdm.SourceEnrichment},
		},
	})
	d.ScheduleTimelines[0].Instances = append(d.ScheduleTimelines[0].Instances,
		usdm.ScheduledInstance{
			ID: "sai-proc", InstanceType: usdm.InstanceTypeActivity,
			EncounterID: "enc-1", ActivityIDs: []string{"act-proc"},
			ExtensionAttributes: []usdm.ExtensionAttribute{enrichmentAttr()},
		})

	res := resolve.New(d)
	soaIDs := map[string]struct{}{"act-1": {}, "act-2": {}}
	links, enrichment := buildLinks(d, res, soaIDs)

	if _, ok := links[provenance.CellKey("act-proc", "enc-1")]; ok {
		t.Error("activity outside the table got a link entry")
	}
	if _, ok := links[provenance.CellKey("act-1", "enc-1")]; !ok {
		t.Error("table activity link missing")
	}
	// The instance still surfaces in the enrichment list.
	if len(enrichment) != 1 || enrichment[0].InstanceID != "sai-proc" {
		t.Errorf("enrichment list = %+v", enrichment)
	}
}

func TestOriginalInstanceWinsOverEnrichment(t *testing.T) {
	d := tableDesign()
	// Enrichment instance first in document order, original second.
	d.ScheduleTimelines[0].Instances = []usdm.ScheduledInstance{
		{
			ID: "sai-enr", InstanceType: usdm.InstanceTypeActivity,
			EncounterID: "enc-1", ActivityIDs: []string{"act-1"},
			ExtensionAttributes: []usdm.ExtensionAttribute{enrichmentAttr()},
		},
		{
			ID: "sai-orig", InstanceType: usdm.InstanceTypeActivity,
			EncounterID: "enc-1", ActivityIDs: []string{"act-1"},
		},
	}

	m := Build(d, nil, nil)
	cell := cellOf(t, m, "act-1", "enc-1")
	if cell.InstanceID != "sai-orig" {
		t.Errorf("cell instance = %q, want the original extraction to win", cell.InstanceID)
	}
	if cell.FromEnrichment {
		t.Error("cell still flagged as enrichment after original took over")
	}
}

func TestOverlayReordersRowsAndColumns(t *testing.T) {
	ov := &overlay.Overlay{
		Table: overlay.TableOverlay{
			RowOrder:    []string{"act-2", "act-1"},
			ColumnOrder: []string{"enc-2"},
		},
	}

	m := Build(tableDesign(), ov, nil)
	if m.Rows[0].ID != "act-2" || m.Rows[1].ID != "act-1" {
		t.Errorf("row order = %v %v", m.Rows[0].ID, m.Rows[1].ID)
	}
	// Named columns come first, the rest keep document order.
	if m.Columns[0].EncounterID != "enc-2" || m.Columns[1].EncounterID != "enc-1" {
		t.Errorf("column order = %v %v", m.Columns[0].EncounterID, m.Columns[1].EncounterID)
	}
}
