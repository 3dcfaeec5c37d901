// Package soa builds the Schedule-of-Activities table model: one row per
// activity, one column per visit, and a dense cell matrix with marks,
// footnotes and provenance flags.
package soa

import "github.com/trialviz/soa-analyzer/pkg/provenance"

// Mark is a cell symbol from the closed SoA mark set. A nil *Mark means the
// cell is absent (no scheduled activity at that visit).
type Mark string

const (
	MarkX     Mark = "X"
	MarkXa    Mark = "Xa"
	MarkXb    Mark = "Xb"
	MarkXc    Mark = "Xc"
	MarkO     Mark = "O"
	MarkDash  Mark = "−"
	MarkEmpty Mark = ""
)

// Row is one table row: an activity, or a group header introducing a block
// of activity rows.
type Row struct {
	ID            string `json:"id"`
	ActivityID    string `json:"activityId,omitempty"`
	Label         string `json:"label"`
	GroupID       string `json:"groupId,omitempty"`
	IsGroupHeader bool   `json:"isGroupHeader,omitempty"`
}

// Column is one table column: an encounter, grouped under its epoch.
type Column struct {
	EncounterID string `json:"encounterId"`
	Label       string `json:"label"`
	EpochID     string `json:"epochId"`
	EpochLabel  string `json:"epochLabel"`
}

// Cell is one activity-by-visit entry, keyed "<activityId>|<encounterId>".
type Cell struct {
	Key            string                `json:"key"`
	ActivityID     string                `json:"activityId"`
	EncounterID    string                `json:"encounterId"`
	Mark           *Mark                 `json:"mark"`
	Footnotes      []string              `json:"footnotes,omitempty"`
	Source         provenance.CellSource `json:"source,omitempty"`
	InstanceID     string                `json:"instanceId,omitempty"`
	NeedsReview    bool                  `json:"needsReview,omitempty"`
	FromEnrichment bool                  `json:"fromEnrichment,omitempty"`
}

// EnrichmentInstance records a scheduled instance sourced from the execution
// model rather than the original table, surfaced separately to the UI.
type EnrichmentInstance struct {
	InstanceID  string `json:"instanceId"`
	ActivityID  string `json:"activityId"`
	EncounterID string `json:"encounterId"`
}

// TableModel is the aggregate output of one table build. The cell matrix is
// dense: every activity row has an entry for every column, even when empty.
type TableModel struct {
	Rows       []Row                `json:"rows"`
	Columns    []Column             `json:"columns"`
	Cells      map[string]Cell      `json:"cells"`
	Enrichment []EnrichmentInstance `json:"enrichment,omitempty"`
}

// NewTableModel creates an empty, structurally valid model.
func NewTableModel() *TableModel {
	return &TableModel{
		Rows:    make([]Row, 0),
		Columns: make([]Column, 0),
		Cells:   make(map[string]Cell),
	}
}
