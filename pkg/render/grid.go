package render

import (
	"github.com/trialviz/soa-analyzer/pkg/provenance"
	"github.com/trialviz/soa-analyzer/pkg/soa"
)

// ColumnDef is a data-grid column definition. Epoch header groups carry
// child definitions, leaf definitions carry the field key.
type ColumnDef struct {
	Field      string      `json:"field,omitempty"`
	HeaderName string      `json:"headerName"`
	Children   []ColumnDef `json:"children,omitempty"`
}

// colField builds the per-encounter grid field key.
func colField(encounterID string) string {
	return "col_" + encounterID
}

// GridRows converts the table model into one row object per table row, with
// a field per column holding the cell mark.
func GridRows(m *soa.TableModel) []map[string]any {
	rows := make([]map[string]any, 0, len(m.Rows))
	for _, r := range m.Rows {
		row := map[string]any{
			"id":    r.ID,
			"label": r.Label,
		}
		if r.IsGroupHeader {
			row["isGroupHeader"] = true
			rows = append(rows, row)
			continue
		}
		for _, c := range m.Columns {
			cell, ok := m.Cells[provenance.CellKey(r.ActivityID, c.EncounterID)]
			if !ok || cell.Mark == nil {
				row[colField(c.EncounterID)] = nil
				continue
			}
			row[colField(c.EncounterID)] = string(*cell.Mark)
		}
		rows = append(rows, row)
	}
	return rows
}

// GridColumnDefs groups the column definitions by epoch as header groups.
func GridColumnDefs(m *soa.TableModel) []ColumnDef {
	defs := []ColumnDef{{Field: "label", HeaderName: "Activity"}}

	var current *ColumnDef
	currentEpoch := ""
	for _, c := range m.Columns {
		if current == nil || currentEpoch != c.EpochID {
			defs = appendGroup(defs, current)
			current = &ColumnDef{HeaderName: c.EpochLabel}
			currentEpoch = c.EpochID
		}
		current.Children = append(current.Children, ColumnDef{
			Field:      colField(c.EncounterID),
			HeaderName: c.Label,
		})
	}
	defs = appendGroup(defs, current)
	return defs
}

func appendGroup(defs []ColumnDef, group *ColumnDef) []ColumnDef {
	if group == nil {
		return defs
	}
	return append(defs, *group)
}
