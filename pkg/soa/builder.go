package soa

import (
	"github.com/trialviz/soa-analyzer/pkg/logging"
	"github.com/trialviz/soa-analyzer/pkg/overlay"
	"github.com/trialviz/soa-analyzer/pkg/provenance"
	"github.com/trialviz/soa-analyzer/pkg/resolve"
	"github.com/trialviz/soa-analyzer/pkg/usdm"
)

// instanceLink is the resolved (activity, encounter) link behind a cell.
type instanceLink struct {
	instanceID     string
	fromEnrichment bool
}

// Build constructs the SoA table model. Pure function of its inputs; a nil
// design yields an empty, structurally valid model.
func Build(design *usdm.StudyDesign, ov *overlay.Overlay, prov *provenance.Payload) *TableModel {
	m := NewTableModel()
	if design == nil {
		return m
	}

	res := resolve.New(design)

	// Activities tagged as procedure enrichment were not part of the
	// original tabular source and must not appear as empty rows.
	soaActivities := make([]usdm.Activity, 0, len(design.Activities))
	soaIDs := make(map[string]struct{})
	for _, a := range design.Activities {
		if isEnrichmentActivity(a) {
			continue
		}
		soaActivities = append(soaActivities, a)
		soaIDs[a.ID] = struct{}{}
	}

	m.Rows = buildRows(design, res, soaActivities)
	m.Columns = buildColumns(design, res)

	if ov != nil {
		m.Rows = reorderRows(m.Rows, ov.Table.RowOrder)
		m.Columns = reorderColumns(m.Columns, ov.Table.ColumnOrder)
	}

	links, enrichment := buildLinks(design, res, soaIDs)
	m.Enrichment = enrichment

	edits := usdm.DecodeCellEdits(design)
	m.Cells = buildCells(m.Rows, m.Columns, links, prov, edits)

	logging.Debug("built table model",
		"rows", len(m.Rows), "columns", len(m.Columns), "cells", len(m.Cells))
	return m
}

func isEnrichmentActivity(a usdm.Activity) bool {
	switch usdm.ActivitySource(a) {
	case usdm.SourceEnrichment, "procedure":
		return true
	}
	return false
}

// buildRows applies the three grouping strategies in order; the first one
// that yields any groups wins for the whole document.
func buildRows(design *usdm.StudyDesign, res *resolve.Resolver, activities []usdm.Activity) []Row {
	if rows := explicitGroupRows(design, res, activities); rows != nil {
		return rows
	}
	if rows := legacyParentRows(res, activities); rows != nil {
		return rows
	}
	return flatRows(res, activities)
}

// explicitGroupRows resolves ActivityGroup membership by, in precedence
// order: the group-side id list, the activity-side group-id field, and the
// name-based extension-attribute fallback.
func explicitGroupRows(design *usdm.StudyDesign, res *resolve.Resolver, activities []usdm.Activity) []Row {
	if len(design.ActivityGroups) == 0 {
		return nil
	}

	groupOf := make(map[string]string) // activity id -> group id

	for _, g := range design.ActivityGroups {
		for _, ref := range g.ActivityIDs {
			if id, ok := res.Activity(ref); ok {
				if _, assigned := groupOf[id]; !assigned {
					groupOf[id] = g.ID
				}
			}
		}
	}
	for _, a := range activities {
		if a.GroupID == "" {
			continue
		}
		if _, assigned := groupOf[a.ID]; assigned {
			continue
		}
		for _, g := range design.ActivityGroups {
			if g.ID == a.GroupID {
				groupOf[a.ID] = g.ID
				break
			}
		}
	}
	for _, a := range activities {
		tag := usdm.ActivityGroupName(a)
		if tag == "" {
			continue
		}
		if _, assigned := groupOf[a.ID]; assigned {
			continue
		}
		norm := resolve.NormalizeName(tag)
		for _, g := range design.ActivityGroups {
			if resolve.NormalizeName(g.Name) == norm || resolve.NormalizeName(g.Label) == norm {
				groupOf[a.ID] = g.ID
				break
			}
		}
	}

	if len(groupOf) == 0 {
		return nil
	}

	var rows []Row
	seen := make(map[string]struct{})
	for _, g := range design.ActivityGroups {
		var members []Row
		for _, a := range activities {
			if groupOf[a.ID] != g.ID {
				continue
			}
			members = append(members, Row{
				ID:         a.ID,
				ActivityID: a.ID,
				Label:      res.DisplayName(a.ID),
				GroupID:    g.ID,
			})
			seen[a.ID] = struct{}{}
		}
		if len(members) == 0 {
			continue
		}
		label := g.Label
		if label == "" {
			label = g.Name
		}
		rows = append(rows, Row{ID: g.ID, Label: label, IsGroupHeader: true})
		rows = append(rows, members...)
	}

	// Ungrouped activities keep their document order after the groups.
	for _, a := range activities {
		if _, grouped := seen[a.ID]; !grouped {
			rows = append(rows, Row{ID: a.ID, ActivityID: a.ID, Label: res.DisplayName(a.ID)})
		}
	}
	return rows
}

// legacyParentRows handles the older parent-activity-with-child-ids shape.
func legacyParentRows(res *resolve.Resolver, activities []usdm.Activity) []Row {
	childOf := make(map[string]string) // child activity id -> parent id
	for _, a := range activities {
		for _, ref := range a.ChildIDs {
			if id, ok := res.Activity(ref); ok {
				childOf[id] = a.ID
			}
		}
	}
	if len(childOf) == 0 {
		return nil
	}

	var rows []Row
	seen := make(map[string]struct{})
	for _, a := range activities {
		if len(a.ChildIDs) == 0 {
			continue
		}
		rows = append(rows, Row{ID: a.ID, Label: res.DisplayName(a.ID), IsGroupHeader: true})
		seen[a.ID] = struct{}{}
		for _, b := range activities {
			if childOf[b.ID] != a.ID {
				continue
			}
			rows = append(rows, Row{
				ID:         b.ID,
				ActivityID: b.ID,
				Label:      res.DisplayName(b.ID),
				GroupID:    a.ID,
			})
			seen[b.ID] = struct{}{}
		}
	}
	for _, a := range activities {
		if _, done := seen[a.ID]; !done {
			rows = append(rows, Row{ID: a.ID, ActivityID: a.ID, Label: res.DisplayName(a.ID)})
		}
	}
	return rows
}

func flatRows(res *resolve.Resolver, activities []usdm.Activity) []Row {
	rows := make([]Row, 0, len(activities))
	for _, a := range activities {
		rows = append(rows, Row{ID: a.ID, ActivityID: a.ID, Label: res.DisplayName(a.ID)})
	}
	return rows
}

// buildColumns groups encounters by epoch in document order, applying the
// same unresolvable-epoch filter as the graph builder so both views stay
// consistent for the same document.
func buildColumns(design *usdm.StudyDesign, res *resolve.Resolver) []Column {
	columns := make([]Column, 0, len(design.Encounters))
	for _, epoch := range design.Epochs {
		for _, enc := range design.Encounters {
			epochID, ok := res.Epoch(enc.EpochID)
			if !ok || epochID != epoch.ID {
				continue
			}
			columns = append(columns, Column{
				EncounterID: enc.ID,
				Label:       res.DisplayName(enc.ID),
				EpochID:     epoch.ID,
				EpochLabel:  res.DisplayName(epoch.ID),
			})
		}
	}
	return columns
}

// buildLinks indexes scheduled activity instances by (activity, encounter).
// Only activities in the SoA set get link entries; an original-table instance
// always wins over an enrichment instance for the same pair. Enrichment
// instances are additionally collected for the UI, whatever activity they
// target.
func buildLinks(design *usdm.StudyDesign, res *resolve.Resolver, soaIDs map[string]struct{}) (map[string]instanceLink, []EnrichmentInstance) {
	links := make(map[string]instanceLink)
	var enrichment []EnrichmentInstance

	for _, inst := range design.ActivityInstances() {
		encID, ok := res.Encounter(inst.EncounterID)
		if !ok {
			continue
		}
		fromEnrichment := usdm.IsEnrichmentInstance(inst)

		for _, ref := range inst.ActivityIDs {
			actID, _ := res.Activity(ref)
			key := provenance.CellKey(actID, encID)

			if fromEnrichment {
				enrichment = append(enrichment, EnrichmentInstance{
					InstanceID:  inst.ID,
					ActivityID:  actID,
					EncounterID: encID,
				})
			}

			if _, inSoA := soaIDs[actID]; !inSoA {
				continue
			}

			existing, exists := links[key]
			switch {
			case !exists:
				links[key] = instanceLink{instanceID: inst.ID, fromEnrichment: fromEnrichment}
			case existing.fromEnrichment && !fromEnrichment:
				// The original extraction takes precedence over enrichment.
				links[key] = instanceLink{instanceID: inst.ID, fromEnrichment: false}
			}
		}
	}

	return links, enrichment
}

// buildCells enumerates every activity row against every column. Mark
// precedence: explicit user edit, then instance link, then provenance
// assertion, then absent.
func buildCells(rows []Row, columns []Column, links map[string]instanceLink, prov *provenance.Payload, edits map[string]string) map[string]Cell {
	cells := make(map[string]Cell, len(rows)*len(columns))

	for _, row := range rows {
		if row.IsGroupHeader {
			continue
		}
		for _, col := range columns {
			key := provenance.CellKey(row.ActivityID, col.EncounterID)
			cell := Cell{
				Key:         key,
				ActivityID:  row.ActivityID,
				EncounterID: col.EncounterID,
				Footnotes:   prov.Footnotes(row.ActivityID, col.EncounterID),
			}

			link, hasLink := links[key]
			src, hasProv := prov.Source(row.ActivityID, col.EncounterID)
			edit, hasEdit := edits[key]

			switch {
			case hasEdit:
				m := Mark(edit)
				cell.Mark = &m
			case hasLink:
				m := MarkX
				cell.Mark = &m
			case hasProv && src != provenance.SourceNone:
				m := MarkX
				cell.Mark = &m
			}

			if hasProv {
				cell.Source = src
			} else if hasLink {
				cell.Source = provenance.SourceNone
			}

			if hasLink {
				cell.InstanceID = link.instanceID
				cell.FromEnrichment = link.fromEnrichment
				// A linked mark with no confirming provenance needs review,
				// unless the instance is enrichment-sourced (self-confirming)
				// or the user asserted the mark explicitly.
				if !hasEdit && !link.fromEnrichment && (!hasProv || src == provenance.SourceNone) {
					cell.NeedsReview = true
				}
			}

			cells[key] = cell
		}
	}
	return cells
}

// reorderRows applies the overlay's saved row order: rows named in the order
// come first in that sequence, the remainder keeps document order.
func reorderRows(rows []Row, order []string) []Row {
	if len(order) == 0 {
		return rows
	}
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}

	ordered := make([]Row, 0, len(rows))
	rest := make([]Row, 0, len(rows))
	byID := make(map[string]Row, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	taken := make(map[string]struct{})
	for _, id := range order {
		if r, ok := byID[id]; ok {
			ordered = append(ordered, r)
			taken[id] = struct{}{}
		}
	}
	for _, r := range rows {
		if _, ok := taken[r.ID]; !ok {
			rest = append(rest, r)
		}
	}
	return append(ordered, rest...)
}

func reorderColumns(columns []Column, order []string) []Column {
	if len(order) == 0 {
		return columns
	}
	ordered := make([]Column, 0, len(columns))
	byID := make(map[string]Column, len(columns))
	for _, c := range columns {
		byID[c.EncounterID] = c
	}
	taken := make(map[string]struct{})
	for _, id := range order {
		if c, ok := byID[id]; ok {
			ordered = append(ordered, c)
			taken[id] = struct{}{}
		}
	}
	for _, c := range columns {
		if _, ok := taken[c.EncounterID]; !ok {
			ordered = append(ordered, c)
		}
	}
	return ordered
}
