// Package provenance describes how each SoA table cell's value was
// determined: original extraction, vision re-check, both, or neither.
package provenance

// CellSource is the closed set of provenance sources.
type CellSource string

const (
	SourceExtraction CellSource = "extraction" // original tabular extraction
	SourceVision     CellSource = "vision"     // vision/OCR re-check
	SourceBoth       CellSource = "both"       // confirmed by both passes
	SourceNone       CellSource = "none"       // orphaned link, needs review
)

// Payload is the provenance input supplied by the host application. Two
// historical key shapes are supported: the flat composite-key Cells map and
// the legacy nested ActivityTimepoints structure.
type Payload struct {
	Cells              map[string]CellSource            `json:"cells,omitempty"`
	CellFootnotes      map[string][]string              `json:"cellFootnotes,omitempty"`
	ActivityTimepoints map[string]map[string]CellSource `json:"activityTimepoints,omitempty"`
}

// CellKey builds the composite "<activityId>|<encounterId>" key.
func CellKey(activityID, encounterID string) string {
	return activityID + "|" + encounterID
}

// Source looks up the provenance source for a cell, flat key first, legacy
// nested shape second. Safe on a nil payload.
func (p *Payload) Source(activityID, encounterID string) (CellSource, bool) {
	if p == nil {
		return "", false
	}
	if src, ok := p.Cells[CellKey(activityID, encounterID)]; ok {
		return src, true
	}
	if byVisit, ok := p.ActivityTimepoints[activityID]; ok {
		if src, ok := byVisit[encounterID]; ok {
			return src, true
		}
	}
	return "", false
}

// Footnotes returns the footnote references for a cell, or nil.
func (p *Payload) Footnotes(activityID, encounterID string) []string {
	if p == nil {
		return nil
	}
	return p.CellFootnotes[CellKey(activityID, encounterID)]
}
