package watcher

// ChangeAnalysis describes which models need rebuilding after a change.
type ChangeAnalysis struct {
	NeedGraphRebuild bool
	NeedTableRebuild bool
	ChangedFiles     []string
}

// AnalyzeChanges maps a change event to the rebuilds it requires.
func AnalyzeChanges(event ChangeEvent) *ChangeAnalysis {
	analysis := &ChangeAnalysis{
		ChangedFiles: event.Paths,
	}

	switch event.Type {
	case ChangeTypeDocument:
		// The study design feeds both models.
		analysis.NeedGraphRebuild = true
		analysis.NeedTableRebuild = true

	case ChangeTypeOverlay:
		// Positions affect the diagram, row/column order affects the table.
		analysis.NeedGraphRebuild = true
		analysis.NeedTableRebuild = true

	case ChangeTypeProvenance:
		// Provenance only feeds table cells.
		analysis.NeedTableRebuild = true
	}

	return analysis
}
