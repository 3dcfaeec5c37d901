package output

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/trialviz/soa-analyzer/pkg/store"
)

// PrintStudyReport prints a formatted console report of a built snapshot.
func PrintStudyReport(document string, snap *store.Snapshot) {
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	bold.Println("SoA Analyzer - Study Report")
	bold.Println("===========================")
	fmt.Printf("Document: %s\n", document)
	if snap.Design != nil && snap.Design.Name != "" {
		fmt.Printf("Study: %s\n", snap.Design.Name)
	}
	fmt.Println()

	cyan.Println("GRAPH MODEL:")
	fmt.Printf("  Nodes: %d\n", len(snap.Graph.Nodes))
	fmt.Printf("  Edges: %d\n", len(snap.Graph.Edges))
	if len(snap.Flow.Cycles) > 0 {
		yellow.Printf("  Cycles: %d\n", len(snap.Flow.Cycles))
	}
	if len(snap.Flow.Orphans) > 0 {
		fmt.Printf("  Orphan nodes: %d\n", len(snap.Flow.Orphans))
	}
	fmt.Println()

	cyan.Println("SCHEDULE OF ACTIVITIES:")
	fmt.Printf("  Rows: %d\n", len(snap.Table.Rows))
	fmt.Printf("  Columns: %d\n", len(snap.Table.Columns))
	needsReview := 0
	marked := 0
	for _, cell := range snap.Table.Cells {
		if cell.Mark != nil {
			marked++
		}
		if cell.NeedsReview {
			needsReview++
		}
	}
	fmt.Printf("  Marked cells: %d\n", marked)
	if needsReview > 0 {
		yellow.Printf("  Cells needing review: %d\n", needsReview)
	}
	if len(snap.Table.Enrichment) > 0 {
		fmt.Printf("  Enrichment instances: %d\n", len(snap.Table.Enrichment))
	}
	fmt.Println()

	if len(snap.Methods) > 0 {
		cyan.Println("STATISTICAL ANALYSIS:")
		for _, m := range snap.Methods {
			fmt.Printf("  %s", m.Name)
			if m.Endpoint != "" {
				fmt.Printf(" (%s)", m.Endpoint)
			}
			fmt.Println()
		}
		fmt.Println()
	}

	if len(snap.Issues) > 0 {
		yellow.Printf("EXTRACTION ISSUES (%d):\n", len(snap.Issues))
		for _, iss := range snap.Issues {
			fmt.Printf("  [%s] %s\n", iss.Severity, iss.Message)
		}
		fmt.Println()
	}

	if snap.Graph.Validation.Valid {
		green.Println("✓ Graph model is valid")
		return
	}

	red.Printf("VALIDATION ERRORS (%d):\n", len(snap.Graph.Validation.Errors))
	for _, e := range snap.Graph.Validation.Errors {
		yellow.Printf("  [%s] %s: %s\n", e.Category, e.ID, e.Detail)
	}
}
