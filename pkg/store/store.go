// Package store owns the mutable state around the pure builders: it loads
// document snapshots from disk and holds the most recently built models
// behind a read lock for the HTTP handlers.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/trialviz/soa-analyzer/pkg/flow"
	"github.com/trialviz/soa-analyzer/pkg/graph"
	"github.com/trialviz/soa-analyzer/pkg/layout"
	"github.com/trialviz/soa-analyzer/pkg/logging"
	"github.com/trialviz/soa-analyzer/pkg/model"
	"github.com/trialviz/soa-analyzer/pkg/overlay"
	"github.com/trialviz/soa-analyzer/pkg/provenance"
	"github.com/trialviz/soa-analyzer/pkg/soa"
	"github.com/trialviz/soa-analyzer/pkg/usdm"
)

// Paths names the input files. Overlay and Provenance are optional.
type Paths struct {
	Document   string
	Overlay    string
	Provenance string
}

// Snapshot is one fully built state: the inputs as loaded and every derived
// model. Snapshots are immutable once published.
type Snapshot struct {
	Design     *usdm.StudyDesign
	Overlay    *overlay.Overlay
	Provenance *provenance.Payload
	Exec       *usdm.ExecutionModel
	Graph      *model.GraphModel
	Table      *soa.TableModel
	Flow       flow.Report
	Methods    []usdm.StatisticalMethod
	Issues     []usdm.ClassifiedIssue
	LoadedAt   time.Time
}

// Store loads inputs and rebuilds models. The watcher loop is the single
// writer; HTTP handlers read the current snapshot.
type Store struct {
	mu        sync.RWMutex
	paths     Paths
	layoutCfg layout.Config
	snap      *Snapshot
}

// New creates a store for the given input paths.
func New(paths Paths, layoutCfg layout.Config) *Store {
	return &Store{paths: paths, layoutCfg: layoutCfg}
}

// Reload re-reads all inputs and rebuilds the graph and table models. The
// study-design document is required; a broken overlay or provenance file is
// degraded to absent with a warning, matching the builders' tolerance for
// loosely consistent inputs.
func (s *Store) Reload() error {
	design, err := loadDesign(s.paths.Document)
	if err != nil {
		return err
	}

	ov := loadOverlay(s.paths.Overlay)
	prov := loadProvenance(s.paths.Provenance)
	exec := usdm.DecodeExecutionModel(design)

	graphModel := graph.BuildWithLayout(design, ov, exec, s.layoutCfg)
	tableModel := soa.Build(design, ov, prov)
	flowReport := flow.Analyze(graphModel)

	snap := &Snapshot{
		Design:     design,
		Overlay:    ov,
		Provenance: prov,
		Exec:       exec,
		Graph:      graphModel,
		Table:      tableModel,
		Flow:       flowReport,
		Methods:    usdm.DecodeStatisticalMethods(design),
		Issues:     usdm.DecodeClassifiedIssues(design),
		LoadedAt:   time.Now(),
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()

	logging.Info("rebuilt study models",
		"nodes", len(graphModel.Nodes),
		"edges", len(graphModel.Edges),
		"valid", graphModel.Validation.Valid,
		"rows", len(tableModel.Rows),
		"columns", len(tableModel.Columns))
	return nil
}

// Snapshot returns the current snapshot, or nil before the first Reload.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func loadDesign(path string) (*usdm.StudyDesign, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading study design: %w", err)
	}
	var design usdm.StudyDesign
	if err := json.Unmarshal(raw, &design); err != nil {
		return nil, fmt.Errorf("parsing study design: %w", err)
	}
	return &design, nil
}

func loadOverlay(path string) *overlay.Overlay {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		logging.Warn("overlay file unavailable", "path", path, "error", err)
		return nil
	}
	var ov overlay.Overlay
	if err := json.Unmarshal(raw, &ov); err != nil {
		logging.Warn("overlay file unparsable, ignoring", "path", path, "error", err)
		return nil
	}
	return &ov
}

func loadProvenance(path string) *provenance.Payload {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		logging.Warn("provenance file unavailable", "path", path, "error", err)
		return nil
	}
	var p provenance.Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		logging.Warn("provenance file unparsable, ignoring", "path", path, "error", err)
		return nil
	}
	return &p
}
