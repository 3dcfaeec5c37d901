// Package layout computes deterministic default coordinates for every graph
// node type. It knows nothing about the overlay; saved positions override
// these defaults per node in the graph builder.
package layout

// Config holds the named spacing constants. Values are tunable but the
// relative ordering they produce is fixed: epochs above encounters above
// activities, left to right in chronological order.
type Config struct {
	StartX           float64 `koanf:"startX"`
	EpochY           float64 `koanf:"epochY"`
	EpochMinWidth    float64 `koanf:"epochMinWidth"`
	EpochGutter      float64 `koanf:"epochGutter"`
	EncounterY       float64 `koanf:"encounterY"`
	EncounterSpacing float64 `koanf:"encounterSpacing"`
	ActivityStartY   float64 `koanf:"activityStartY"`
	ActivityRowH     float64 `koanf:"activityRowHeight"`
	TimingY          float64 `koanf:"timingY"`
	WindowOffsetY    float64 `koanf:"windowOffsetY"`
}

// DefaultConfig returns the default spacing constants.
func DefaultConfig() Config {
	return Config{
		StartX:           60,
		EpochY:           40,
		EpochMinWidth:    180,
		EpochGutter:      40,
		EncounterY:       160,
		EncounterSpacing: 150,
		ActivityStartY:   260,
		ActivityRowH:     70,
		TimingY:          560,
		WindowOffsetY:    -60,
	}
}

// Span is the horizontal extent of one epoch.
type Span struct {
	X     float64
	Width float64
}

// Point is a computed default coordinate.
type Point struct {
	X float64
	Y float64
}

// Center returns the horizontal midpoint of the span.
func (s Span) Center() float64 {
	return s.X + s.Width/2
}

// Engine computes default positions from the spacing configuration.
type Engine struct {
	cfg Config
}

// NewEngine creates a layout engine. Zero-valued configs fall back to the
// defaults so a missing config section cannot produce NaN or stacked nodes.
func NewEngine(cfg Config) *Engine {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	return &Engine{cfg: cfg}
}

// EpochSpans lays epochs out left to right. Each epoch's width grows with
// its encounter count, successive epochs are separated by a fixed gutter.
func (e *Engine) EpochSpans(encounterCounts []int) []Span {
	spans := make([]Span, len(encounterCounts))
	x := e.cfg.StartX
	for i, count := range encounterCounts {
		width := float64(count) * e.cfg.EncounterSpacing
		if width < e.cfg.EpochMinWidth {
			width = e.cfg.EpochMinWidth
		}
		spans[i] = Span{X: x, Width: width}
		x += width + e.cfg.EpochGutter
	}
	return spans
}

// EpochPosition places an epoch node at the center of its span.
func (e *Engine) EpochPosition(span Span) Point {
	return Point{X: span.Center(), Y: e.cfg.EpochY}
}

// EncounterPosition places the idx-th of count encounters evenly across the
// parent epoch's span at the fixed encounter row.
func (e *Engine) EncounterPosition(span Span, idx, count int) Point {
	if count <= 0 {
		count = 1
	}
	step := span.Width / float64(count)
	return Point{X: span.X + step*float64(idx) + step/2, Y: e.cfg.EncounterY}
}

// ActivityPosition stacks an activity in the given row below its encounter.
func (e *Engine) ActivityPosition(encounterX float64, row int) Point {
	return Point{X: encounterX, Y: e.cfg.ActivityStartY + float64(row)*e.cfg.ActivityRowH}
}

// TimingPosition distributes the idx-th of count timing nodes evenly across
// the full graph width in the timing row.
func (e *Engine) TimingPosition(idx, count int, graphWidth float64) Point {
	if count <= 0 {
		count = 1
	}
	step := graphWidth / float64(count)
	return Point{X: e.cfg.StartX + step*float64(idx) + step/2, Y: e.cfg.TimingY}
}

// AnchorPosition aligns an anchor horizontally with an encounter.
func (e *Engine) AnchorPosition(encounterX float64) Point {
	return Point{X: encounterX, Y: e.cfg.TimingY}
}

// WindowPosition places an auxiliary visit-window node above its encounter.
func (e *Engine) WindowPosition(encounter Point) Point {
	return Point{X: encounter.X, Y: encounter.Y + e.cfg.WindowOffsetY}
}

// DecisionPosition places a decision node offset from its controlling
// encounter, between the encounter row and the activity rows.
func (e *Engine) DecisionPosition(encounterX float64) Point {
	return Point{X: encounterX + e.cfg.EncounterSpacing/2, Y: e.cfg.EncounterY + e.cfg.ActivityRowH}
}

// GraphWidth returns the total horizontal extent covered by the epoch spans.
func (e *Engine) GraphWidth(spans []Span) float64 {
	if len(spans) == 0 {
		return e.cfg.EpochMinWidth
	}
	last := spans[len(spans)-1]
	return last.X + last.Width - e.cfg.StartX
}
