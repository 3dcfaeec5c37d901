// Package resolve maps entity references onto canonical study-design
// entities. A reference may be a persistent UUID, a positional alias like
// "epoch_3", or a free-text name with cosmetic drift; resolution degrades
// gracefully and passes unknown references through unchanged.
package resolve

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/trialviz/soa-analyzer/pkg/usdm"
)

// RefKind classifies the syntactic shape of an entity reference.
type RefKind int

const (
	RefName RefKind = iota // free-text name, the fallback classification
	RefUUID                // persistent UUID
	RefAlias               // positional alias, e.g. "enc_12"
)

// Alias prefixes recognized per entity type.
const (
	AliasEpoch     = "epoch"
	AliasEncounter = "enc"
	AliasActivity  = "act"
	AliasTiming    = "timing"
)

var aliasPattern = regexp.MustCompile(`^(epoch|enc|act|timing)_(\d+)$`)

// EntityRef is the parsed form of a reference string.
type EntityRef struct {
	Raw       string
	Kind      RefKind
	AliasKind string // set for RefAlias
	Index     int    // 1-based position, set for RefAlias
}

// ParseRef classifies a raw reference string.
func ParseRef(raw string) EntityRef {
	if _, err := uuid.Parse(raw); err == nil {
		return EntityRef{Raw: raw, Kind: RefUUID}
	}
	if m := aliasPattern.FindStringSubmatch(raw); m != nil {
		idx, _ := strconv.Atoi(m[2])
		return EntityRef{Raw: raw, Kind: RefAlias, AliasKind: m[1], Index: idx}
	}
	return EntityRef{Raw: raw, Kind: RefName}
}

// entry is one resolvable entity in document order.
type entry struct {
	id    string
	name  string
	label string
}

func (e entry) display() string {
	if e.label != "" {
		return e.label
	}
	return e.name
}

// Resolver resolves references against one study design's collections.
// It is built once per builder invocation and holds no mutable state.
type Resolver struct {
	epochs     []entry
	encounters []entry
	activities []entry
	timings    []entry

	// byID spans all collections for exact-id and display lookups.
	byID map[string]entry
	// normalized display name -> entry, per collection.
	epochNames     map[string]entry
	encounterNames map[string]entry
	activityNames  map[string]entry
	timingNames    map[string]entry
}

// New builds a resolver from the design's collections. A nil design yields
// an empty resolver where every lookup passes through.
func New(design *usdm.StudyDesign) *Resolver {
	r := &Resolver{byID: make(map[string]entry)}
	if design == nil {
		r.buildNameIndexes()
		return r
	}

	for _, e := range design.Epochs {
		r.epochs = append(r.epochs, entry{id: e.ID, name: e.Name, label: e.Label})
	}
	for _, e := range design.Encounters {
		r.encounters = append(r.encounters, entry{id: e.ID, name: e.Name, label: e.Label})
	}
	for _, a := range design.Activities {
		r.activities = append(r.activities, entry{id: a.ID, name: a.Name, label: a.Label})
	}
	for _, tl := range design.ScheduleTimelines {
		for _, t := range tl.Timings {
			r.timings = append(r.timings, entry{id: t.ID, name: t.Name, label: t.Label})
		}
	}

	for _, col := range [][]entry{r.epochs, r.encounters, r.activities, r.timings} {
		for _, e := range col {
			if _, exists := r.byID[e.id]; !exists {
				r.byID[e.id] = e
			}
		}
	}
	r.buildNameIndexes()
	return r
}

func (r *Resolver) buildNameIndexes() {
	r.epochNames = nameIndex(r.epochs)
	r.encounterNames = nameIndex(r.encounters)
	r.activityNames = nameIndex(r.activities)
	r.timingNames = nameIndex(r.timings)
}

func nameIndex(col []entry) map[string]entry {
	idx := make(map[string]entry, len(col)*2)
	for _, e := range col {
		for _, n := range []string{e.name, e.label} {
			key := NormalizeName(n)
			if key == "" {
				continue
			}
			// First entity wins on name collisions.
			if _, exists := idx[key]; !exists {
				idx[key] = e
			}
		}
	}
	return idx
}

// NormalizeName lowers casing and collapses whitespace, underscore and
// hyphen variants so cosmetically drifted names still match.
func NormalizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// resolve applies the three-step resolution order against one collection:
// exact id, alias index, normalized name. On a miss the raw reference is
// returned with ok=false so callers can fall back to displaying it as-is.
func (r *Resolver) resolve(raw, aliasKind string, col []entry, names map[string]entry) (string, bool) {
	for _, e := range col {
		if e.id == raw {
			return e.id, true
		}
	}

	ref := ParseRef(raw)
	if ref.Kind == RefAlias && ref.AliasKind == aliasKind {
		if ref.Index >= 1 && ref.Index <= len(col) {
			return col[ref.Index-1].id, true
		}
		// Out-of-range alias passes through unresolved.
		return raw, false
	}

	if e, ok := names[NormalizeName(raw)]; ok {
		return e.id, true
	}
	return raw, false
}

// Epoch resolves a reference against the epoch collection.
func (r *Resolver) Epoch(raw string) (string, bool) {
	return r.resolve(raw, AliasEpoch, r.epochs, r.epochNames)
}

// Encounter resolves a reference against the encounter collection.
func (r *Resolver) Encounter(raw string) (string, bool) {
	return r.resolve(raw, AliasEncounter, r.encounters, r.encounterNames)
}

// Activity resolves a reference against the activity collection.
func (r *Resolver) Activity(raw string) (string, bool) {
	return r.resolve(raw, AliasActivity, r.activities, r.activityNames)
}

// Timing resolves a reference against the timing collection.
func (r *Resolver) Timing(raw string) (string, bool) {
	return r.resolve(raw, AliasTiming, r.timings, r.timingNames)
}

// DisplayName returns the display name for a canonical entity id, or the
// reference itself when unknown.
func (r *Resolver) DisplayName(id string) string {
	if e, ok := r.byID[id]; ok {
		if d := e.display(); d != "" {
			return d
		}
	}
	return id
}
