package graph

import (
	"strings"

	"github.com/trialviz/soa-analyzer/pkg/logging"
	"github.com/trialviz/soa-analyzer/pkg/model"
	"github.com/trialviz/soa-analyzer/pkg/usdm"
)

// anchorGlyph prefixes anchor labels in the diagram.
const anchorGlyph = "⚓"

// anchorKeywords maps declared time-anchor types to encounter-label keywords
// used for horizontal alignment. First match wins; the heuristic is
// deliberately best-effort.
var anchorKeywords = map[string][]string{
	"baseline":         {"baseline"},
	"first-dose":       {"first dose", "dose 1", "day 1"},
	"day-1":            {"day 1"},
	"randomization":    {"randomization", "randomisation"},
	"screening":        {"screening"},
	"informed-consent": {"informed consent", "consent"},
}

func (b *builder) addTimingNodes() {
	var timings []usdm.Timing
	for _, tl := range b.design.ScheduleTimelines {
		timings = append(timings, tl.Timings...)
	}

	for i, t := range timings {
		isAnchor := t.Type.IsFixedReference()
		id := "timing_" + t.ID
		nodeType := model.NodeTiming
		if isAnchor {
			id = "anchor_" + t.ID
			nodeType = model.NodeAnchor
		}

		relEnc := b.relativeEncounter(t)
		relName := ""
		if relEnc != nil {
			relName = relEnc.label
		} else if t.RelativeToScheduledInstanceID != "" {
			relName = b.res.DisplayName(t.RelativeToScheduledInstanceID)
		}

		pos := b.eng.TimingPosition(i, len(timings), b.graphWidth)
		if isAnchor {
			if enc, ok := b.alignAnchor(normalizeAnchorType(t.Name), t.Label); ok {
				pos = b.eng.AnchorPosition(enc.x)
			}
		}

		if !b.addNode(model.NodeData{
			ID:          id,
			Label:       timingLabel(t, isAnchor, relName),
			Type:        nodeType,
			USDMRef:     t.ID,
			TimingType:  t.Type.Display(),
			TimingValue: timingValue(t),
			WindowLabel: t.WindowLabel,
			IsAnchor:    isAnchor,
		}, pos) {
			continue
		}

		if relEnc != nil {
			b.addEdge("edge_rel_"+t.ID, id, relEnc.nodeID, model.EdgeTiming, timingValue(t))
		}
	}
}

// relativeEncounter resolves a timing's relative-to instance reference down
// to the created encounter node it schedules, if any.
func (b *builder) relativeEncounter(t usdm.Timing) *encounterNode {
	if t.RelativeToScheduledInstanceID == "" {
		return nil
	}
	for _, tl := range b.design.ScheduleTimelines {
		for _, inst := range tl.Instances {
			if inst.ID != t.RelativeToScheduledInstanceID {
				continue
			}
			encID, ok := b.res.Encounter(inst.EncounterID)
			if !ok {
				return nil
			}
			if idx, created := b.encByID[encID]; created {
				return &b.encounters[idx]
			}
			return nil
		}
	}
	return nil
}

// timingValue prefers the human-readable value label over the raw value.
func timingValue(t usdm.Timing) string {
	if t.ValueLabel != "" {
		return t.ValueLabel
	}
	return t.Value
}

// timingLabel concatenates glyph, name, value, window and relative-to suffix
// in a fixed order, omitting missing parts rather than emitting placeholders.
func timingLabel(t usdm.Timing, isAnchor bool, relName string) string {
	var parts []string
	if isAnchor {
		parts = append(parts, anchorGlyph)
	}
	if name := displayFirst(t.Label, t.Name); name != "" {
		parts = append(parts, name)
	}
	if v := timingValue(t); v != "" {
		parts = append(parts, v)
	}
	if t.WindowLabel != "" {
		parts = append(parts, "("+t.WindowLabel+")")
	}
	if relName != "" {
		parts = append(parts, "→ "+relName)
	}
	return strings.Join(parts, " ")
}

func displayFirst(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}

// addExecutionModelNodes emits anchor nodes for declared time anchors and
// repetition nodes for repeating visit patterns. Anchor ids are deduplicated
// against the anchors already created from timing definitions.
func (b *builder) addExecutionModelNodes() {
	if b.exec == nil {
		return
	}

	for i, a := range b.exec.TimeAnchors {
		id := "anchor_" + a.ID
		if _, exists := b.nodeIDs[id]; exists {
			logging.Debug("time anchor already present from timings", "id", id)
			continue
		}

		label := displayFirst(a.Label, a.Type, "Anchor")
		pos := b.eng.TimingPosition(i, len(b.exec.TimeAnchors), b.graphWidth)
		enc, aligned := b.alignAnchor(normalizeAnchorType(a.Type), a.Definition)
		if aligned {
			pos = b.eng.AnchorPosition(enc.x)
		}

		if !b.addNode(model.NodeData{
			ID:       id,
			Label:    anchorGlyph + " " + label,
			Type:     model.NodeAnchor,
			USDMRef:  a.ID,
			IsAnchor: true,
		}, pos) {
			continue
		}

		if aligned {
			b.addEdge("edge_anchor_"+a.ID, id, enc.nodeID, model.EdgeTiming, "")
		}
	}

	for _, rep := range b.exec.Repetitions {
		encID, ok := b.res.Encounter(rep.EncounterID)
		if !ok {
			logging.Debug("skipping repetition with unresolvable encounter",
				"repetition", rep.ID, "encounterRef", rep.EncounterID)
			continue
		}
		encIdx, created := b.encByID[encID]
		if !created {
			continue
		}
		enc := b.encounters[encIdx]

		id := "repetition_" + rep.ID
		row := b.activityRows[enc.nodeID]
		if !b.addNode(model.NodeData{
			ID:          id,
			Label:       repetitionLabel(rep),
			Type:        model.NodeRepetition,
			USDMRef:     rep.ID,
			EncounterID: encID,
		}, b.eng.ActivityPosition(enc.x, row)) {
			continue
		}
		b.activityRows[enc.nodeID] = row + 1
		b.addEdge("edge_rep_"+rep.ID, enc.nodeID, id, model.EdgeTiming, "")
	}
}

func repetitionLabel(rep usdm.Repetition) string {
	if rep.Pattern != "" {
		return rep.Pattern
	}
	if rep.Count > 1 {
		return "repeats"
	}
	return "repetition"
}

// normalizeAnchorType canonicalizes anchor type spellings ("first_dose",
// "First Dose") onto the keyword table's hyphenated keys.
func normalizeAnchorType(t string) string {
	s := strings.ToLower(strings.TrimSpace(t))
	s = strings.NewReplacer("_", "-", " ", "-").Replace(s)
	return s
}

// alignAnchor finds the encounter an anchor should align with. Keyword match
// on the declared type first, then a substring match between the free-text
// definition and encounter labels. First match wins; ties are not broken
// further.
func (b *builder) alignAnchor(anchorType, definition string) (*encounterNode, bool) {
	if keywords, ok := anchorKeywords[anchorType]; ok {
		for i := range b.encounters {
			label := strings.ToLower(b.encounters[i].label)
			for _, kw := range keywords {
				if strings.Contains(label, kw) {
					return &b.encounters[i], true
				}
			}
		}
	}

	def := strings.ToLower(definition)
	if def != "" {
		for i := range b.encounters {
			label := strings.ToLower(b.encounters[i].label)
			if label != "" && strings.Contains(def, label) {
				return &b.encounters[i], true
			}
		}
	}

	return nil, false
}
