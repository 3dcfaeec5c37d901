package usdm

import (
	"encoding/json"
	"strings"
)

// URL tags identifying known extension sub-documents. Matching is by
// substring since pipelines disagree on the URL prefix.
const (
	TagExecutionModel   = "x-executionModel"
	TagCellEdits        = "x-soa-cellEdits"
	TagActivitySource   = "x-activitySource"
	TagInstanceSource   = "x-instanceSource"
	TagActivityGroup    = "x-activityGroup"
	TagControllingVisit = "x-controllingEncounter"
	TagClassifiedIssues = "classifiedIssues"
	TagSAPMethods       = "x-sap-statistical-methods"
)

// TimeAnchor is a declared anchor point from the execution-model extraction
// (baseline, first dose, randomization, ...).
type TimeAnchor struct {
	ID         string `json:"id"`
	Type       string `json:"type,omitempty"` // e.g. "baseline", "first-dose", "day-1"
	Label      string `json:"label,omitempty"`
	Definition string `json:"definition,omitempty"`
}

// Repetition describes a repeating visit pattern from the execution model.
type Repetition struct {
	ID          string `json:"id"`
	EncounterID string `json:"encounterId,omitempty"`
	Pattern     string `json:"pattern,omitempty"`
	Count       int    `json:"count,omitempty"`
}

// ExecutionModel is the derived extraction layer carried via extension
// attributes: time anchors, visit windows and repetition patterns.
type ExecutionModel struct {
	TimeAnchors  []TimeAnchor           `json:"timeAnchors,omitempty"`
	VisitWindows map[string]VisitWindow `json:"visitWindows,omitempty"` // keyed by encounter ref
	Repetitions  []Repetition           `json:"repetitions,omitempty"`
}

// StatisticalMethod is one entry of the SAP extension. Display-only; no
// computation happens on these values.
type StatisticalMethod struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`
}

// ClassifiedIssue is an extraction-quality finding attached to the document.
type ClassifiedIssue struct {
	ID       string `json:"id"`
	Category string `json:"category,omitempty"`
	Severity string `json:"severity,omitempty"`
	Message  string `json:"message,omitempty"`
	Ref      string `json:"ref,omitempty"`
}

// FindExtension returns the first attribute whose URL contains the tag.
func FindExtension(attrs []ExtensionAttribute, tag string) (ExtensionAttribute, bool) {
	for _, attr := range attrs {
		if strings.Contains(attr.URL, tag) {
			return attr, true
		}
	}
	return ExtensionAttribute{}, false
}

// ExtensionValue returns the plain string value of the first attribute whose
// URL contains the tag, preferring ValueString over a JSON string Value.
func ExtensionValue(attrs []ExtensionAttribute, tag string) string {
	attr, ok := FindExtension(attrs, tag)
	if !ok {
		return ""
	}
	if attr.ValueString != "" {
		return attr.ValueString
	}
	var s string
	if err := json.Unmarshal(attr.Value, &s); err == nil {
		return s
	}
	return ""
}

// decodeExtension decodes the JSON payload of the tagged attribute into v.
// Parse failures are swallowed: malformed extension data must never abort a
// build, the sub-structure is simply absent.
func decodeExtension(attrs []ExtensionAttribute, tag string, v any) bool {
	attr, ok := FindExtension(attrs, tag)
	if !ok {
		return false
	}
	raw := []byte(attr.ValueString)
	if len(raw) == 0 {
		raw = attr.Value
	}
	if len(raw) == 0 {
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false
	}
	return true
}

// DecodeExecutionModel extracts the execution-model sub-document from the
// design, or nil when absent or unparsable.
func DecodeExecutionModel(d *StudyDesign) *ExecutionModel {
	if d == nil {
		return nil
	}
	var em ExecutionModel
	if !decodeExtension(d.ExtensionAttributes, TagExecutionModel, &em) {
		return nil
	}
	return &em
}

// DecodeCellEdits extracts user-edited SoA cell marks keyed by the composite
// "<activityId>|<encounterId>" cell key. Missing or malformed data yields an
// empty map.
func DecodeCellEdits(d *StudyDesign) map[string]string {
	edits := make(map[string]string)
	if d == nil {
		return edits
	}
	decodeExtension(d.ExtensionAttributes, TagCellEdits, &edits)
	return edits
}

// DecodeStatisticalMethods extracts the SAP methods list, or nil when absent.
func DecodeStatisticalMethods(d *StudyDesign) []StatisticalMethod {
	if d == nil {
		return nil
	}
	var methods []StatisticalMethod
	if !decodeExtension(d.ExtensionAttributes, TagSAPMethods, &methods) {
		return nil
	}
	return methods
}

// DecodeClassifiedIssues extracts extraction-quality issues, or nil.
func DecodeClassifiedIssues(d *StudyDesign) []ClassifiedIssue {
	if d == nil {
		return nil
	}
	var issues []ClassifiedIssue
	if !decodeExtension(d.ExtensionAttributes, TagClassifiedIssues, &issues) {
		return nil
	}
	return issues
}

// SourceEnrichment marks activities/instances sourced from the execution
// model rather than the original tabular extraction.
const SourceEnrichment = "enrichment"

// ActivitySource returns the partition tag of an activity. Untagged
// activities belong to the original Schedule-of-Activities table.
func ActivitySource(a Activity) string {
	return ExtensionValue(a.ExtensionAttributes, TagActivitySource)
}

// InstanceSource returns the source tag of a scheduled instance.
func InstanceSource(inst ScheduledInstance) string {
	return ExtensionValue(inst.ExtensionAttributes, TagInstanceSource)
}

// IsEnrichmentInstance reports whether the instance came from the execution
// model rather than the original table extraction.
func IsEnrichmentInstance(inst ScheduledInstance) bool {
	return InstanceSource(inst) == SourceEnrichment
}

// ControllingEncounterRef returns the declared controlling-encounter
// reference of a decision instance, if any.
func ControllingEncounterRef(inst ScheduledInstance) string {
	return ExtensionValue(inst.ExtensionAttributes, TagControllingVisit)
}

// ActivityGroupName returns the name-based group fallback tag of an activity.
func ActivityGroupName(a Activity) string {
	return ExtensionValue(a.ExtensionAttributes, TagActivityGroup)
}
