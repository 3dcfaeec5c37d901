package usdm

import (
	"encoding/json"
	"strings"
)

// Code represents a CDISC coded value with its human-readable decode.
type Code struct {
	Code   string `json:"code,omitempty"`
	Decode string `json:"decode,omitempty"`
}

// ExtensionAttribute carries vendor extension data on a USDM entity.
// ValueString usually holds a JSON-encoded sub-document keyed by a URL tag.
type ExtensionAttribute struct {
	URL         string          `json:"url"`
	ValueString string          `json:"valueString,omitempty"`
	Value       json.RawMessage `json:"value,omitempty"`
}

// Epoch represents a major phase of the study (Screening, Treatment, ...).
type Epoch struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Label       string `json:"label,omitempty"`
	Description string `json:"description,omitempty"`
}

// VisitWindow describes the allowed scheduling window around an encounter.
type VisitWindow struct {
	Label string `json:"label,omitempty"`
	Lower string `json:"lower,omitempty"`
	Upper string `json:"upper,omitempty"`
}

// Encounter represents a scheduled subject visit.
type Encounter struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Label       string       `json:"label,omitempty"`
	Description string       `json:"description,omitempty"`
	EpochID     string       `json:"epochId,omitempty"`
	Window      *VisitWindow `json:"window,omitempty"`
}

// Activity represents a protocol activity (assessment, procedure, ...).
type Activity struct {
	ID                  string               `json:"id"`
	Name                string               `json:"name"`
	Label               string               `json:"label,omitempty"`
	Description         string               `json:"description,omitempty"`
	GroupID             string               `json:"groupId,omitempty"`
	ChildIDs            []string             `json:"childIds,omitempty"` // legacy parent/child grouping
	ExtensionAttributes []ExtensionAttribute `json:"extensionAttributes,omitempty"`
}

// ActivityGroup represents an explicit grouping of activities for the SoA table.
type ActivityGroup struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Label       string   `json:"label,omitempty"`
	ActivityIDs []string `json:"activityIds,omitempty"`
}

// TimingType holds a timing's type, which upstream pipelines emit either as a
// bare string or as a coded value. Unmarshalling accepts both shapes.
type TimingType struct {
	Code
}

// UnmarshalJSON accepts either a JSON string or a {code, decode} object.
func (t *TimingType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.Code = Code{Decode: s}
		return nil
	}
	var c Code
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}
	t.Code = c
	return nil
}

// Display returns the human-readable form of the timing type.
func (t TimingType) Display() string {
	if t.Decode != "" {
		return t.Decode
	}
	return t.Code.Code
}

// FixedReferenceCode is the CDISC code for a fixed-reference (anchor) timing.
const FixedReferenceCode = "C201358"

// IsFixedReference reports whether the timing type marks an anchor point.
func (t TimingType) IsFixedReference() bool {
	if t.Code.Code == FixedReferenceCode {
		return true
	}
	d := strings.ToLower(t.Display())
	return d == "fixed reference" || d == "anchor"
}

// Timing represents a root-level timing definition inside a schedule timeline.
type Timing struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Label       string     `json:"label,omitempty"`
	Type        TimingType `json:"type,omitempty"`
	Value       string     `json:"value,omitempty"`
	ValueLabel  string     `json:"valueLabel,omitempty"`
	WindowLabel string     `json:"windowLabel,omitempty"`
	WindowLower string     `json:"windowLower,omitempty"`
	WindowUpper string     `json:"windowUpper,omitempty"`

	// Reference to the scheduled instance this timing is relative to.
	RelativeToScheduledInstanceID string `json:"relativeToScheduledInstanceId,omitempty"`
}

// Instance type discriminators used by ScheduledInstance.InstanceType.
const (
	InstanceTypeActivity = "ScheduledActivityInstance"
	InstanceTypeDecision = "ScheduledDecisionInstance"
)

// ConditionAssignment binds a branch condition expression to its target.
// Upstream pipelines emit either an object or a two-element [condition, target]
// array; unmarshalling accepts both.
type ConditionAssignment struct {
	Condition string `json:"condition"`
	TargetID  string `json:"conditionTargetId"`
}

// UnmarshalJSON accepts {condition, conditionTargetId} or [condition, target].
func (c *ConditionAssignment) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err == nil {
		if len(pair) > 0 {
			c.Condition = pair[0]
		}
		if len(pair) > 1 {
			c.TargetID = pair[1]
		}
		return nil
	}
	type plain ConditionAssignment
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = ConditionAssignment(p)
	return nil
}

// ScheduledInstance represents a scheduled activity or decision instance.
type ScheduledInstance struct {
	ID                   string                `json:"id"`
	Name                 string                `json:"name,omitempty"`
	InstanceType         string                `json:"instanceType"`
	EncounterID          string                `json:"encounterId,omitempty"`
	ActivityIDs          []string              `json:"activityIds,omitempty"`
	DefaultConditionID   string                `json:"defaultConditionId,omitempty"`
	ConditionAssignments []ConditionAssignment `json:"conditionAssignments,omitempty"`
	ExtensionAttributes  []ExtensionAttribute  `json:"extensionAttributes,omitempty"`
}

// UnmarshalJSON normalizes the singular activityId field into ActivityIDs so
// the builders only ever see the plural form.
func (s *ScheduledInstance) UnmarshalJSON(data []byte) error {
	type plain ScheduledInstance
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	var aux struct {
		ActivityID string `json:"activityId"`
	}
	// Best-effort: a second pass for the singular field only.
	_ = json.Unmarshal(data, &aux)
	if aux.ActivityID != "" {
		found := false
		for _, id := range p.ActivityIDs {
			if id == aux.ActivityID {
				found = true
				break
			}
		}
		if !found {
			p.ActivityIDs = append(p.ActivityIDs, aux.ActivityID)
		}
	}

	*s = ScheduledInstance(p)
	return nil
}

// ScheduleTimeline holds the scheduled instances and timings of one timeline.
type ScheduleTimeline struct {
	ID           string              `json:"id"`
	Name         string              `json:"name,omitempty"`
	MainTimeline bool                `json:"mainTimeline,omitempty"`
	Instances    []ScheduledInstance `json:"instances,omitempty"`
	Timings      []Timing            `json:"timings,omitempty"`
}

// StudyDesign is the root of the USDM study-design document consumed by the
// builders. All collections may be empty; entity ids may be UUIDs or
// positional aliases depending on the pipeline that produced the document.
type StudyDesign struct {
	ID                  string               `json:"id,omitempty"`
	Name                string               `json:"name,omitempty"`
	Epochs              []Epoch              `json:"epochs,omitempty"`
	Encounters          []Encounter          `json:"encounters,omitempty"`
	Activities          []Activity           `json:"activities,omitempty"`
	ActivityGroups      []ActivityGroup      `json:"activityGroups,omitempty"`
	ScheduleTimelines   []ScheduleTimeline   `json:"scheduleTimelines,omitempty"`
	ExtensionAttributes []ExtensionAttribute `json:"extensionAttributes,omitempty"`
}

// ActivityInstances returns all scheduled activity instances across timelines,
// in document order.
func (d *StudyDesign) ActivityInstances() []ScheduledInstance {
	var out []ScheduledInstance
	for _, tl := range d.ScheduleTimelines {
		for _, inst := range tl.Instances {
			if inst.InstanceType == InstanceTypeActivity {
				out = append(out, inst)
			}
		}
	}
	return out
}

// DecisionInstances returns all scheduled decision instances across timelines,
// in document order.
func (d *StudyDesign) DecisionInstances() []ScheduledInstance {
	var out []ScheduledInstance
	for _, tl := range d.ScheduleTimelines {
		for _, inst := range tl.Instances {
			if inst.InstanceType == InstanceTypeDecision {
				out = append(out, inst)
			}
		}
	}
	return out
}
