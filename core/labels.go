package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxTagLength is the longest manual tag accepted, in characters.
const MaxTagLength = 50

// Tags is a list of manual tags. It decodes from a JSON array or from a
// comma-separated string and always encodes as an array.
type Tags []string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Tags) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = Tags{}
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = Tags(list)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("manual_tags must be an array or a comma-separated string")
	}
	*t = SplitTags(s)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Tags) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(t))
}

// SplitTags splits a comma-separated tag string, dropping blanks.
func SplitTags(s string) Tags {
	out := Tags{}
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ValidateTag checks a single manual tag.
func ValidateTag(tag string) error {
	if strings.TrimSpace(tag) == "" {
		return ErrEmptyTag
	}
	if utf8.RuneCountInString(tag) > MaxTagLength {
		return fmt.Errorf("%w: %q", ErrTagTooLong, tag)
	}
	return nil
}

// Normalize trims every tag and drops blanks and duplicates, keeping order.
func (t Tags) Normalize() Tags {
	seen := make(map[string]struct{}, len(t))
	out := make(Tags, 0, len(t))
	for _, tag := range t {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// Contains reports whether tag is in t.
func (t Tags) Contains(tag string) bool {
	for _, v := range t {
		if v == tag {
			return true
		}
	}
	return false
}

// Merge appends the tags from other that t does not already contain.
func (t Tags) Merge(other Tags) Tags {
	out := append(Tags{}, t...)
	for _, tag := range other {
		if !out.Contains(tag) {
			out = append(out, tag)
		}
	}
	return out
}

// Labels is the label document stored with an event.
type Labels struct {
	TruePositive   *bool                  `json:"true_positive,omitempty"`
	AttackType     string                 `json:"attack_type,omitempty"`
	MitreTactic    string                 `json:"mitre_tactic,omitempty"`
	MitreTechnique string                 `json:"mitre_technique,omitempty"`
	ManualTags     Tags                   `json:"manual_tags"`
	AutoTags       []string               `json:"auto_tags,omitempty"`
	MLLabels       map[string]interface{} `json:"ml_labels,omitempty"`

	// Snapshot of the ML suggestion taken when an analyst verifies it
	MLTruePositive        *bool      `json:"ml_true_positive,omitempty"`
	MLAttackType          string     `json:"ml_attack_type,omitempty"`
	MLMitreTactic         string     `json:"ml_mitre_tactic,omitempty"`
	MLMitreTechnique      string     `json:"ml_mitre_technique,omitempty"`
	VerificationComment   string     `json:"verification_comment,omitempty"`
	VerificationTimestamp *time.Time `json:"verification_timestamp,omitempty"`
}

// HasMLSuggestions reports whether the ML provider left suggestions.
func (l Labels) HasMLSuggestions() bool {
	return len(l.MLLabels) > 0
}

// LabelRequest is the analyst's label submission for one event.
type LabelRequest struct {
	TruePositive   *bool  `json:"true_positive"`
	AttackType     string `json:"attack_type" validate:"max=100"`
	MitreTactic    string `json:"mitre_tactic" validate:"max=100"`
	MitreTechnique string `json:"mitre_technique" validate:"max=100"`
	ManualTags     Tags   `json:"manual_tags" validate:"max=50,dive,required,max=50"`
}

// Normalize trims free-text fields and cleans the tag list.
func (r *LabelRequest) Normalize() {
	r.AttackType = strings.TrimSpace(r.AttackType)
	r.MitreTactic = strings.TrimSpace(r.MitreTactic)
	r.MitreTechnique = strings.TrimSpace(r.MitreTechnique)
	r.ManualTags = r.ManualTags.Normalize()
}

// Validate checks the request. Tag violations are reported with ErrTagTooLong
// so callers can tell them apart from other field errors.
func (r *LabelRequest) Validate() error {
	for _, tag := range r.ManualTags {
		if err := ValidateTag(tag); err != nil {
			return err
		}
	}
	return Validate(r)
}

// Apply writes the request onto an event's label document and top-level mirrors.
func (r *LabelRequest) Apply(e *Event) {
	e.Labels.TruePositive = r.TruePositive
	e.Labels.AttackType = r.AttackType
	e.Labels.MitreTactic = r.MitreTactic
	e.Labels.MitreTechnique = r.MitreTechnique
	e.Labels.ManualTags = r.ManualTags

	e.TruePositive = r.TruePositive
	e.AttackType = r.AttackType
	e.MitreTactic = r.MitreTactic
	e.MitreTechnique = r.MitreTechnique
	e.ManualReview = true
}

// Merge applies only the fields set on r and appends its tags to the
// event's existing tags. Batch labeling uses it so unrelated labels survive.
func (r *LabelRequest) Merge(e *Event) {
	if r.TruePositive != nil {
		v := *r.TruePositive
		e.Labels.TruePositive = &v
		e.TruePositive = &v
	}
	if r.AttackType != "" {
		e.Labels.AttackType = r.AttackType
		e.AttackType = r.AttackType
	}
	if r.MitreTactic != "" {
		e.Labels.MitreTactic = r.MitreTactic
		e.MitreTactic = r.MitreTactic
	}
	if r.MitreTechnique != "" {
		e.Labels.MitreTechnique = r.MitreTechnique
		e.MitreTechnique = r.MitreTechnique
	}
	e.Labels.ManualTags = e.Labels.ManualTags.Merge(r.ManualTags)
	e.ManualReview = true
}

// IsEmpty reports whether the request sets nothing.
func (r *LabelRequest) IsEmpty() bool {
	return r.TruePositive == nil && r.AttackType == "" && r.MitreTactic == "" &&
		r.MitreTechnique == "" && len(r.ManualTags) == 0
}

// BatchLabelRequest labels every event matching Filters.
type BatchLabelRequest struct {
	Filters EventFilter  `json:"filters"`
	Labels  LabelRequest `json:"labels"`
}
