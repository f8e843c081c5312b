package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Classification is an ML provider's label suggestion for one event.
type Classification struct {
	TruePositive   *bool    `json:"true_positive,omitempty"`
	AttackType     string   `json:"attack_type,omitempty"`
	MitreTactic    string   `json:"mitre_tactic,omitempty"`
	MitreTechnique string   `json:"mitre_technique,omitempty"`
	Tags           []string `json:"tags,omitempty"`
}

// ApplyTo copies the suggestion onto the event and records the ML state.
// The raw suggestion is kept under labels.ml_labels.
func (c *Classification) ApplyTo(e *Event, confidence float64, humanVerified bool, at time.Time) {
	if c.TruePositive != nil {
		v := *c.TruePositive
		e.TruePositive = &v
	}
	if c.AttackType != "" {
		e.AttackType = c.AttackType
	}
	if c.MitreTactic != "" {
		e.MitreTactic = c.MitreTactic
	}
	if c.MitreTechnique != "" {
		e.MitreTechnique = c.MitreTechnique
	}

	suggestion := map[string]interface{}{
		"attack_type":     c.AttackType,
		"mitre_tactic":    c.MitreTactic,
		"mitre_technique": c.MitreTechnique,
		"confidence":      confidence,
	}
	if c.TruePositive != nil {
		suggestion["true_positive"] = *c.TruePositive
	}
	if len(c.Tags) > 0 {
		suggestion["tags"] = c.Tags
	}
	e.Labels.MLLabels = suggestion

	ts := at.UTC()
	e.MLProcessed = true
	e.MLConfidence = confidence
	e.MLTimestamp = &ts
	e.HumanVerified = humanVerified
}

// ClassificationResult is the outcome of classifying one event.
type ClassificationResult struct {
	Success        bool            `json:"success"`
	EventID        int64           `json:"event_id"`
	Classification *Classification `json:"classification,omitempty"`
	Confidence     float64         `json:"confidence"`
	Applied        bool            `json:"applied"`
	Error          string          `json:"error,omitempty"`
}

// BatchClassifyRequest is the body of POST /api/ml/batch-classify.
type BatchClassifyRequest struct {
	EventIDs []int64 `json:"event_ids" validate:"required,min=1,max=1000"`
}

// BatchClassifyResponse summarizes a batch classification.
type BatchClassifyResponse struct {
	Success               bool                   `json:"success"`
	ProcessedEvents       int                    `json:"processed_events"`
	ProcessingTimeSeconds float64                `json:"processing_time_seconds"`
	Results               []ClassificationResult `json:"results"`
}

// ModelInfo describes the active ML model.
type ModelInfo struct {
	Version     string                 `json:"version"`
	Type        string                 `json:"type,omitempty"`
	Description string                 `json:"description,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// ConnectionStatus is the result of probing an ML provider.
type ConnectionStatus struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// VerifyRequest is an analyst's verdict on an ML classification. Nil fields
// keep the ML value.
type VerifyRequest struct {
	TruePositive        *bool   `json:"true_positive"`
	AttackType          *string `json:"attack_type" validate:"omitempty,max=100"`
	MitreTactic         *string `json:"mitre_tactic" validate:"omitempty,max=100"`
	MitreTechnique      *string `json:"mitre_technique" validate:"omitempty,max=100"`
	VerificationComment *string `json:"verification_comment" validate:"omitempty,max=1000"`
}

// Apply snapshots the current ML labels into the label document, applies the
// overrides and marks the event verified at now.
func (r *VerifyRequest) Apply(e *Event, now time.Time) {
	e.Labels.MLTruePositive = e.TruePositive
	e.Labels.MLAttackType = e.AttackType
	e.Labels.MLMitreTactic = e.MitreTactic
	e.Labels.MLMitreTechnique = e.MitreTechnique

	if r.TruePositive != nil {
		v := *r.TruePositive
		e.TruePositive = &v
		e.Labels.TruePositive = &v
	}
	if r.AttackType != nil {
		e.AttackType = strings.TrimSpace(*r.AttackType)
		e.Labels.AttackType = e.AttackType
	}
	if r.MitreTactic != nil {
		e.MitreTactic = strings.TrimSpace(*r.MitreTactic)
		e.Labels.MitreTactic = e.MitreTactic
	}
	if r.MitreTechnique != nil {
		e.MitreTechnique = strings.TrimSpace(*r.MitreTechnique)
		e.Labels.MitreTechnique = e.MitreTechnique
	}
	if r.VerificationComment != nil {
		e.Labels.VerificationComment = *r.VerificationComment
	}

	ts := now.UTC()
	e.Labels.VerificationTimestamp = &ts
	e.HumanVerified = true
}

// MLMetrics is one stored evaluation of ML accuracy against analyst verdicts.
type MLMetrics struct {
	ID             int64                  `json:"id"`
	ModelVersion   string                 `json:"model_version"`
	Timestamp      time.Time              `json:"timestamp"`
	TruePositives  int                    `json:"true_positives"`
	FalsePositives int                    `json:"false_positives"`
	TrueNegatives  int                    `json:"true_negatives"`
	FalseNegatives int                    `json:"false_negatives"`
	Accuracy       float64                `json:"accuracy"`
	Precision      float64                `json:"precision"`
	Recall         float64                `json:"recall"`
	F1Score        float64                `json:"f1_score"`
	ClassMetrics   map[string]ClassMetric `json:"class_metrics"`
}

// Total is the number of events counted in the confusion matrix.
func (m *MLMetrics) Total() int {
	return m.TruePositives + m.FalsePositives + m.TrueNegatives + m.FalseNegatives
}

// Calculate derives accuracy, precision, recall and F1 from the confusion
// matrix. Ratios with a zero denominator stay 0.
func (m *MLMetrics) Calculate() {
	total := m.Total()
	if total == 0 {
		return
	}
	m.Accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	m.Precision = safeRatio(m.TruePositives, m.TruePositives+m.FalsePositives)
	m.Recall = safeRatio(m.TruePositives, m.TruePositives+m.FalseNegatives)
	m.F1Score = harmonicMean(m.Precision, m.Recall)
}

// ClassMetric holds per attack type scores.
type ClassMetric struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1_score"`
	Support   int     `json:"support"`
}

// NewClassMetric computes scores from one-vs-rest counts.
func NewClassMetric(tp, fp, fn int) ClassMetric {
	p := safeRatio(tp, tp+fp)
	r := safeRatio(tp, tp+fn)
	return ClassMetric{
		Precision: p,
		Recall:    r,
		F1Score:   harmonicMean(p, r),
		Support:   tp + fn,
	}
}

// MetricsRange is the body of POST /api/ml/update-metrics. Either bound may
// be omitted.
type MetricsRange struct {
	StartDate *time.Time
	EndDate   *time.Time
}

// UnmarshalJSON accepts the same date formats as event filters.
func (m *MetricsRange) UnmarshalJSON(data []byte) error {
	var raw struct {
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := MetricsRange{}
	if raw.StartDate != "" {
		t, err := ParseFilterTime(raw.StartDate, false)
		if err != nil {
			return fmt.Errorf("start_date: %w", err)
		}
		out.StartDate = &t
	}
	if raw.EndDate != "" {
		t, err := ParseFilterTime(raw.EndDate, true)
		if err != nil {
			return fmt.Errorf("end_date: %w", err)
		}
		out.EndDate = &t
	}
	*m = out
	return nil
}

func safeRatio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func harmonicMean(p, r float64) float64 {
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}
