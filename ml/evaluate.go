package ml

import (
	"time"

	"seclabel/core"
)

// Evaluate scores the ML suggestions snapshotted on verified events against
// the analyst's final labels.
//
// The binary confusion matrix uses labels.ml_true_positive as the prediction
// and the event's true_positive as ground truth; events without a snapshot are
// skipped. Per attack type scores are one-vs-rest over every event that has
// an ml_attack_type snapshot, for each attack type an analyst assigned.
func Evaluate(events []core.Event, modelVersion string, now time.Time) (*core.MLMetrics, error) {
	if len(events) == 0 {
		return nil, ErrNoVerifiedEvents
	}

	m := &core.MLMetrics{
		ModelVersion: modelVersion,
		Timestamp:    now.UTC(),
		ClassMetrics: map[string]core.ClassMetric{},
	}

	for i := range events {
		e := &events[i]
		if e.Labels.MLTruePositive == nil {
			continue
		}
		predicted := *e.Labels.MLTruePositive
		actual := e.TruePositive != nil && *e.TruePositive

		switch {
		case actual && predicted:
			m.TruePositives++
		case !actual && predicted:
			m.FalsePositives++
		case !actual && !predicted:
			m.TrueNegatives++
		default:
			m.FalseNegatives++
		}
	}
	if m.Total() == 0 {
		return nil, ErrNoValidData
	}
	m.Calculate()

	classes := map[string]struct{}{}
	for i := range events {
		if events[i].AttackType != "" {
			classes[events[i].AttackType] = struct{}{}
		}
	}
	for class := range classes {
		var tp, fp, fn int
		for i := range events {
			predicted := events[i].Labels.MLAttackType
			if predicted == "" {
				continue
			}
			actual := events[i].AttackType
			switch {
			case actual == class && predicted == class:
				tp++
			case actual != class && predicted == class:
				fp++
			case actual == class && predicted != class:
				fn++
			}
		}
		m.ClassMetrics[class] = core.NewClassMetric(tp, fp, fn)
	}

	return m, nil
}
