package ml

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seclabel/core"
)

func verifiedEvent(mlTP, humanTP *bool, mlAttack, humanAttack string) core.Event {
	e := core.Event{TruePositive: humanTP, AttackType: humanAttack}
	e.Labels.MLTruePositive = mlTP
	e.Labels.MLAttackType = mlAttack
	return e
}

func TestEvaluate_ConfusionMatrix(t *testing.T) {
	yes, no := true, false
	events := []core.Event{
		verifiedEvent(&yes, &yes, "Malware", "Malware"),
		verifiedEvent(&yes, &no, "Malware", "Phishing"),
		verifiedEvent(&no, &no, "Phishing", "Phishing"),
		verifiedEvent(&no, &yes, "Phishing", "Malware"),
		verifiedEvent(&no, nil, "", ""),
		verifiedEvent(nil, &yes, "", "Ransomware"),
	}

	m, err := Evaluate(events, "dummy-1.0", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, m.TruePositives)
	assert.Equal(t, 1, m.FalsePositives)
	assert.Equal(t, 2, m.TrueNegatives, "missing human verdict counts as negative")
	assert.Equal(t, 1, m.FalseNegatives)
	assert.InDelta(t, 0.6, m.Accuracy, 1e-9)
	assert.InDelta(t, 0.5, m.Precision, 1e-9)
	assert.InDelta(t, 0.5, m.Recall, 1e-9)

	malware := m.ClassMetrics["Malware"]
	assert.InDelta(t, 0.5, malware.Precision, 1e-9)
	assert.InDelta(t, 0.5, malware.Recall, 1e-9)
	assert.Equal(t, 2, malware.Support)

	// Ransomware was never predicted and its only event has no ML snapshot
	ransomware := m.ClassMetrics["Ransomware"]
	assert.Zero(t, ransomware.Support)
	assert.Zero(t, ransomware.F1Score)
}

func TestEvaluate_Empty(t *testing.T) {
	_, err := Evaluate(nil, "v", time.Now())
	assert.ErrorIs(t, err, ErrNoVerifiedEvents)

	yes := true
	_, err = Evaluate([]core.Event{{TruePositive: &yes}}, "v", time.Now())
	assert.ErrorIs(t, err, ErrNoValidData)
}
