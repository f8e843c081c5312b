package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventFilter_UnmarshalJSON(t *testing.T) {
	var f EventFilter
	err := json.Unmarshal([]byte(`{
		"severity": "Critical",
		"manual_review": "true",
		"date_from": "2026-03-01",
		"date_to": "2026-03-02",
		"source_ip": "10.0.0.1"
	}`), &f)
	require.NoError(t, err)

	assert.Equal(t, "critical", f.Severity)
	require.NotNil(t, f.ManualReview)
	assert.True(t, *f.ManualReview)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), *f.DateFrom)
	assert.Equal(t, time.Date(2026, 3, 2, 23, 59, 59, 0, time.UTC), *f.DateTo)
	assert.False(t, f.IsEmpty())
	assert.NoError(t, Validate(f))
}

func TestEventFilter_ManualReviewShapes(t *testing.T) {
	tests := []struct {
		input string
		want  *bool
	}{
		{`{"manual_review": false}`, boolPtr(false)},
		{`{"manual_review": "false"}`, boolPtr(false)},
		{`{"manual_review": ""}`, nil},
		{`{"manual_review": null}`, nil},
		{`{}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var f EventFilter
			require.NoError(t, json.Unmarshal([]byte(tt.input), &f))
			assert.Equal(t, tt.want, f.ManualReview)
		})
	}

	var f EventFilter
	assert.Error(t, json.Unmarshal([]byte(`{"manual_review": "maybe"}`), &f))
}

func TestEventFilter_Validate(t *testing.T) {
	assert.NoError(t, Validate(EventFilter{}))
	assert.ErrorIs(t, Validate(EventFilter{Severity: "urgent"}), ErrValidation)
	assert.ErrorIs(t, Validate(EventFilter{SourceIP: "not-an-ip"}), ErrValidation)
	assert.True(t, EventFilter{}.IsEmpty())
}

func TestParseFilterTime(t *testing.T) {
	tests := []struct {
		in       string
		endOfDay bool
		want     time.Time
	}{
		{"2026-03-01T10:20:30Z", false, time.Date(2026, 3, 1, 10, 20, 30, 0, time.UTC)},
		{"2026-03-01T12:20:30+02:00", false, time.Date(2026, 3, 1, 10, 20, 30, 0, time.UTC)},
		{"2026-03-01T10:20:30", false, time.Date(2026, 3, 1, 10, 20, 30, 0, time.UTC)},
		{"2026-03-01 10:20:30", false, time.Date(2026, 3, 1, 10, 20, 30, 0, time.UTC)},
		{"2026-03-01T10:20", true, time.Date(2026, 3, 1, 10, 20, 0, 0, time.UTC)},
		{"2026-03-01", false, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"2026-03-01", true, time.Date(2026, 3, 1, 23, 59, 59, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseFilterTime(tt.in, tt.endOfDay)
		require.NoError(t, err, tt.in)
		assert.True(t, tt.want.Equal(got), "%s: got %v", tt.in, got)
	}

	_, err := ParseFilterTime("yesterday", false)
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestIsValidSeverity(t *testing.T) {
	for _, s := range Severities {
		assert.True(t, IsValidSeverity(s))
	}
	assert.True(t, IsValidSeverity("HIGH"))
	assert.False(t, IsValidSeverity("info"))
}

func boolPtr(b bool) *bool { return &b }
