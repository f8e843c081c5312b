package ingest

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seclabel/core"
)

func TestDemoSource_Fetch(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	src := NewDemoSource(7)
	src.now = func() time.Time { return now }

	events, err := src.Fetch(context.Background(), 200)
	require.NoError(t, err)
	require.Len(t, events, 200)

	ids := map[string]bool{}
	ips := map[string]bool{}
	for i, fe := range events {
		e := fe.Event
		assert.True(t, strings.HasPrefix(e.EventID, "demo-event-"))
		assert.False(t, ids[e.EventID], "duplicate id %s", e.EventID)
		ids[e.EventID] = true
		ips[e.SourceIP] = true

		assert.Equal(t, DemoSourceName, e.SIEMSource)
		assert.True(t, core.IsValidSeverity(e.Severity))
		assert.Contains(t, demoAttackTypes, e.AttackType)
		assert.Contains(t, demoTechniques[e.MitreTactic], e.MitreTechnique)
		assert.NotNil(t, net.ParseIP(e.SourceIP).To4())

		assert.False(t, e.Timestamp.After(now))
		assert.True(t, e.Timestamp.After(now.Add(-32*24*time.Hour)))
		if i > 0 {
			assert.False(t, e.Timestamp.After(events[i-1].Event.Timestamp), "events should be newest first")
		}

		require.Len(t, fe.RawLogs, 1)
		assert.Equal(t, e.SourceIP, fe.RawLogs[0].LogData["source_ip"])
		assert.NotEmpty(t, fe.RawLogs[0].LogData["message"])
	}
	assert.LessOrEqual(t, len(ips), 10)
}

func TestDemoSource_SeverityWeights(t *testing.T) {
	src := NewDemoSource(1)
	counts := map[string]int{}
	for i := 0; i < 4000; i++ {
		counts[src.severity()]++
	}
	assert.Greater(t, counts[core.SeverityLow], counts[core.SeverityMedium])
	assert.Greater(t, counts[core.SeverityMedium], counts[core.SeverityHigh])
	assert.Greater(t, counts[core.SeverityHigh], counts[core.SeverityCritical])
}

func TestDemoSource_RawLogShapes(t *testing.T) {
	src := NewDemoSource(3)
	ts := time.Now()
	tests := map[string]string{
		"Brute Force":         "authentication_failure",
		"SQL Injection":       "web_attack",
		"Directory Traversal": "web_attack",
		"Denial of Service":   "network_attack",
		"Phishing":            "email_threat",
		"Malware":             "malware_detection",
		"Unknown":             "generic_security_event",
	}
	for attack, want := range tests {
		log := src.rawLog(attack, "1.2.3.4", ts)
		assert.Equal(t, want, log["type"], attack)
	}
}

func TestDemoSource_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDemoSource(1).Fetch(ctx, 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewDemoSource(1))
	r.Register(NewFileSource("spool", "/nonexistent", nil))

	assert.Equal(t, []string{"demo", "spool"}, r.Names())
	_, err := r.Get("splunk")
	assert.ErrorIs(t, err, ErrUnknownSource)
	s, err := r.Get("demo")
	require.NoError(t, err)
	assert.Equal(t, "demo", s.Name())
}
