package ml

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"seclabel/core"
)

var dummyAttackTypes = []string{
	"Brute Force", "SQL Injection", "Cross-Site Scripting", "Denial of Service",
	"Phishing", "Malware", "Ransomware", "Data Exfiltration", "Privilege Escalation",
	"Reconnaissance", "Lateral Movement", "Command and Control",
}

var dummyTactics = []string{
	"Initial Access", "Execution", "Persistence", "Privilege Escalation",
	"Defense Evasion", "Credential Access", "Discovery", "Lateral Movement",
	"Collection", "Command and Control", "Exfiltration", "Impact",
}

var dummyTechniques = map[string][]string{
	"Initial Access":       {"Phishing", "Valid Accounts", "External Remote Services"},
	"Execution":            {"Command Line Interface", "Scripting", "Windows Management Instrumentation"},
	"Persistence":          {"Registry Run Keys", "Scheduled Task", "Create Account"},
	"Privilege Escalation": {"Access Token Manipulation", "Bypass User Account Control", "Sudo and Sudo Caching"},
	"Defense Evasion":      {"Disable Security Tools", "Obfuscated Files", "Rootkit"},
	"Credential Access":    {"Brute Force", "Credential Dumping", "Keylogging"},
	"Discovery":            {"Account Discovery", "Network Service Scanning", "System Information Discovery"},
	"Lateral Movement":     {"Remote Services", "Internal Spearphishing", "Pass the Hash"},
	"Collection":           {"Data from Local System", "Email Collection", "Screen Capture"},
	"Command and Control":  {"Encrypted Channel", "Web Service", "Remote Access Tools"},
	"Exfiltration":         {"Data Transfer Size Limits", "Exfiltration Over C2", "Scheduled Transfer"},
	"Impact":               {"Data Destruction", "Service Stop", "Endpoint Denial of Service"},
}

var dummyTags = []string{
	"suspicious", "critical", "malware", "ransomware",
	"network", "authentication", "privileged", "lateral",
	"data_theft", "command_control",
}

// DummyModelVersion is reported by DummyProvider.ModelInfo.
const DummyModelVersion = "dummy-1.0"

// DummyProvider returns random classifications. It needs no configuration
// and is the fallback when no ML API is set up.
type DummyProvider struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewDummyProvider creates a dummy provider. The same seed yields the same
// sequence of classifications.
func NewDummyProvider(seed int64) *DummyProvider {
	return &DummyProvider{rnd: rand.New(rand.NewSource(seed))}
}

func (p *DummyProvider) Name() string { return core.ModelTypeDummy }

func (p *DummyProvider) TestConnection(ctx context.Context) core.ConnectionStatus {
	return core.ConnectionStatus{
		Success: true,
		Message: "Dummy ML provider ready",
		Details: map[string]interface{}{"provider": core.ModelTypeDummy},
	}
}

func (p *DummyProvider) Classify(ctx context.Context, event *core.Event) ProviderResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	tactic := dummyTactics[p.rnd.Intn(len(dummyTactics))]
	techniques := dummyTechniques[tactic]

	confidence := math.Round((0.6+p.rnd.Float64()*0.38)*100) / 100
	truePositive := p.rnd.Intn(2) == 1
	if truePositive && confidence < 0.85 {
		confidence = 0.85
	}

	n := 1 + p.rnd.Intn(3)
	tags := make([]string, 0, n)
	for _, i := range p.rnd.Perm(len(dummyTags))[:n] {
		tags = append(tags, dummyTags[i])
	}

	return ProviderResult{
		Success: true,
		Classification: core.Classification{
			TruePositive:   &truePositive,
			AttackType:     dummyAttackTypes[p.rnd.Intn(len(dummyAttackTypes))],
			MitreTactic:    tactic,
			MitreTechnique: techniques[p.rnd.Intn(len(techniques))],
			Tags:           tags,
		},
		Confidence: confidence,
	}
}

func (p *DummyProvider) BatchClassify(ctx context.Context, events []core.Event) []ProviderResult {
	out := make([]ProviderResult, len(events))
	for i := range events {
		out[i] = p.Classify(ctx, &events[i])
	}
	return out
}

func (p *DummyProvider) ModelInfo(ctx context.Context) core.ModelInfo {
	return core.ModelInfo{
		Version:     DummyModelVersion,
		Type:        core.ModelTypeDummy,
		Description: "Generates random classifications for testing",
	}
}
