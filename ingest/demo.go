package ingest

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"seclabel/core"
)

// DemoSourceName is the siem_source stamped on generated events.
const DemoSourceName = "demo"

var demoAttackTypes = []string{
	"Brute Force", "SQL Injection", "Cross-Site Scripting",
	"Denial of Service", "Phishing", "Malware",
	"Command Injection", "Directory Traversal",
}

var demoSeverityWeights = []struct {
	severity string
	weight   int
}{
	{core.SeverityLow, 40},
	{core.SeverityMedium, 30},
	{core.SeverityHigh, 20},
	{core.SeverityCritical, 10},
}

var demoTactics = []string{
	"Initial Access", "Execution", "Persistence", "Privilege Escalation",
	"Defense Evasion", "Credential Access", "Discovery", "Lateral Movement",
}

var demoTechniques = map[string][]string{
	"Initial Access":       {"Phishing", "Valid Accounts", "Supply Chain Compromise"},
	"Execution":            {"Command Line Interface", "PowerShell", "Scripting"},
	"Persistence":          {"Registry Run Keys", "Scheduled Task", "Create Account"},
	"Privilege Escalation": {"Access Token Manipulation", "Bypass User Account Control"},
	"Defense Evasion":      {"Disable Security Tools", "Masquerading", "Rootkit"},
	"Credential Access":    {"Brute Force", "Credential Dumping", "Password Spraying"},
	"Discovery":            {"Account Discovery", "Network Service Scanning"},
	"Lateral Movement":     {"Remote Services", "Internal Spearphishing", "Pass the Hash"},
}

const demoUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// DemoSource generates realistic-looking events for trying the console
// without a SIEM.
type DemoSource struct {
	mu        sync.Mutex
	rnd       *rand.Rand
	sourceIPs []string
	now       func() time.Time
}

// NewDemoSource creates a demo source. The same seed yields the same events
// apart from their uuid-based IDs.
func NewDemoSource(seed int64) *DemoSource {
	rnd := rand.New(rand.NewSource(seed))
	ips := make([]string, 10)
	for i := range ips {
		n := uint32(0x01000000 + rnd.Int63n(0xCFFFFFFF-0x01000000+1))
		ips[i] = net.IPv4(byte(n>>24), byte(n>>16), byte(n>>8), byte(n)).String()
	}
	return &DemoSource{rnd: rnd, sourceIPs: ips, now: time.Now}
}

func (d *DemoSource) Name() string { return DemoSourceName }

// Fetch generates limit events, newest first.
func (d *DemoSource) Fetch(ctx context.Context, limit int) ([]FetchedEvent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now().UTC()
	out := make([]FetchedEvent, 0, limit)
	for i := 0; i < limit; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, d.generate(now))
	}
	sortNewestFirst(out)
	return out, nil
}

func (d *DemoSource) pick(list []string) string {
	return list[d.rnd.Intn(len(list))]
}

func (d *DemoSource) severity() string {
	n := d.rnd.Intn(100)
	for _, w := range demoSeverityWeights {
		if n < w.weight {
			return w.severity
		}
		n -= w.weight
	}
	return core.SeverityLow
}

func (d *DemoSource) generate(now time.Time) FetchedEvent {
	ts := now.Add(-time.Duration(d.rnd.Intn(31))*24*time.Hour -
		time.Duration(d.rnd.Intn(24))*time.Hour -
		time.Duration(d.rnd.Intn(60))*time.Minute)

	attack := d.pick(demoAttackTypes)
	tactic := d.pick(demoTactics)
	ip := d.pick(d.sourceIPs)

	e := core.Event{
		EventID:        "demo-event-" + uuid.NewString(),
		Timestamp:      ts,
		SourceIP:       ip,
		Severity:       d.severity(),
		SIEMSource:     DemoSourceName,
		AttackType:     attack,
		MitreTactic:    tactic,
		MitreTechnique: d.pick(demoTechniques[tactic]),
	}
	return FetchedEvent{
		Event: e,
		RawLogs: []core.RawLog{{
			Source:    DemoSourceName,
			Timestamp: &ts,
			LogData:   d.rawLog(attack, ip, ts),
		}},
	}
}

// rawLog builds a payload shaped like what a SIEM reports for the attack type.
func (d *DemoSource) rawLog(attack, ip string, ts time.Time) map[string]interface{} {
	destIP := fmt.Sprintf("10.0.0.%d", 1+d.rnd.Intn(254))
	base := map[string]interface{}{
		"source_ip": ip,
		"timestamp": ts.Format(time.RFC3339),
	}
	webAttack := func(url, msg string, codes ...int) {
		base["type"] = "web_attack"
		base["dest_ip"] = destIP
		base["url"] = url
		base["user_agent"] = demoUserAgent
		base["http_method"] = "GET"
		base["status_code"] = codes[d.rnd.Intn(len(codes))]
		base["message"] = msg
	}

	switch attack {
	case "Brute Force":
		base["type"] = "authentication_failure"
		base["user"] = fmt.Sprintf("user_%d", 1+d.rnd.Intn(100))
		base["attempts"] = 5 + d.rnd.Intn(16)
		base["dest_ip"] = destIP
		base["service"] = d.pick([]string{"ssh", "ftp", "rdp", "web"})
		base["protocol"] = d.pick([]string{"tcp", "udp"})
		base["port"] = 20 + d.rnd.Intn(9981)
		base["message"] = "Multiple failed login attempts detected"
	case "SQL Injection":
		webAttack(fmt.Sprintf("/api/%s.php?id=1' OR '1'='1", d.pick([]string{"users", "products", "orders"})),
			"Possible SQL injection attempt detected in request parameters", 200, 500)
	case "Cross-Site Scripting":
		webAttack("/page.php?param=<script>alert('XSS')</script>",
			"Possible XSS attack detected in request parameters", 200, 400)
	case "Command Injection":
		webAttack("/search.php?q=test;cat /etc/passwd",
			"Possible command injection detected in request parameters", 200, 500)
	case "Directory Traversal":
		webAttack("/download.php?file=../../../../etc/passwd",
			"Possible directory traversal detected in request parameters", 200, 403, 404)
	case "Denial of Service":
		base["type"] = "network_attack"
		base["dest_ip"] = destIP
		base["protocol"] = "TCP"
		base["port"] = 80
		base["packets_per_second"] = 1000 + d.rnd.Intn(9001)
		base["bandwidth"] = fmt.Sprintf("%d Mbps", 100+d.rnd.Intn(901))
		base["message"] = "Abnormal traffic pattern detected, possible DoS attack"
	case "Phishing":
		base["type"] = "email_threat"
		base["from"] = fmt.Sprintf("attacker%d@malicious-domain.com", 1+d.rnd.Intn(100))
		base["to"] = fmt.Sprintf("user%d@example.com", 1+d.rnd.Intn(100))
		base["subject"] = "Urgent: Your account will be suspended"
		base["attachment"] = d.rnd.Intn(2) == 1
		base["has_url"] = d.rnd.Intn(2) == 1
		base["message"] = "Suspected phishing email detected by content analysis"
	case "Malware":
		base["type"] = "malware_detection"
		base["dest_ip"] = destIP
		base["file_name"] = fmt.Sprintf("suspicious-file-%d.exe", 1000+d.rnd.Intn(9000))
		base["file_hash"] = uuid.New().String()
		base["malware_type"] = d.pick([]string{"trojan", "ransomware", "spyware", "adware"})
		base["detection_engine"] = d.pick([]string{"AV1", "AV2", "AV3"})
		base["message"] = "Malware detected in file operation"
	default:
		base["type"] = "generic_security_event"
		base["message"] = "Security event detected: " + attack
	}
	return base
}

var _ Source = (*DemoSource)(nil)
