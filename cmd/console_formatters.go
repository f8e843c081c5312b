package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"seclabel/console"
	"seclabel/core"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
)

// printer renders command output as colored text or JSON.
type printer struct {
	w     io.Writer
	json  bool
	quiet bool
}

func (p *printer) outputJSON(data interface{}) error {
	encoder := json.NewEncoder(p.w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func (p *printer) success(format string, args ...interface{}) {
	successColor.Fprintf(p.w, "✓ "+format+"\n", args...)
}

func (p *printer) warning(format string, args ...interface{}) {
	warningColor.Fprintf(p.w, "! "+format+"\n", args...)
}

// section prints a section header
func (p *printer) section(title string) {
	headerColor.Fprintf(p.w, "  %s\n", title)
	headerColor.Fprintln(p.w, "  "+strings.Repeat("─", len(title)))
}

// field prints a key-value field
func (p *printer) field(key, value string) {
	if value == "" {
		value = "(not set)"
	}
	fmt.Fprintf(p.w, "  %-25s %s\n", key+":", value)
}

func (p *printer) rule(ch string, width int) {
	fmt.Fprintln(p.w, strings.Repeat(ch, width))
}

// progress is a spinner that does nothing in JSON or quiet mode.
type progress struct {
	s *spinner.Spinner
}

func (p *printer) spinner(suffix string) *progress {
	if p.json || p.quiet {
		return &progress{}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = suffix
	s.Start()
	return &progress{s: s}
}

func (pr *progress) update(suffix string) {
	if pr.s == nil {
		return
	}
	pr.s.Lock()
	pr.s.Suffix = suffix
	pr.s.Unlock()
}

func (pr *progress) Stop() {
	if pr.s != nil {
		pr.s.Stop()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// formatVerdict renders an optional true-positive verdict
func formatVerdict(tp *bool) string {
	switch {
	case tp == nil:
		return "-"
	case *tp:
		return "TP"
	default:
		return "FP"
	}
}

// formatSeverity returns a colored severity
func formatSeverity(s string) string {
	switch strings.ToLower(s) {
	case core.SeverityCritical:
		return color.New(color.FgRed, color.Bold).Sprint(s)
	case core.SeverityHigh:
		return color.New(color.FgRed).Sprint(s)
	case core.SeverityMedium:
		return color.New(color.FgYellow).Sprint(s)
	default:
		return color.New(color.FgGreen).Sprint(s)
	}
}

// formatJobStatus returns a colored export status
func formatJobStatus(status string) string {
	switch status {
	case core.ExportStatusCompleted:
		return color.New(color.FgGreen).Sprint(status)
	case core.ExportStatusFailed:
		return color.New(color.FgRed).Sprint(status)
	case core.ExportStatusProcessing:
		return color.New(color.FgCyan).Sprint(status)
	default:
		return color.New(color.FgYellow).Sprint(status)
	}
}

func formatServiceStatus(status string) string {
	if status == "configured" {
		return color.New(color.FgGreen).Sprint(status)
	}
	return color.New(color.FgYellow).Sprint(status)
}

// formatBool returns Yes/No
func formatBool(b bool) string {
	if b {
		return color.New(color.FgGreen).Sprint("Yes")
	}
	return color.New(color.FgRed).Sprint("No")
}

// formatTime formats a timestamp
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "Never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatPercent(f float64) string {
	return strconv.FormatFloat(f*100, 'f', 1, 64) + "%"
}

// eventsTable displays events in a formatted table
func (p *printer) eventsTable(events []core.Event) {
	if len(events) == 0 {
		warningColor.Fprintln(p.w, "No events found")
		return
	}

	headerColor.Fprintln(p.w, "EVENTS")
	headerColor.Fprintln(p.w, strings.Repeat("=", 130))
	fmt.Fprintf(p.w, "%-7s %-20s %-10s %-10s %-16s %-22s %-6s %-8s %s\n",
		"ID", "Timestamp", "Severity", "Source", "Source IP", "Attack Type", "TP", "Reviewed", "Tags")
	p.rule("-", 130)

	for _, e := range events {
		// pad before coloring so the columns stay aligned
		sev := formatSeverity(fmt.Sprintf("%-10s", e.Severity))
		fmt.Fprintf(p.w, "%-7d %-20s %s %-10s %-16s %-22s %-6s %-8s %s\n",
			e.ID, formatTime(e.Timestamp), sev, truncate(e.SIEMSource, 10), e.SourceIP,
			truncate(e.AttackType, 22), formatVerdict(e.TruePositive), yesNo(e.ManualReview),
			truncate(strings.Join(e.Labels.ManualTags, ", "), 30))
	}

	p.rule("=", 130)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func (p *printer) pagerFooter(pg console.Pager) {
	if p.quiet {
		return
	}
	nav := []string{}
	if pg.HasPrev() {
		nav = append(nav, fmt.Sprintf("--page %d for previous", pg.Page-1))
	}
	if pg.HasNext() {
		nav = append(nav, fmt.Sprintf("--page %d for next", pg.Page+1))
	}
	infoColor.Fprintf(p.w, "Page %d of %d (%d total)", pg.Page, pg.TotalPages, pg.TotalCount)
	if len(nav) > 0 {
		infoColor.Fprintf(p.w, "; %s", strings.Join(nav, ", "))
	}
	fmt.Fprintln(p.w)
}

// eventDetails displays one event
func (p *printer) eventDetails(e *core.Event) {
	headerColor.Fprintln(p.w, strings.Repeat("═", 63))
	headerColor.Fprintf(p.w, "  Event %d: %s\n", e.ID, e.EventID)
	headerColor.Fprintln(p.w, strings.Repeat("═", 63))
	fmt.Fprintln(p.w)

	p.section("Event")
	p.field("Timestamp", formatTime(e.Timestamp))
	p.field("Severity", formatSeverity(e.Severity))
	p.field("SIEM Source", e.SIEMSource)
	p.field("Source IP", e.SourceIP)
	fmt.Fprintln(p.w)

	p.section("Labels")
	p.field("Verdict", formatVerdict(e.TruePositive))
	p.field("Attack Type", e.AttackType)
	p.field("MITRE Tactic", e.MitreTactic)
	p.field("MITRE Technique", e.MitreTechnique)
	p.field("Manual Tags", strings.Join(e.Labels.ManualTags, ", "))
	if len(e.Labels.AutoTags) > 0 {
		p.field("Auto Tags", strings.Join(e.Labels.AutoTags, ", "))
	}
	p.field("Manually Reviewed", formatBool(e.ManualReview))
	fmt.Fprintln(p.w)

	if e.MLProcessed {
		p.section("ML")
		p.field("Confidence", formatPercent(e.MLConfidence))
		if e.MLTimestamp != nil {
			p.field("Classified At", formatTime(*e.MLTimestamp))
		}
		p.field("Human Verified", formatBool(e.HumanVerified))
		if e.Labels.VerificationComment != "" {
			p.field("Comment", e.Labels.VerificationComment)
		}
		fmt.Fprintln(p.w)
	}

	if len(e.RawLogs) > 0 {
		p.section(fmt.Sprintf("Raw Logs (%d)", len(e.RawLogs)))
		for _, rl := range e.RawLogs {
			data, err := json.MarshalIndent(rl.LogData, "    ", "  ")
			if err != nil {
				data = []byte(fmt.Sprint(rl.LogData))
			}
			infoColor.Fprintf(p.w, "  [%s]\n", rl.Source)
			fmt.Fprintf(p.w, "    %s\n", data)
		}
	}
}

// exportJobsTable displays export jobs in a formatted table
func (p *printer) exportJobsTable(jobs []core.ExportJob) {
	if len(jobs) == 0 {
		warningColor.Fprintln(p.w, "No export jobs")
		return
	}

	headerColor.Fprintln(p.w, "EXPORT JOBS")
	headerColor.Fprintln(p.w, strings.Repeat("=", 110))
	fmt.Fprintf(p.w, "%-7s %-7s %-11s %-20s %-9s %s\n", "ID", "Format", "Status", "Created", "Records", "File")
	p.rule("-", 110)

	for _, j := range jobs {
		status := formatJobStatus(fmt.Sprintf("%-11s", j.Status))
		fmt.Fprintf(p.w, "%-7d %-7s %s %-20s %-9d %s\n",
			j.ID, j.Format, status, formatTime(j.CreatedAt), j.RecordCount, j.FilePath)
	}

	p.rule("=", 110)
}

// exportJobDetails displays one export job
func (p *printer) exportJobDetails(j *core.ExportJob) {
	p.section(fmt.Sprintf("Export Job %d", j.ID))
	p.field("Format", j.Format)
	p.field("Status", formatJobStatus(j.Status))
	p.field("Created At", formatTime(j.CreatedAt))
	if j.CompletedAt != nil {
		p.field("Completed At", formatTime(*j.CompletedAt))
	}
	p.field("Records", strconv.Itoa(j.RecordCount))
	p.field("File", j.FilePath)
	if j.Message != "" {
		p.field("Message", j.Message)
	}
}

// usersTable displays users in a formatted table
func (p *printer) usersTable(users []core.User) {
	if len(users) == 0 {
		warningColor.Fprintln(p.w, "No users")
		return
	}

	headerColor.Fprintln(p.w, "USERS")
	headerColor.Fprintln(p.w, strings.Repeat("=", 90))
	fmt.Fprintf(p.w, "%-6s %-20s %-9s %-20s %s\n", "ID", "Username", "Role", "Created", "Description")
	p.rule("-", 90)
	for _, u := range users {
		fmt.Fprintf(p.w, "%-6d %-20s %-9s %-20s %s\n",
			u.ID, u.Username, u.Role, formatTime(u.CreatedAt), truncate(u.Description, 30))
	}
	p.rule("=", 90)
}

func (p *printer) systemConfig(c *core.SystemConfig) {
	p.section("General")
	p.field("Data Retention (days)", strconv.Itoa(c.General.DataRetentionDays))
	p.field("Auto Tagging", formatBool(c.General.AutoTaggingEnabled))
	p.field("ML Classification", formatBool(c.General.MLClassificationEnabled))
	p.field("Refresh (minutes)", strconv.Itoa(c.General.RefreshIntervalMinutes))
	p.field("Demo Mode", formatBool(c.General.DemoModeEnabled))
	fmt.Fprintln(p.w)

	p.section("MITRE")
	p.field("Version", c.Mitre.MitreVersion)
	p.field("Custom Mappings", formatBool(c.Mitre.UseCustomMappings))
	if c.Mitre.CustomMappingsPath != "" {
		p.field("Mappings Path", c.Mitre.CustomMappingsPath)
	}
	fmt.Fprintln(p.w)

	p.section("Export")
	p.field("Default Format", c.Export.DefaultExportFormat)
	p.field("Include Raw Logs", formatBool(c.Export.IncludeRawLogs))
	p.field("Max Records", strconv.Itoa(c.Export.MaxRecordsPerExport))
	fmt.Fprintln(p.w)

	p.section("ML")
	p.field("Model Type", c.ML.ModelType)
	p.field("Min Confidence", strconv.FormatFloat(c.ML.MinConfidenceThreshold, 'f', -1, 64))
	p.field("Auto Apply Labels", formatBool(c.ML.AutoApplyLabels))
	p.field("Verification Required", formatBool(c.ML.VerificationRequired))
	fmt.Fprintln(p.w)
}

func (p *printer) apiConfig(c *core.APIConfig) {
	p.section("SIEM Connections")
	if c == nil {
		warningColor.Fprintln(p.w, "  No API settings saved")
		return
	}
	for _, row := range [][3]string{
		{"Wazuh", c.WazuhAPIURL, c.WazuhAPIKey},
		{"Splunk", c.SplunkAPIURL, c.SplunkAPIKey},
		{"Elastic", c.ElasticAPIURL, c.ElasticAPIKey},
		{"ML API", c.MLAPIURL, c.MLAPIKey},
	} {
		value := row[1]
		if row[2] != "" {
			value += " (key " + row[2] + ")"
		}
		p.field(row[0], strings.TrimSpace(value))
	}
	fmt.Fprintln(p.w)
}

func (p *printer) dashboard(d *console.Dashboard) {
	p.section("Events")
	p.field("Total", strconv.Itoa(d.Stats.TotalEvents))
	p.field("Today", strconv.Itoa(d.Stats.EventsToday))
	p.field("Labeled", strconv.Itoa(d.Stats.LabeledEvents))
	p.field("True Positives", strconv.Itoa(d.Stats.TruePositives))
	for _, s := range d.Stats.SIEMSources {
		p.field("  "+s.Name, strconv.Itoa(s.Count))
	}
	fmt.Fprintln(p.w)

	p.section("Severity")
	for _, sev := range []string{core.SeverityCritical, core.SeverityHigh, core.SeverityMedium, core.SeverityLow} {
		p.field(sev, strconv.Itoa(d.Severity[sev]))
	}
	fmt.Fprintln(p.w)

	p.section("Top Attacks")
	if len(d.TopAttacks) == 0 {
		fmt.Fprintln(p.w, "  (none)")
	}
	for _, a := range d.TopAttacks {
		fmt.Fprintf(p.w, "  %-28s %6d  %5.1f%%\n", truncate(a.AttackType, 28), a.Count, a.Percentage)
	}
	fmt.Fprintln(p.w)

	p.section("Timeline")
	if len(d.Timeline) == 0 {
		fmt.Fprintln(p.w, "  (no events in range)")
	} else {
		fmt.Fprintf(p.w, "  %-17s %6s %6s %6s %6s %6s\n", "Bucket", "Total", "Low", "Med", "High", "Crit")
		for _, t := range d.Timeline {
			fmt.Fprintf(p.w, "  %-17s %6d %6d %6d %6d %6d\n", t.Date, t.Total, t.Low, t.Medium, t.High, t.Critical)
		}
	}
	fmt.Fprintln(p.w)

	p.section("MITRE Tactics")
	p.counts(d.Mitre.Tactics)
}

// counts prints a name/count map, largest first.
func (p *printer) counts(m map[string]int) {
	if len(m) == 0 {
		fmt.Fprintln(p.w, "  (none)")
		return
	}
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool {
		if m[names[i]] != m[names[j]] {
			return m[names[i]] > m[names[j]]
		}
		return names[i] < names[j]
	})
	for _, n := range names {
		fmt.Fprintf(p.w, "  %-28s %6d\n", truncate(n, 28), m[n])
	}
}

func (p *printer) mlStatus(st *console.MLStatus) {
	p.section("ML Provider")
	switch st.Status {
	case "active":
		p.field("Status", color.New(color.FgGreen).Sprint(st.Status))
	case "error":
		p.field("Status", color.New(color.FgRed).Sprint(st.Status))
	default:
		p.field("Status", color.New(color.FgYellow).Sprint(st.Status))
	}
	p.field("Message", st.Message)
	if st.ModelInfo != nil {
		p.field("Model Version", st.ModelInfo.Version)
		p.field("Model Type", st.ModelInfo.Type)
	}
	if m := st.LatestMetrics; m != nil {
		p.field("Accuracy", formatPercent(m.Accuracy))
		p.field("F1 Score", strconv.FormatFloat(m.F1Score, 'f', 3, 64))
		p.field("Measured At", formatTime(m.Timestamp))
	}
}

func (p *printer) classificationTable(results []core.ClassificationResult) {
	headerColor.Fprintln(p.w, "CLASSIFICATIONS")
	headerColor.Fprintln(p.w, strings.Repeat("=", 100))
	fmt.Fprintf(p.w, "%-8s %-8s %-6s %-22s %-20s %-8s %s\n", "Event", "Conf.", "TP", "Attack Type", "Tactic", "Applied", "Error")
	p.rule("-", 100)
	for _, r := range results {
		var cl core.Classification
		if r.Classification != nil {
			cl = *r.Classification
		}
		fmt.Fprintf(p.w, "%-8d %-8s %-6s %-22s %-20s %-8s %s\n",
			r.EventID, formatPercent(r.Confidence), formatVerdict(cl.TruePositive),
			truncate(cl.AttackType, 22), truncate(cl.MitreTactic, 20), yesNo(r.Applied), r.Error)
	}
	p.rule("=", 100)
}

func (p *printer) metricsDetails(m *core.MLMetrics) {
	if m == nil {
		return
	}
	p.section(fmt.Sprintf("Metrics for %s", m.ModelVersion))
	p.field("Measured At", formatTime(m.Timestamp))
	p.field("Accuracy", formatPercent(m.Accuracy))
	p.field("Precision", formatPercent(m.Precision))
	p.field("Recall", formatPercent(m.Recall))
	p.field("F1 Score", strconv.FormatFloat(m.F1Score, 'f', 3, 64))
	p.field("Confusion (TP/FP/TN/FN)", fmt.Sprintf("%d/%d/%d/%d", m.TruePositives, m.FalsePositives, m.TrueNegatives, m.FalseNegatives))
	if len(m.ClassMetrics) > 0 {
		fmt.Fprintln(p.w)
		p.section("Per Class")
		names := make([]string, 0, len(m.ClassMetrics))
		for k := range m.ClassMetrics {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, n := range names {
			cm := m.ClassMetrics[n]
			fmt.Fprintf(p.w, "  %-28s P %6s  R %6s  n=%d\n", truncate(n, 28), formatPercent(cm.Precision), formatPercent(cm.Recall), cm.Support)
		}
	}
}

func (p *printer) metricsTable(metrics []core.MLMetrics) {
	if len(metrics) == 0 {
		warningColor.Fprintln(p.w, "No metrics recorded; run with --update")
		return
	}
	headerColor.Fprintln(p.w, "MODEL METRICS")
	headerColor.Fprintln(p.w, strings.Repeat("=", 90))
	fmt.Fprintf(p.w, "%-6s %-20s %-16s %-9s %-9s %-9s %-6s %s\n", "ID", "Measured", "Model", "Accuracy", "Precision", "Recall", "F1", "Events")
	p.rule("-", 90)
	for _, m := range metrics {
		fmt.Fprintf(p.w, "%-6d %-20s %-16s %-9s %-9s %-9s %-6.3f %d\n",
			m.ID, formatTime(m.Timestamp), truncate(m.ModelVersion, 16), formatPercent(m.Accuracy),
			formatPercent(m.Precision), formatPercent(m.Recall), m.F1Score, m.Total())
	}
	p.rule("=", 90)
}
