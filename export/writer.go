package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"seclabel/core"
)

// CSVHeader lists the CSV export columns in order.
var CSVHeader = []string{
	"id", "event_id", "timestamp", "source_ip", "severity", "siem_source",
	"manual_review", "true_positive", "attack_type", "mitre_tactic",
	"mitre_technique", "manual_tags",
}

// recordWriter streams events in one export format.
type recordWriter interface {
	Begin() error
	Write(e *core.Event) error
	End() error
}

func newRecordWriter(format string, w io.Writer) recordWriter {
	if format == core.ExportFormatJSON {
		return &jsonWriter{w: w}
	}
	return &csvWriter{w: csv.NewWriter(w)}
}

type csvWriter struct {
	w *csv.Writer
}

func (c *csvWriter) Begin() error {
	return c.w.Write(CSVHeader)
}

func (c *csvWriter) Write(e *core.Event) error {
	return c.w.Write(CSVRow(e))
}

func (c *csvWriter) End() error {
	c.w.Flush()
	return c.w.Error()
}

// CSVRow renders one event as a CSV record. An unset true_positive is empty.
func CSVRow(e *core.Event) []string {
	tp := ""
	if e.TruePositive != nil {
		tp = strconv.FormatBool(*e.TruePositive)
	}
	return []string{
		strconv.FormatInt(e.ID, 10),
		e.EventID,
		e.Timestamp.UTC().Format(time.RFC3339),
		e.SourceIP,
		e.Severity,
		e.SIEMSource,
		strconv.FormatBool(e.ManualReview),
		tp,
		e.AttackType,
		e.MitreTactic,
		e.MitreTechnique,
		strings.Join(e.Labels.ManualTags, ";"),
	}
}

// jsonWriter writes a JSON array one element at a time.
type jsonWriter struct {
	w     io.Writer
	count int
}

func (j *jsonWriter) Begin() error {
	_, err := io.WriteString(j.w, "[")
	return err
}

func (j *jsonWriter) Write(e *core.Event) error {
	if j.count > 0 {
		if _, err := io.WriteString(j.w, ",\n"); err != nil {
			return err
		}
	} else if _, err := io.WriteString(j.w, "\n"); err != nil {
		return err
	}
	j.count++
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = j.w.Write(data)
	return err
}

func (j *jsonWriter) End() error {
	_, err := io.WriteString(j.w, "\n]\n")
	return err
}
