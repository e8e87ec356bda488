package analysis

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/voxqa/voxqa/pkg/convo"
	"github.com/voxqa/voxqa/pkg/scenario"
)

// Summary counts findings by severity.
type Summary struct {
	TotalBugs int `json:"total_bugs"`
	Critical  int `json:"critical"`
	High      int `json:"high"`
	Medium    int `json:"medium"`
	Low       int `json:"low"`
}

// Report is the persistent analysis artifact for one call.
type Report struct {
	ScenarioID          string    `json:"scenario_id"`
	ScenarioName        string    `json:"scenario_name"`
	PatientName         string    `json:"patient_name"`
	GeneratedAt         string    `json:"generated_at"`
	CallDurationSeconds float64   `json:"call_duration_seconds"`
	TurnCount           int       `json:"turn_count"`
	Findings            []Finding `json:"findings"`
	Summary             Summary   `json:"summary"`
	TranscriptText      string    `json:"transcript_text"`
}

// NewReport assembles a report from a transcript and its findings.
func NewReport(tr *convo.Transcript, findings []Finding, scn *scenario.Scenario) *Report {
	return &Report{
		ScenarioID:          scn.ID,
		ScenarioName:        scn.Name,
		PatientName:         scn.PatientName,
		GeneratedAt:         time.Now().Format("2006-01-02 15:04:05"),
		CallDurationSeconds: tr.DurationSeconds,
		TurnCount:           tr.TurnCount,
		Findings:            findings,
		Summary:             summarize(findings),
		TranscriptText:      tr.FormatText(),
	}
}

func summarize(findings []Finding) Summary {
	s := Summary{TotalBugs: len(findings)}
	for _, f := range findings {
		switch f.Severity {
		case SeverityCritical:
			s.Critical++
		case SeverityHigh:
			s.High++
		case SeverityMedium:
			s.Medium++
		case SeverityLow:
			s.Low++
		}
	}
	return s
}

// Save writes the report as JSON under dir, named
// report_<scenario_id>_<timestamp>.json, and returns the path.
func (r *Report) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create reports directory: %w", err)
	}

	name := fmt.Sprintf("report_%s_%s.json", r.ScenarioID, time.Now().UTC().Format("20060102_150405"))
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// FormatBugReport renders a set of reports as one markdown document.
func FormatBugReport(reports []*Report) string {
	var b strings.Builder
	b.WriteString("# Bug Report - AI Agent Voice Bot Testing\n")
	fmt.Fprintf(&b, "Generated: %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Total scenarios tested: %d\n\n", len(reports))

	var total, critical, high int
	for _, r := range reports {
		total += len(r.Findings)
		critical += r.Summary.Critical
		high += r.Summary.High
	}
	fmt.Fprintf(&b, "## Summary: %d issues found (%d critical, %d high)\n\n", total, critical, high)

	for _, r := range reports {
		fmt.Fprintf(&b, "### Scenario: %s\n", r.ScenarioName)
		fmt.Fprintf(&b, "- Patient: %s\n", r.PatientName)
		fmt.Fprintf(&b, "- Duration: %.1fs\n", r.CallDurationSeconds)
		fmt.Fprintf(&b, "- Issues: %d\n\n", len(r.Findings))

		if len(r.Findings) == 0 {
			b.WriteString("No issues found.\n")
		}
		for i, f := range r.Findings {
			fmt.Fprintf(&b, "**%d. [%s] %s**\n", i+1, strings.ToUpper(string(f.Severity)), f.Type)
			fmt.Fprintf(&b, "   %s\n", f.Reason)
			if f.Text != "" {
				fmt.Fprintf(&b, "   > Agent said: %q\n", f.Text)
			}
			if f.PatientSaid != "" {
				fmt.Fprintf(&b, "   > Patient said: %q\n", f.PatientSaid)
			}
			b.WriteByte('\n')
		}
		b.WriteString("---\n\n")
	}
	return b.String()
}
