// Package suite runs test scenarios as real calls, end to end: stage a
// session, place the outbound call, wait for the conversation to
// finish, analyze the transcript and persist the report.
package suite

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/voxqa/voxqa/pkg/analysis"
	"github.com/voxqa/voxqa/pkg/scenario"
	"github.com/voxqa/voxqa/pkg/session"
)

// Caller places one outbound call that will connect back to our media
// stream endpoint. It returns the provider's call identifier.
type Caller interface {
	PlaceCall(ctx context.Context) (string, error)
}

// Result summarizes one scenario run.
type Result struct {
	ScenarioID   string           `json:"scenario_id"`
	ScenarioName string           `json:"scenario_name"`
	Success      bool             `json:"success"`
	BugsFound    int              `json:"bugs_found"`
	Report       *analysis.Report `json:"report"`
}

// Runner executes scenarios sequentially.
type Runner struct {
	Registry *session.Registry
	Caller   Caller

	// NewParams builds the session parameters for one scenario. Called
	// once per call so every call gets fresh component state.
	NewParams func(scn *scenario.Scenario) session.Params

	Detector *analysis.Detector
	Reviewer *analysis.Reviewer // optional deeper pass

	ReportsDir string
	Delay      time.Duration // between calls

	// ConnectTimeout bounds the wait for the media stream to dial in,
	// CallTimeout the whole call. Defaults 60s and 3m30s.
	ConnectTimeout time.Duration
	CallTimeout    time.Duration

	Logger *slog.Logger
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *Runner) connectTimeout() time.Duration {
	if r.ConnectTimeout > 0 {
		return r.ConnectTimeout
	}
	return time.Minute
}

func (r *Runner) callTimeout() time.Duration {
	if r.CallTimeout > 0 {
		return r.CallTimeout
	}
	return 3*time.Minute + 30*time.Second
}

// RunCall executes a single scenario and returns its report.
func (r *Runner) RunCall(ctx context.Context, scn *scenario.Scenario) (*analysis.Report, error) {
	log := r.logger().With(slog.String("scenario", scn.ID))
	log.Info("starting scenario", slog.String("name", scn.Name))

	pc := r.Registry.Stage(r.NewParams(scn))

	callSid, err := r.Caller.PlaceCall(ctx)
	if err != nil {
		return nil, fmt.Errorf("place call: %w", err)
	}
	log.Info("call placed", slog.String("callSid", callSid))

	sess, err := pc.Session(r.connectTimeout())
	if err != nil {
		return nil, err
	}

	select {
	case <-sess.Done():
	case <-time.After(r.callTimeout()):
		return nil, fmt.Errorf("call did not complete within %s", r.callTimeout())
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	tr := sess.Transcript()
	if tr == nil || tr.TurnCount == 0 {
		return nil, fmt.Errorf("call produced no conversation turns")
	}

	log.Info("analyzing transcript", slog.Int("turns", tr.TurnCount))
	findings := r.Detector.Analyze(tr, scn)
	if r.Reviewer != nil {
		findings = append(findings, r.Reviewer.Review(ctx, tr, scn)...)
	}

	report := analysis.NewReport(tr, findings, scn)
	if r.ReportsDir != "" {
		path, err := report.Save(r.ReportsDir)
		if err != nil {
			log.Error("saving report failed", slog.String("error", err.Error()))
		} else {
			log.Info("report saved", slog.String("path", path))
		}
	}

	log.Info("scenario complete",
		slog.Int("bugs", report.Summary.TotalBugs),
		slog.Int("critical", report.Summary.Critical),
	)
	return report, nil
}

// Run executes the scenarios in order with the configured delay
// between calls, then saves summary.json next to the reports.
func (r *Runner) Run(ctx context.Context, scenarios []*scenario.Scenario) []Result {
	log := r.logger()
	results := make([]Result, 0, len(scenarios))

	for i, scn := range scenarios {
		log.Info("running scenario",
			slog.Int("index", i+1),
			slog.Int("total", len(scenarios)),
			slog.String("name", scn.Name),
		)

		report, err := r.RunCall(ctx, scn)
		if err != nil {
			log.Error("scenario failed", slog.String("scenario", scn.ID), slog.String("error", err.Error()))
		}

		result := Result{ScenarioID: scn.ID, ScenarioName: scn.Name}
		if report != nil {
			result.Success = true
			result.BugsFound = report.Summary.TotalBugs
			result.Report = report
		}
		results = append(results, result)

		if i < len(scenarios)-1 && r.Delay > 0 {
			log.Info("waiting before next call", slog.Duration("delay", r.Delay))
			select {
			case <-time.After(r.Delay):
			case <-ctx.Done():
				return results
			}
		}
	}

	if r.ReportsDir != "" {
		if path, err := SaveSummary(r.ReportsDir, results); err != nil {
			log.Error("saving summary failed", slog.String("error", err.Error()))
		} else {
			log.Info("summary saved", slog.String("path", path))
		}
	}
	return results
}

// SaveSummary writes results as summary.json under dir.
func SaveSummary(dir string, results []Result) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create reports directory: %w", err)
	}
	path := filepath.Join(dir, "summary.json")

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write summary: %w", err)
	}
	return path, nil
}

// FormatSummary renders the suite outcome for the terminal.
func FormatSummary(results []Result) string {
	var b strings.Builder
	rule := strings.Repeat("=", 60)
	b.WriteString(rule + "\n")
	b.WriteString("TEST SUITE SUMMARY\n")
	b.WriteString(rule + "\n")

	total := 0
	for _, r := range results {
		status := "OK"
		if !r.Success {
			status = "FAILED"
		}
		total += r.BugsFound
		fmt.Fprintf(&b, "  [%s] %s: %d bugs found\n", status, r.ScenarioName, r.BugsFound)
	}
	fmt.Fprintf(&b, "\nTotal: %d calls, %d bugs found\n", len(results), total)
	return b.String()
}
