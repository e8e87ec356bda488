package convo

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrEmptyTranscript is returned when saving a transcript with no
// turns; calls that never produced a conversation leave no artifact.
var ErrEmptyTranscript = errors.New("transcript has no turns")

// Transcript is the persistent record of one call.
type Transcript struct {
	ScenarioID      string  `json:"scenario_id"`
	StartedAt       float64 `json:"started_at"`
	DurationSeconds float64 `json:"duration_seconds"`
	TurnCount       int     `json:"turn_count"`
	Turns           []Turn  `json:"turns"`
}

// Save writes the transcript as JSON under dir using the pattern
// <scenario_id>_<UTC YYYYMMDD_HHMMSS>.json and returns the path.
func (t *Transcript) Save(dir string) (string, error) {
	if t.TurnCount == 0 {
		return "", ErrEmptyTranscript
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create transcripts directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s.json", t.ScenarioID, time.Now().UTC().Format("20060102_150405"))
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal transcript: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	return path, nil
}

// FormatText renders the transcript for humans.
func (t *Transcript) FormatText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scenario: %s\n", t.ScenarioID)
	fmt.Fprintf(&b, "Duration: %.1fs\n", t.DurationSeconds)
	fmt.Fprintf(&b, "Turns: %d\n", t.TurnCount)
	b.WriteString(strings.Repeat("-", 50))
	b.WriteByte('\n')

	for _, turn := range t.Turns {
		speaker := "AGENT"
		if turn.Speaker == SpeakerPatient {
			speaker = "PATIENT"
		}
		fmt.Fprintf(&b, "[%6.1fs] %s: %s\n", turn.Elapsed, speaker, turn.Text)
	}
	return b.String()
}
