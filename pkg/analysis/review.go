package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/voxqa/voxqa/pkg/ai/llm"
	"github.com/voxqa/voxqa/pkg/convo"
	"github.com/voxqa/voxqa/pkg/scenario"
)

const reviewSystemPrompt = "You are a careful QA analyst. Output only valid JSON."

// Reviewer runs the qualitative LLM pass over a transcript. It is
// strictly additive: any model or parse failure degrades to zero
// findings, never to an error.
type Reviewer struct {
	model  llm.LLM
	logger *slog.Logger
}

// NewReviewer creates a reviewer backed by the given chat model.
func NewReviewer(model llm.LLM, logger *slog.Logger) *Reviewer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reviewer{model: model, logger: logger}
}

// Review asks the model to judge the conversation against the
// scenario's expected behaviors. Findings are tagged with
// source=llm_review.
func (r *Reviewer) Review(ctx context.Context, tr *convo.Transcript, scn *scenario.Scenario) []Finding {
	resp, err := r.model.Chat(ctx, llm.ChatRequest{
		System: reviewSystemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: buildReviewPrompt(tr, scn)},
		},
	})
	if err != nil {
		r.logger.Warn("llm review failed", slog.String("error", err.Error()))
		return nil
	}

	findings, err := parseReviewOutput(resp.Message.Content)
	if err != nil {
		r.logger.Warn("llm review output unparseable", slog.String("error", err.Error()))
		return nil
	}
	for i := range findings {
		findings[i].Source = "llm_review"
	}
	return findings
}

func buildReviewPrompt(tr *convo.Transcript, scn *scenario.Scenario) string {
	var conv strings.Builder
	for _, turn := range tr.Turns {
		speaker := "Patient"
		if turn.Speaker == convo.SpeakerAgent {
			speaker = "AI Agent"
		}
		fmt.Fprintf(&conv, "%s: %s\n", speaker, turn.Text)
	}

	var expected, triggers strings.Builder
	for _, a := range scn.ExpectedAgentActions {
		fmt.Fprintf(&expected, "- %s\n", a)
	}
	for _, t := range scn.BugTriggers {
		fmt.Fprintf(&triggers, "- %s\n", t)
	}

	return fmt.Sprintf(`You are a QA analyst reviewing a conversation between an AI phone agent
and a test patient. The patient was testing scenario: %q.

CONVERSATION:
%s
EXPECTED AGENT BEHAVIORS:
%s
KNOWN BUG TRIGGERS:
%s
Analyze the conversation and list any issues found. For each issue provide a JSON object with:
- "type": one of hallucination, non_sequitur, rudeness, missed_info, incorrect_info, poor_flow, safety_concern
- "severity": one of low, medium, high, critical
- "turn_index": which turn number (0-indexed) or -1 if general
- "reason": brief explanation with exact quotes

Output ONLY a JSON array of issue objects. If no issues found, output an empty array: []`,
		scn.Name, conv.String(), expected.String(), triggers.String())
}

// parseReviewOutput tolerates the model wrapping its answer in a
// markdown code fence.
func parseReviewOutput(raw string) ([]Finding, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		if i := strings.IndexByte(raw, '\n'); i >= 0 {
			raw = raw[i+1:]
		}
		if i := strings.LastIndex(raw, "```"); i >= 0 {
			raw = raw[:i]
		}
	}

	var findings []Finding
	if err := json.Unmarshal([]byte(raw), &findings); err != nil {
		return nil, fmt.Errorf("decode review findings: %w", err)
	}
	return findings, nil
}
