package persona

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/voxqa/voxqa/pkg/ai/llm"
	"github.com/voxqa/voxqa/pkg/scenario"
)

// FallbackResponses are spoken when the LLM times out or errors, so
// the call keeps moving instead of going dead.
var FallbackResponses = []string{
	"I'm sorry, could you repeat that?",
	"Um, one moment, let me think about that.",
	"Sorry, I didn't quite catch that.",
}

const (
	defaultTimeout = 10 * time.Second

	// Sampling parameters tuned for short in-character phone lines.
	temperature = 0.7
	maxTokens   = 80
	topP        = 0.9
)

// Generator produces the patient's utterances for one call.
type Generator struct {
	scenario     *scenario.Scenario
	systemPrompt string
	llm          llm.LLM
	timeout      time.Duration
	logger       *slog.Logger
	rng          *rand.Rand

	openingDelivered bool
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithTimeout overrides the per-completion deadline. Default 10s.
func WithTimeout(d time.Duration) GeneratorOption {
	return func(g *Generator) { g.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) GeneratorOption {
	return func(g *Generator) { g.logger = logger }
}

// NewGenerator creates a generator for one scenario. Generators are
// per-call; OpeningLine may be called at most once.
func NewGenerator(s *scenario.Scenario, model llm.LLM, opts ...GeneratorOption) *Generator {
	g := &Generator{
		scenario:     s,
		systemPrompt: BuildSystemPrompt(s),
		llm:          model,
		timeout:      defaultTimeout,
		logger:       slog.Default(),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SystemPrompt exposes the rendered persona prompt, mainly for the
// post-call LLM review and for logging.
func (g *Generator) SystemPrompt() string {
	return g.systemPrompt
}

// OpeningLine generates the first thing the patient says once the
// agent has answered. On LLM failure it falls back to a line built
// from the scenario itself.
func (g *Generator) OpeningLine(ctx context.Context) string {
	if g.openingDelivered {
		return ""
	}
	g.openingDelivered = true

	messages := []llm.Message{{
		Role: llm.RoleUser,
		Content: "The medical office AI just answered the phone. " +
			"What do you say first? Remember to stay in character.",
	}}

	text, err := g.complete(ctx, messages)
	if err != nil {
		g.logger.Warn("opening line generation failed", slog.String("error", err.Error()))
		return fmt.Sprintf("Hi, my name is %s. %s.", g.scenario.PatientName, g.scenario.Goal)
	}
	return text
}

// Respond generates a patient reply to the conversation so far. On
// LLM failure it returns a random fallback response.
func (g *Generator) Respond(ctx context.Context, messages []llm.Message) string {
	text, err := g.complete(ctx, messages)
	if err != nil {
		g.logger.Warn("llm response failed, using fallback", slog.String("error", err.Error()))
		return FallbackResponses[g.rng.Intn(len(FallbackResponses))]
	}
	return text
}

func (g *Generator) complete(ctx context.Context, messages []llm.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.llm.Chat(ctx, llm.ChatRequest{
		System:      g.systemPrompt,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Message.Content)
	if text == "" {
		return "", fmt.Errorf("llm returned empty completion")
	}
	return text, nil
}
