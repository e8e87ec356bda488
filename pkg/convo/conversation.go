// Package convo tracks the turns of a single call and produces the
// transcript that is the call's externally visible artifact.
package convo

import (
	"math"
	"sync"
	"time"

	"github.com/voxqa/voxqa/pkg/ai/llm"
)

// Speaker identifies who produced a turn.
type Speaker string

const (
	// SpeakerAgent is the medical-office bot under test.
	SpeakerAgent Speaker = "agent"
	// SpeakerPatient is our synthesized persona.
	SpeakerPatient Speaker = "patient"
)

// Turn is one contiguous utterance attributed to one speaker.
// Timestamp and Elapsed are epoch seconds and seconds since call
// start, both to two decimals in the persisted form.
type Turn struct {
	Speaker   Speaker `json:"speaker"`
	Text      string  `json:"text"`
	Timestamp float64 `json:"timestamp"`
	Elapsed   float64 `json:"elapsed"`
}

// Conversation is the append-only turn log for one call. Alongside the
// turns it maintains the chat-history projection handed to the LLM:
// the agent's words map to the user role and the patient's words to
// the assistant role, so the model continues speaking as the patient.
type Conversation struct {
	mu         sync.Mutex
	scenarioID string
	startedAt  time.Time
	turns      []Turn
	messages   []llm.Message
	clock      func() time.Time
}

// Option configures a Conversation.
type Option func(*Conversation)

// WithClock substitutes the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Conversation) { c.clock = clock }
}

// New creates an empty conversation started now.
func New(scenarioID string, opts ...Option) *Conversation {
	c := &Conversation{
		scenarioID: scenarioID,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.startedAt = c.clock()
	return c
}

// AddAgent appends an utterance heard from the agent under test.
func (c *Conversation) AddAgent(text string) {
	c.append(SpeakerAgent, llm.RoleUser, text)
}

// AddPatient appends an utterance spoken by the persona.
func (c *Conversation) AddPatient(text string) {
	c.append(SpeakerPatient, llm.RoleAssistant, text)
}

func (c *Conversation) append(speaker Speaker, role llm.MessageRole, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	c.turns = append(c.turns, Turn{
		Speaker:   speaker,
		Text:      text,
		Timestamp: epoch(now),
		Elapsed:   round2(now.Sub(c.startedAt).Seconds()),
	})
	c.messages = append(c.messages, llm.Message{Role: role, Content: text})
}

// Recent returns the last n entries of the LLM projection.
func (c *Conversation) Recent(n int) []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n > len(c.messages) {
		n = len(c.messages)
	}
	out := make([]llm.Message, n)
	copy(out, c.messages[len(c.messages)-n:])
	return out
}

// TurnCount reports how many turns have been appended.
func (c *Conversation) TurnCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

// Snapshot produces the transcript as of now.
func (c *Conversation) Snapshot() *Transcript {
	c.mu.Lock()
	defer c.mu.Unlock()

	turns := make([]Turn, len(c.turns))
	copy(turns, c.turns)
	return &Transcript{
		ScenarioID:      c.scenarioID,
		StartedAt:       epoch(c.startedAt),
		DurationSeconds: round2(c.clock().Sub(c.startedAt).Seconds()),
		TurnCount:       len(turns),
		Turns:           turns,
	}
}

func epoch(t time.Time) float64 {
	return round2(float64(t.UnixMilli()) / 1000)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
