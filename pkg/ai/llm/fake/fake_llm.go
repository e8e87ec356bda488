// Package fake provides a scripted chat model implementation for
// testing.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/voxqa/voxqa/pkg/ai/llm"
)

// FakeLLM cycles through predefined responses. An optional Delay is
// applied before answering and respects context cancellation, which is
// how timeout paths are exercised.
type FakeLLM struct {
	mu        sync.Mutex
	responses []string
	callCount int

	Delay    time.Duration
	Err      error
	Requests []llm.ChatRequest
}

// NewFakeLLM creates a fake chat model with predefined responses.
func NewFakeLLM(responses ...string) *FakeLLM {
	if len(responses) == 0 {
		responses = []string{"This is a fake response from the fake LLM provider."}
	}
	return &FakeLLM{responses: responses}
}

// Chat implements llm.LLM.
func (f *FakeLLM) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	f.mu.Lock()
	delay := f.Delay
	f.Requests = append(f.Requests, req)
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return llm.ChatResponse{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return llm.ChatResponse{}, f.Err
	}
	response := f.responses[f.callCount%len(f.responses)]
	f.callCount++

	return llm.ChatResponse{
		Message:      llm.Message{Role: llm.RoleAssistant, Content: response},
		TokensUsed:   len(response),
		FinishReason: "stop",
	}, nil
}

// ChatStream implements llm.LLM by emitting the whole scripted
// response as a single delta.
func (f *FakeLLM) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan string, error) {
	resp, err := f.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make(chan string, 1)
	out <- resp.Message.Content
	close(out)
	return out, nil
}

// Calls reports how many completions were requested.
func (f *FakeLLM) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callCount
}
