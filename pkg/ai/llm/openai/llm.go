// Package openai implements the chat LLM contract against any
// OpenAI-compatible endpoint. Pointing BaseURL at an Ollama server's
// /v1 path works unchanged, which is how local models are driven.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/voxqa/voxqa/pkg/ai"
	"github.com/voxqa/voxqa/pkg/ai/llm"
)

// Config holds configuration for the chat client.
type Config struct {
	APIKey  string // some local servers accept any non-empty key
	BaseURL string // optional; default is the OpenAI API
	Model   string
}

// Client implements llm.LLM.
type Client struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// New creates a chat client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai llm: model is required")
	}
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai llm: API key is required for the hosted API")
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: logger,
	}, nil
}

// Chat implements llm.LLM.
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(req, false))
	if err != nil {
		return llm.ChatResponse{}, ai.ClassifyAPIError(err, "chat completion request failed")
	}
	if len(resp.Choices) == 0 {
		return llm.ChatResponse{}, fmt.Errorf("no chat completion choices returned")
	}

	choice := resp.Choices[0]
	c.logger.Debug("chat completion",
		slog.String("model", c.model),
		slog.Int("tokens", resp.Usage.TotalTokens),
		slog.Duration("took", time.Since(start)))

	return llm.ChatResponse{
		Message: llm.Message{
			Role:    llm.MessageRole(choice.Message.Role),
			Content: choice.Message.Content,
		},
		TokensUsed:   resp.Usage.TotalTokens,
		FinishReason: string(choice.FinishReason),
	}, nil
}

// ChatStream implements llm.LLM.
func (c *Client) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan string, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, c.buildRequest(req, true))
	if err != nil {
		return nil, ai.ClassifyAPIError(err, "chat completion stream failed")
	}

	out := make(chan string, 16)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			chunk, err := stream.Recv()
			if err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					c.logger.Warn("chat stream ended with error", slog.String("error", err.Error()))
				}
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case out <- delta:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) buildRequest(req llm.ChatRequest, stream bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	return openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      stream,
	}
}
