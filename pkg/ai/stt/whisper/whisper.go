// Package whisper transcribes utterances with the OpenAI Whisper API.
package whisper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/voxqa/voxqa/pkg/ai"
	"github.com/voxqa/voxqa/pkg/ai/stt"
	"github.com/voxqa/voxqa/pkg/audio/wav"
)

// Config holds configuration for the Whisper transcriber.
type Config struct {
	APIKey   string
	BaseURL  string // optional, for self-hosted Whisper-compatible servers
	Model    string // default whisper-1
	Language string // default "en"
}

// Transcriber implements stt.Transcriber against the Whisper API.
// Utterance PCM is wrapped in a WAV container and uploaded whole; the
// API's own VAD filtering trims leading and trailing quiet.
type Transcriber struct {
	client   *openai.Client
	model    string
	language string
	logger   *slog.Logger
}

// New creates a Whisper transcriber.
func New(cfg Config, logger *slog.Logger) (*Transcriber, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("whisper: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Transcriber{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    cfg.Model,
		language: cfg.Language,
		logger:   logger,
	}, nil
}

// Transcribe implements stt.Transcriber. Confidence is the mean
// average log-probability across segments, so it is negative with
// values nearer zero indicating higher confidence.
func (t *Transcriber) Transcribe(ctx context.Context, pcm []int16, sampleRate int) (stt.Result, error) {
	if len(pcm) == 0 {
		return stt.Result{}, nil
	}

	req := openai.AudioRequest{
		Model:    t.model,
		Language: t.language,
		Format:   openai.AudioResponseFormatVerboseJSON,
		Reader:   bytes.NewReader(wav.Encode(pcm, sampleRate)),
		FilePath: "utterance.wav",
	}

	resp, err := t.client.CreateTranscription(ctx, req)
	if err != nil {
		return stt.Result{}, ai.ClassifyAPIError(err, "whisper: transcription failed")
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return stt.Result{}, nil
	}

	var confidence float64
	if len(resp.Segments) > 0 {
		for _, seg := range resp.Segments {
			confidence += seg.AvgLogprob
		}
		confidence /= float64(len(resp.Segments))
	}

	t.logger.Debug("whisper transcription",
		slog.String("text", text),
		slog.Float64("confidence", confidence))

	return stt.Result{Text: text, Confidence: confidence}, nil
}
