// Package openai synthesizes speech with the OpenAI audio API and
// converts it to telephone frames.
package openai

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/voxqa/voxqa/pkg/ai"
	"github.com/voxqa/voxqa/pkg/ai/tts"
	"github.com/voxqa/voxqa/pkg/audio"
	"github.com/voxqa/voxqa/pkg/audio/resample"
	"github.com/voxqa/voxqa/pkg/audio/ulaw"
)

// The API's raw PCM response format is 24 kHz mono 16-bit.
const apiSampleRate = 24000

// Config holds configuration for the OpenAI synthesizer.
type Config struct {
	APIKey  string
	BaseURL string // optional, for compatible servers
	Model   string // default tts-1
	Voice   string // default alloy
}

// Synthesizer implements tts.Synthesizer using OpenAI speech
// synthesis. Pipeline: text -> 24 kHz PCM -> 8 kHz PCM -> mu-law ->
// 160-byte frames.
type Synthesizer struct {
	client *openai.Client
	model  string
	voice  string
	logger *slog.Logger
}

// New creates an OpenAI TTS synthesizer.
func New(cfg Config, logger *slog.Logger) (*Synthesizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai tts: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.TTSModel1)
	}
	if cfg.Voice == "" {
		cfg.Voice = string(openai.VoiceAlloy)
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Synthesizer{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		voice:  cfg.Voice,
		logger: logger,
	}, nil
}

// Synthesize implements tts.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([][]byte, error) {
	if text == "" {
		return nil, nil
	}
	start := time.Now()

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.model),
		Input:          text,
		Voice:          openai.SpeechVoice(s.voice),
		ResponseFormat: openai.SpeechResponseFormatPcm,
	})
	if err != nil {
		return nil, ai.ClassifyAPIError(err, "openai tts: synthesis failed")
	}
	defer resp.Close()

	raw, err := io.ReadAll(resp)
	if err != nil {
		return nil, ai.NewRecoverableError(err, "openai tts: read response")
	}
	if len(raw) < 2 {
		s.logger.Warn("tts returned no audio", slog.String("text", truncate(text, 50)))
		return nil, nil
	}

	pcm24k := audio.BytesToPCM(raw)
	pcm8k := resample.Resample(pcm24k, apiSampleRate, tts.SampleRate)
	frames := tts.SplitFrames(ulaw.Encode(pcm8k))

	s.logger.Debug("tts synthesis complete",
		slog.Int("frames", len(frames)),
		slog.Duration("took", time.Since(start)))

	return frames, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
