// Package stt defines the speech-to-text contract: one complete
// utterance of PCM in, text plus a confidence score out. The session
// collects whole utterances between turn boundaries, so there is no
// streaming interface here.
package stt

import (
	"context"

	"github.com/voxqa/voxqa/pkg/ai"
)

// Re-exported so callers need not import the parent ai package.
var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

// Result is one transcription outcome. Confidence is provider-defined
// and only comparable within a provider; higher is better.
type Result struct {
	Text       string
	Confidence float64
}

// Transcriber converts one utterance of mono PCM to text. Empty input
// yields an empty Result and no error. Errors propagate to the caller;
// the adapter does not retry.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []int16, sampleRate int) (Result, error)
}
