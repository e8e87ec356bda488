// Package tts defines the text-to-speech contract. A synthesizer
// turns patient text into telephone-ready audio: 8 kHz mu-law split
// into 20 ms frames, the exact shape the media stream wants on the
// wire.
package tts

import (
	"context"

	"github.com/voxqa/voxqa/pkg/ai"
	"github.com/voxqa/voxqa/pkg/audio/ulaw"
)

// Re-exported so callers need not import the parent ai package.
var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

const (
	// FrameSize is the payload size of one outbound media frame:
	// 160 mu-law bytes, 20 ms at 8 kHz.
	FrameSize = 160

	// SampleRate is the line rate all synthesized audio ends up at.
	SampleRate = 8000
)

// Synthesizer converts text to a sequence of FrameSize mu-law frames.
// Empty output (with nil error) is a valid no-op speech turn; the text
// is still recorded in the conversation.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([][]byte, error)
}

// SplitFrames chops mu-law audio into FrameSize frames, padding the
// final frame with mu-law silence.
func SplitFrames(mulaw []byte) [][]byte {
	if len(mulaw) == 0 {
		return nil
	}
	frames := make([][]byte, 0, (len(mulaw)+FrameSize-1)/FrameSize)
	for off := 0; off < len(mulaw); off += FrameSize {
		end := off + FrameSize
		if end <= len(mulaw) {
			frames = append(frames, mulaw[off:end:end])
			continue
		}
		frame := make([]byte, FrameSize)
		n := copy(frame, mulaw[off:])
		for i := n; i < FrameSize; i++ {
			frame[i] = ulaw.Silence
		}
		frames = append(frames, frame)
	}
	return frames
}
