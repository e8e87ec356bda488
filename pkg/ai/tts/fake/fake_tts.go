// Package fake provides a deterministic text-to-speech implementation
// for testing.
package fake

import (
	"context"
	"sync"

	"github.com/voxqa/voxqa/pkg/ai/tts"
	"github.com/voxqa/voxqa/pkg/audio/ulaw"
)

// FakeTTS produces FramesPerCall frames per synthesis regardless of
// text, or zero frames when Silent is set. Frame payloads are filled
// with a marker byte so tests can recognize them on the wire.
type FakeTTS struct {
	mu            sync.Mutex
	FramesPerCall int
	Marker        byte
	Silent        bool
	Err           error
	Calls         int
	Texts         []string
}

// NewFakeTTS creates a fake synthesizer emitting n frames per call.
func NewFakeTTS(n int) *FakeTTS {
	return &FakeTTS{FramesPerCall: n, Marker: 0xAB}
}

// Synthesize implements tts.Synthesizer.
func (f *FakeTTS) Synthesize(ctx context.Context, text string) ([][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	f.Texts = append(f.Texts, text)

	if f.Err != nil {
		return nil, f.Err
	}
	if f.Silent || text == "" {
		return nil, nil
	}

	frames := make([][]byte, f.FramesPerCall)
	for i := range frames {
		frame := make([]byte, tts.FrameSize)
		for j := range frame {
			frame[j] = f.Marker
		}
		frame[tts.FrameSize-1] = ulaw.Silence
		frames[i] = frame
	}
	return frames, nil
}
