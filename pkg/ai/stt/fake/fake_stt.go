// Package fake provides a scripted speech-to-text implementation for
// testing.
package fake

import (
	"context"
	"sync"

	"github.com/voxqa/voxqa/pkg/ai/stt"
)

// FakeSTT returns queued transcriptions in order. When the queue is
// empty it returns an empty Result, matching the real adapter's
// behavior on unintelligible audio. Empty PCM always yields an empty
// Result without consuming the queue.
type FakeSTT struct {
	mu      sync.Mutex
	queue   []stt.Result
	Err     error // returned by every call when set
	Calls   int
	Samples []int // per-call input lengths, for assertions
}

// NewFakeSTT creates a fake transcriber with queued texts at full
// confidence.
func NewFakeSTT(texts ...string) *FakeSTT {
	f := &FakeSTT{}
	for _, text := range texts {
		f.queue = append(f.queue, stt.Result{Text: text, Confidence: -0.1})
	}
	return f
}

// Enqueue appends a transcription result to the queue.
func (f *FakeSTT) Enqueue(r stt.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, r)
}

// Transcribe implements stt.Transcriber.
func (f *FakeSTT) Transcribe(ctx context.Context, pcm []int16, sampleRate int) (stt.Result, error) {
	if len(pcm) == 0 {
		return stt.Result{}, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	f.Samples = append(f.Samples, len(pcm))

	if f.Err != nil {
		return stt.Result{}, f.Err
	}
	if len(f.queue) == 0 {
		return stt.Result{}, nil
	}
	r := f.queue[0]
	f.queue = f.queue[1:]
	return r, nil
}
