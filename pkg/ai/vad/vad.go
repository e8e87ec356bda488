// Package vad defines the voice activity detection contract used by
// the call session. A VAD engine classifies fixed windows of 16 kHz
// PCM as speech or silence; the Accumulator slices an arbitrary sample
// stream into those windows.
package vad

import "github.com/voxqa/voxqa/pkg/ai"

// Re-exported so callers need not import the parent ai package.
var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

const (
	// SampleRate is the rate every engine in this package operates at.
	SampleRate = 16000

	// WindowSize is the number of samples per classification window:
	// 512 samples at 16 kHz, about 32 ms. Matches the Silero model's
	// expected chunk size.
	WindowSize = 512
)

// Engine classifies one window of speech at a time. Engines are
// stateful: classification may depend on previous windows, and Reset
// clears that state between utterances. Engines are not safe for
// concurrent use; each session owns its own instance.
type Engine interface {
	// IsSpeech classifies a window of exactly WindowSize samples of
	// 16 kHz mono PCM.
	IsSpeech(window []int16) (bool, error)

	// Reset clears internal state between utterances.
	Reset()
}

// Accumulator collects samples as they arrive and hands out complete
// classification windows. The tail shorter than one window stays
// buffered until more samples arrive.
type Accumulator struct {
	buf []int16
}

// Add appends samples to the tail buffer.
func (a *Accumulator) Add(samples []int16) {
	a.buf = append(a.buf, samples...)
}

// Next pops one full window, or returns false if fewer than WindowSize
// samples are buffered.
func (a *Accumulator) Next() ([]int16, bool) {
	if len(a.buf) < WindowSize {
		return nil, false
	}
	window := a.buf[:WindowSize:WindowSize]
	a.buf = a.buf[WindowSize:]
	return window, true
}

// Pending reports how many samples are waiting for a full window.
func (a *Accumulator) Pending() int {
	return len(a.buf)
}

// Reset discards any buffered tail.
func (a *Accumulator) Reset() {
	a.buf = nil
}
