// Package audio provides PCM sample utilities and the bounded inbound
// buffer that accumulates caller speech between turn boundaries.
package audio

import "sync"

// Buffer accumulates PCM blocks at a fixed sample rate until the turn
// detector flushes it for transcription. Add and Flush are safe to call
// from different goroutines.
//
// The trim policy is deliberately coarse: when the total exceeds the
// configured maximum, everything but the newest block is dropped. A
// correctly-behaving turn detector flushes at every end of utterance,
// so the limit only triggers when the far end never stops talking.
type Buffer struct {
	mu         sync.Mutex
	blocks     [][]int16
	total      int
	maxSamples int
	sampleRate int
}

// NewBuffer creates a buffer that holds at most maxDurationSeconds of
// audio at the given sample rate.
func NewBuffer(maxDurationSeconds, sampleRate int) *Buffer {
	return &Buffer{
		maxSamples: maxDurationSeconds * sampleRate,
		sampleRate: sampleRate,
	}
}

// Add appends a block of samples.
func (b *Buffer) Add(samples []int16) {
	if len(samples) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.blocks = append(b.blocks, samples)
	b.total += len(samples)
	if b.total > b.maxSamples {
		last := b.blocks[len(b.blocks)-1]
		b.blocks = [][]int16{last}
		b.total = len(last)
	}
}

// Flush returns the concatenation of all buffered samples and empties
// the buffer.
func (b *Buffer) Flush() []int16 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.total == 0 {
		return nil
	}
	out := make([]int16, 0, b.total)
	for _, block := range b.blocks {
		out = append(out, block...)
	}
	b.blocks = nil
	b.total = 0
	return out
}

// DurationSeconds reports how much audio is currently buffered.
func (b *Buffer) DurationSeconds() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return float64(b.total) / float64(b.sampleRate)
}

// Empty reports whether the buffer holds no samples.
func (b *Buffer) Empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total == 0
}
