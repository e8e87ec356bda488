package vad

import "math"

// EnergyEngine is a pure-Go RMS-threshold VAD with hangover smoothing.
// It is the fallback when no Silero model is available, and is good
// enough for telephone audio where the line is near-silent between
// utterances.
type EnergyEngine struct {
	threshold float64 // normalized RMS, 0..1
	hangover  int     // windows of silence tolerated inside speech

	active      bool
	silentCount int
}

// EnergyOption configures an EnergyEngine.
type EnergyOption func(*EnergyEngine)

// WithThreshold sets the normalized RMS level above which a window
// counts as voiced. Default 0.015.
func WithThreshold(t float64) EnergyOption {
	return func(e *EnergyEngine) { e.threshold = t }
}

// WithHangover sets how many consecutive quiet windows are still
// reported as speech once speech has started. Default 8 (~256 ms),
// which bridges intra-word gaps without stretching real pauses.
func WithHangover(n int) EnergyOption {
	return func(e *EnergyEngine) { e.hangover = n }
}

// NewEnergyEngine creates an energy-based VAD engine.
func NewEnergyEngine(opts ...EnergyOption) *EnergyEngine {
	e := &EnergyEngine{
		threshold: 0.015,
		hangover:  8,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsSpeech implements Engine.
func (e *EnergyEngine) IsSpeech(window []int16) (bool, error) {
	if len(window) == 0 {
		return false, nil
	}

	var sum float64
	for _, s := range window {
		f := float64(s)
		sum += f * f
	}
	rms := math.Sqrt(sum/float64(len(window))) / 32768.0

	voiced := rms > e.threshold
	switch {
	case voiced:
		e.active = true
		e.silentCount = 0
	case e.active:
		e.silentCount++
		if e.silentCount <= e.hangover {
			voiced = true
		} else {
			e.active = false
		}
	}
	return voiced, nil
}

// Reset implements Engine.
func (e *EnergyEngine) Reset() {
	e.active = false
	e.silentCount = 0
}
