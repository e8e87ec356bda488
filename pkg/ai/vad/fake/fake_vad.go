// Package fake provides VAD engines for testing.
package fake

import "sync"

// ScriptedVAD returns a predetermined sequence of classifications.
// Once the script is exhausted it keeps returning the final value.
type ScriptedVAD struct {
	mu      sync.Mutex
	script  []bool
	pos     int
	Resets  int
	Windows int
}

// NewScriptedVAD creates a fake engine that plays back the given
// classifications in order.
func NewScriptedVAD(script ...bool) *ScriptedVAD {
	return &ScriptedVAD{script: script}
}

// IsSpeech pops the next scripted value.
func (f *ScriptedVAD) IsSpeech(window []int16) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Windows++
	if len(f.script) == 0 {
		return false, nil
	}
	v := f.script[f.pos]
	if f.pos < len(f.script)-1 {
		f.pos++
	}
	return v, nil
}

// Reset counts resets for assertions; it does not rewind the script.
func (f *ScriptedVAD) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Resets++
}

// AmplitudeVAD classifies a window as speech when its mean absolute
// amplitude exceeds a threshold. Deterministic and stateless, which
// makes it convenient for end-to-end session tests that synthesize
// loud and silent frames.
type AmplitudeVAD struct {
	Threshold int // mean absolute sample value; default 500
}

// NewAmplitudeVAD creates an amplitude-based fake engine.
func NewAmplitudeVAD() *AmplitudeVAD {
	return &AmplitudeVAD{Threshold: 500}
}

// IsSpeech implements vad.Engine.
func (f *AmplitudeVAD) IsSpeech(window []int16) (bool, error) {
	if len(window) == 0 {
		return false, nil
	}
	var sum int64
	for _, s := range window {
		v := int64(s)
		if v < 0 {
			v = -v
		}
		sum += v
	}
	return sum/int64(len(window)) > int64(f.Threshold), nil
}

// Reset implements vad.Engine.
func (f *AmplitudeVAD) Reset() {}
