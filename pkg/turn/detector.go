// Package turn implements the turn-taking state machine that decides
// when the far end has finished speaking. It consumes per-window VAD
// classifications stamped with elapsed call time and is advanced
// explicitly by the session at the speak/process boundaries.
package turn

import (
	"fmt"
	"sync"
)

// State is the detector's position in the conversation turn cycle.
type State int

const (
	// StateWaitingForTrialEnd ignores VAD until the telephony
	// provider's trial-account pre-roll has played out.
	StateWaitingForTrialEnd State = iota
	// StateListening accumulates far-end speech.
	StateListening
	// StateProcessing means an utterance ended and the session is
	// transcribing and generating a reply. VAD events do not move the
	// detector out of this state.
	StateProcessing
	// StateSpeaking means our own audio is playing. Far-end speech
	// here is a barge-in and flips the detector back to listening.
	StateSpeaking
	// StateFinished is terminal.
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateWaitingForTrialEnd:
		return "waiting_for_trial_end"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	case StateFinished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config holds the two timing parameters of the detector.
type Config struct {
	// SilenceThresholdMs is how long the far end must stay quiet after
	// speaking before the turn is considered over. Default 700.
	SilenceThresholdMs float64
	// MinSpeechMs is the minimum speech duration for a turn to count
	// at all, suppressing single-window false positives. Default 300.
	MinSpeechMs float64
}

// Detector tracks turn boundaries from VAD results and wall-clock
// marks. VAD results arrive from the media ingest goroutine while the
// session's speaker checks state between outbound frames, so all
// methods are safe for concurrent use.
type Detector struct {
	mu    sync.Mutex
	cfg   Config
	state State

	speechStartedAt  float64
	silenceStartedAt float64
	hasHeardSpeech   bool
	hasSilenceMark   bool
}

// NewDetector creates a detector in StateWaitingForTrialEnd.
func NewDetector(cfg Config) *Detector {
	if cfg.SilenceThresholdMs <= 0 {
		cfg.SilenceThresholdMs = 700
	}
	if cfg.MinSpeechMs <= 0 {
		cfg.MinSpeechMs = 300
	}
	return &Detector{cfg: cfg, state: StateWaitingForTrialEnd}
}

// State returns the current state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// OnVADResult feeds one classification stamped with elapsed call time
// in milliseconds and returns the resulting state.
func (d *Detector) OnVADResult(isSpeech bool, timestampMs float64) State {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateWaitingForTrialEnd || d.state == StateFinished {
		return d.state
	}

	if isSpeech {
		if !d.hasHeardSpeech {
			d.speechStartedAt = timestampMs
			d.hasHeardSpeech = true
		}
		d.hasSilenceMark = false

		// The far end talking over our playback is a barge-in.
		if d.state == StateSpeaking {
			d.state = StateListening
		}
		return d.state
	}

	if d.hasHeardSpeech && d.state == StateListening {
		if !d.hasSilenceMark {
			d.silenceStartedAt = timestampMs
			d.hasSilenceMark = true
		}

		speechDur := timestampMs - d.speechStartedAt
		silenceDur := timestampMs - d.silenceStartedAt

		if speechDur >= d.cfg.MinSpeechMs && silenceDur >= d.cfg.SilenceThresholdMs {
			d.resetTimers()
			d.state = StateProcessing
		}
	}

	return d.state
}

// MarkTrialEnded moves the detector out of the trial-message skip.
func (d *Detector) MarkTrialEnded() {
	d.setState(StateListening)
}

// MarkSpeaking records that our own audio is about to play.
func (d *Detector) MarkSpeaking() {
	d.setState(StateSpeaking)
}

// MarkListening returns to listening and clears the timers.
func (d *Detector) MarkListening() {
	d.setState(StateListening)
}

// MarkFinished moves to the terminal state.
func (d *Detector) MarkFinished() {
	d.setState(StateFinished)
}

func (d *Detector) setState(s State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = s
	d.resetTimers()
}

func (d *Detector) resetTimers() {
	d.hasHeardSpeech = false
	d.hasSilenceMark = false
	d.speechStartedAt = 0
	d.silenceStartedAt = 0
}
