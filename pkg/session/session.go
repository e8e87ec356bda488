// Package session runs one end-to-end test call: it consumes the
// telephony media stream, drives the audio pipeline (decode, resample,
// VAD, turn detection, transcription), generates and speaks the
// patient persona's replies, and produces the call transcript.
package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/voxqa/voxqa/pkg/ai"
	"github.com/voxqa/voxqa/pkg/ai/stt"
	"github.com/voxqa/voxqa/pkg/ai/tts"
	"github.com/voxqa/voxqa/pkg/ai/vad"
	"github.com/voxqa/voxqa/pkg/audio"
	"github.com/voxqa/voxqa/pkg/audio/resample"
	"github.com/voxqa/voxqa/pkg/audio/ulaw"
	"github.com/voxqa/voxqa/pkg/convo"
	"github.com/voxqa/voxqa/pkg/persona"
	"github.com/voxqa/voxqa/pkg/scenario"
	"github.com/voxqa/voxqa/pkg/turn"
)

// trialArtifactWords mark transcriptions that are really the telephony
// provider's trial-account announcement bleeding past the skip window.
var trialArtifactWords = []string{"trial", "twilio", "upgrade", "account"}

// goodbyeWords end the call once they appear in a patient line.
var goodbyeWords = []string{"goodbye", "bye", "thank you, goodbye", "have a good"}

// Silence watchdog prompts.
const (
	silencePrompt    = "Hello? Are you still there?"
	disconnectPrompt = "I think we got disconnected. Thank you, goodbye."
)

// Config carries the tunable timings of a call session. The zero value
// of each field selects the production default.
type Config struct {
	// SilenceThresholdMs and MinSpeechMs parameterize the turn
	// detector. Defaults 700 and 300.
	SilenceThresholdMs float64
	MinSpeechMs        float64

	// TrialMessageDuration is how long to ignore inbound audio at the
	// start of the stream while the provider's trial announcement
	// plays. Default 10s.
	TrialMessageDuration time.Duration

	// MaxCallDuration hangs up regardless of conversation state.
	// Default 3m.
	MaxCallDuration time.Duration

	// ReadTimeout bounds how long the transport waits for inbound
	// data. Default 30s.
	ReadTimeout time.Duration

	// SilencePromptAfter is how long the agent may stay quiet before
	// the patient prompts it, and MaxSilencePrompts how many prompts
	// are spoken before giving up. Defaults 15s and 3.
	SilencePromptAfter time.Duration
	MaxSilencePrompts  int

	// GoodbyeTail is how long to keep the stream open after the
	// patient's goodbye so the tail of the audio plays out. Default 2s.
	GoodbyeTail time.Duration

	// FrameInterval is the outbound pacing cadence. Default 20ms.
	FrameInterval time.Duration

	// QueueCapacity bounds the outbound frame queue. Default 512.
	QueueCapacity int

	// MaxBufferSeconds bounds the inbound speech buffer. Default 30.
	MaxBufferSeconds int

	// TranscriptDir, when set, is where the transcript is saved at the
	// end of the call.
	TranscriptDir string
}

func (c Config) withDefaults() Config {
	if c.TrialMessageDuration <= 0 {
		c.TrialMessageDuration = 10 * time.Second
	}
	if c.MaxCallDuration <= 0 {
		c.MaxCallDuration = 3 * time.Minute
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.SilencePromptAfter <= 0 {
		c.SilencePromptAfter = 15 * time.Second
	}
	if c.MaxSilencePrompts <= 0 {
		c.MaxSilencePrompts = 3
	}
	if c.GoodbyeTail < 0 {
		c.GoodbyeTail = 0
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = 20 * time.Millisecond
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 512
	}
	if c.MaxBufferSeconds <= 0 {
		c.MaxBufferSeconds = 30
	}
	return c
}

// Params assembles the components a session needs. All of Scenario,
// VAD, STT, TTS and Generator are required.
type Params struct {
	Scenario  *scenario.Scenario
	VAD       vad.Engine
	STT       stt.Transcriber
	TTS       tts.Synthesizer
	Generator *persona.Generator

	Config Config
	Logger *slog.Logger

	// Clock substitutes the time source, for tests.
	Clock func() time.Time
}

// MediaSession is the per-call orchestrator. Create one with New for
// each inbound media stream and drive it with Run; a session is not
// reusable.
type MediaSession struct {
	id  string
	cfg Config

	scenario *scenario.Scenario
	vad      vad.Engine
	stt      stt.Transcriber
	tts      tts.Synthesizer
	gen      *persona.Generator

	logger *slog.Logger
	clock  func() time.Time

	detector *turn.Detector
	buffer   *audio.Buffer
	acc      vad.Accumulator
	conv     *convo.Conversation

	transport Transport
	pacer     *pacer

	streamSid   string
	streamStart time.Time
	callStart   time.Time
	trialEnded  bool
	openingSent bool

	speaking  atomic.Bool
	speakDone chan struct{}

	agentSilenceStart time.Time
	timeoutCount      int

	transcript     *convo.Transcript
	transcriptPath string
	done           chan struct{}
	doneOnce       sync.Once
}

// New validates params and creates a session.
func New(p Params) (*MediaSession, error) {
	switch {
	case p.Scenario == nil:
		return nil, fmt.Errorf("session: scenario is required")
	case p.VAD == nil:
		return nil, fmt.Errorf("session: vad engine is required")
	case p.STT == nil:
		return nil, fmt.Errorf("session: transcriber is required")
	case p.TTS == nil:
		return nil, fmt.Errorf("session: synthesizer is required")
	case p.Generator == nil:
		return nil, fmt.Errorf("session: persona generator is required")
	}

	cfg := p.Config.withDefaults()
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := p.Clock
	if clock == nil {
		clock = time.Now
	}

	id := uuid.NewString()
	s := &MediaSession{
		id:       id,
		cfg:      cfg,
		scenario: p.Scenario,
		vad:      p.VAD,
		stt:      p.STT,
		tts:      p.TTS,
		gen:      p.Generator,
		logger: logger.With(
			slog.String("session", id[:8]),
			slog.String("scenario", p.Scenario.ID),
		),
		clock: clock,
		detector: turn.NewDetector(turn.Config{
			SilenceThresholdMs: cfg.SilenceThresholdMs,
			MinSpeechMs:        cfg.MinSpeechMs,
		}),
		buffer: audio.NewBuffer(cfg.MaxBufferSeconds, vad.SampleRate),
		done:   make(chan struct{}),
	}
	s.conv = convo.New(p.Scenario.ID, convo.WithClock(clock))
	return s, nil
}

// ID returns the session identifier.
func (s *MediaSession) ID() string { return s.id }

// Done is closed when the session has finished and the transcript is
// available.
func (s *MediaSession) Done() <-chan struct{} { return s.done }

// Transcript returns the final transcript. Valid after Done is closed.
func (s *MediaSession) Transcript() *convo.Transcript { return s.transcript }

// TranscriptPath returns where the transcript was saved, or "" if it
// was not persisted.
func (s *MediaSession) TranscriptPath() string { return s.transcriptPath }

// Run processes the media stream until the call ends, then saves the
// transcript and closes Done. The transport is not closed; that stays
// with whoever accepted the connection.
func (s *MediaSession) Run(ctx context.Context, transport Transport) error {
	defer s.finish()

	s.transport = transport
	s.pacer = newPacer(transport, s.cfg.FrameInterval, s.cfg.QueueCapacity, s.logger)
	go s.pacer.run()

	s.callStart = s.clock()
	s.logger.Info("call session started", slog.String("patient", s.scenario.PatientName))

	for {
		if err := ctx.Err(); err != nil {
			s.logger.Info("session context canceled")
			return nil
		}
		if s.clock().Sub(s.callStart) > s.cfg.MaxCallDuration {
			s.logger.Info("max call duration reached, hanging up")
			return nil
		}

		env, err := transport.Read()
		if err != nil {
			s.logger.Info("media stream closed", slog.String("reason", err.Error()))
			return nil
		}

		switch env.Event {
		case EventConnected:
			s.logger.Info("stream connected")

		case EventStart:
			s.handleStart(env)

		case EventMedia:
			if env.Media == nil {
				continue
			}
			if finished := s.handleMedia(ctx, env.Media); finished {
				return nil
			}

		case EventStop:
			s.logger.Info("stream stopped")
			return nil

		default:
			s.logger.Debug("ignoring stream event", slog.String("event", env.Event))
		}
	}
}

func (s *MediaSession) handleStart(env *Envelope) {
	sid := env.StreamSid
	if env.Start != nil && env.Start.StreamSid != "" {
		sid = env.Start.StreamSid
	}
	s.streamSid = sid
	s.streamStart = s.clock()
	s.pacer.setStreamSid(sid)
	s.logger.Info("stream started", slog.String("streamSid", sid))
}

// handleMedia runs one inbound frame through the pipeline. It reports
// whether the call is over.
func (s *MediaSession) handleMedia(ctx context.Context, media *MediaPayload) bool {
	if s.streamStart.IsZero() {
		return false
	}

	payload, err := base64.StdEncoding.DecodeString(media.Payload)
	if err != nil {
		s.logger.Warn("dropping undecodable media frame", slog.String("error", err.Error()))
		return false
	}

	elapsed := s.clock().Sub(s.streamStart)

	// The provider's trial announcement plays first; nothing in that
	// window may reach the buffer or the VAD.
	if !s.trialEnded {
		if elapsed < s.cfg.TrialMessageDuration {
			return false
		}
		s.trialEnded = true
		s.detector.MarkTrialEnded()
		s.vad.Reset()
		s.acc.Reset()
		s.logger.Info("trial message window over, listening")
	}

	pcm := resample.Resample(ulaw.Decode(payload), tts.SampleRate, vad.SampleRate)
	s.buffer.Add(pcm)
	s.acc.Add(pcm)

	elapsedMs := float64(elapsed.Milliseconds())
	for {
		window, ok := s.acc.Next()
		if !ok {
			break
		}
		isSpeech, err := s.vad.IsSpeech(window)
		if err != nil {
			s.logger.Warn("vad classification failed", slog.String("error", err.Error()))
			continue
		}
		if isSpeech {
			s.agentSilenceStart = time.Time{}
		}

		prev := s.detector.State()
		state := s.detector.OnVADResult(isSpeech, elapsedMs)

		if state == turn.StateProcessing && prev != turn.StateProcessing {
			if finished := s.processTurn(ctx); finished {
				return true
			}
		}
	}

	return s.checkAgentSilence(ctx)
}

// processTurn transcribes the buffered utterance, generates the
// patient's reply and speaks it. It reports whether the call is over.
func (s *MediaSession) processTurn(ctx context.Context) bool {
	pcm := s.buffer.Flush()
	if len(pcm) == 0 {
		s.detector.MarkListening()
		return false
	}

	result, err := s.stt.Transcribe(ctx, pcm, vad.SampleRate)
	if err != nil {
		if ai.IsFatal(err) {
			s.logger.Error("transcription failed permanently, ending call", slog.String("error", err.Error()))
			return true
		}
		s.logger.Warn("transcription failed, dropping turn", slog.String("error", err.Error()))
		s.detector.MarkListening()
		return false
	}

	agentText := strings.TrimSpace(result.Text)
	if agentText == "" {
		s.detector.MarkListening()
		return false
	}
	if lower := strings.ToLower(agentText); containsAny(lower, trialArtifactWords) {
		s.logger.Info("discarding trial message artifact", slog.String("text", truncate(agentText, 50)))
		s.detector.MarkListening()
		return false
	}

	s.logger.Info("agent said",
		slog.String("text", agentText),
		slog.Float64("confidence", result.Confidence),
	)
	s.conv.AddAgent(agentText)

	var patientText string
	if !s.openingSent {
		s.openingSent = true
		patientText = s.gen.OpeningLine(ctx)
	} else {
		patientText = s.gen.Respond(ctx, s.conv.Recent(10))
	}

	s.logger.Info("patient says", slog.String("text", patientText))
	s.conv.AddPatient(patientText)
	s.speak(ctx, patientText)

	if containsAny(strings.ToLower(patientText), goodbyeWords) {
		s.logger.Info("patient said goodbye, ending call")
		s.waitSpeaker()
		if s.cfg.GoodbyeTail > 0 {
			time.Sleep(s.cfg.GoodbyeTail)
		}
		return true
	}

	s.vad.Reset()
	s.agentSilenceStart = s.clock()
	return false
}

// speak synthesizes text and hands the frames to the pacer from a
// separate goroutine, so the ingest loop keeps classifying inbound
// audio while we play. Between frames the speaker watches for the
// detector flipping back to listening, which means the agent barged
// in: queued audio is dropped and a clear envelope tells the provider
// to empty its playback buffer too. The check runs per enqueued frame,
// so an utterance that fits entirely in the pacer queue is committed
// the moment it is queued; only utterances longer than QueueCapacity
// frames can be cut short.
func (s *MediaSession) speak(ctx context.Context, text string) {
	s.waitSpeaker()

	s.speaking.Store(true)
	s.detector.MarkSpeaking()

	frames, err := s.tts.Synthesize(ctx, text)
	if err != nil {
		s.logger.Warn("synthesis failed, skipping utterance", slog.String("error", err.Error()))
		frames = nil
	}

	done := make(chan struct{})
	s.speakDone = done
	go func() {
		defer close(done)
		defer s.speaking.Store(false)

		for _, frame := range frames {
			if s.detector.State() == turn.StateListening {
				s.logger.Info("interrupted by agent, stopping speech")
				if err := s.pacer.interrupt(OutboundClear{Event: EventClear, StreamSid: s.streamSid}); err != nil {
					s.logger.Debug("clear message failed", slog.String("error", err.Error()))
				}
				return
			}
			if !s.pacer.enqueue(frame) {
				return
			}
		}
		if s.detector.State() == turn.StateSpeaking {
			s.detector.MarkListening()
		}
	}()
}

// waitSpeaker blocks until the previous utterance has been fully
// queued or abandoned.
func (s *MediaSession) waitSpeaker() {
	if s.speakDone != nil {
		<-s.speakDone
	}
}

// checkAgentSilence runs the dead-air watchdog. It reports whether the
// call is over.
func (s *MediaSession) checkAgentSilence(ctx context.Context) bool {
	if s.speaking.Load() || s.detector.State() != turn.StateListening {
		return false
	}

	now := s.clock()
	if s.agentSilenceStart.IsZero() {
		s.agentSilenceStart = now
		return false
	}
	if now.Sub(s.agentSilenceStart) <= s.cfg.SilencePromptAfter {
		return false
	}

	s.timeoutCount++
	prompt := silencePrompt
	if s.timeoutCount >= s.cfg.MaxSilencePrompts {
		prompt = disconnectPrompt
	}

	s.logger.Warn("agent silent too long, prompting",
		slog.Int("count", s.timeoutCount),
		slog.String("prompt", prompt),
	)
	s.conv.AddPatient(prompt)
	s.speak(ctx, prompt)
	s.agentSilenceStart = s.clock()

	if s.timeoutCount >= s.cfg.MaxSilencePrompts {
		s.waitSpeaker()
		return true
	}
	return false
}

// finish drains the pacer, snapshots and saves the transcript, and
// closes Done. Safe to call once from Run's defer.
func (s *MediaSession) finish() {
	s.doneOnce.Do(func() {
		s.waitSpeaker()
		s.pacer.stop()

		s.transcript = s.conv.Snapshot()
		if s.transcript.TurnCount == 0 {
			s.logger.Warn("call ended with no conversation turns")
		} else if s.cfg.TranscriptDir != "" {
			path, err := s.transcript.Save(s.cfg.TranscriptDir)
			if err != nil {
				s.logger.Error("saving transcript failed", slog.String("error", err.Error()))
			} else {
				s.transcriptPath = path
				s.logger.Info("call complete", slog.String("transcript", path))
			}
		}
		close(s.done)
	})
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func truncate(text string, n int) string {
	if len(text) <= n {
		return text
	}
	return text[:n]
}
