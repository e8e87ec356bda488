package session

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/voxqa/voxqa/pkg/ai"
	llmfake "github.com/voxqa/voxqa/pkg/ai/llm/fake"
	sttfake "github.com/voxqa/voxqa/pkg/ai/stt/fake"
	ttsfake "github.com/voxqa/voxqa/pkg/ai/tts/fake"
	vadfake "github.com/voxqa/voxqa/pkg/ai/vad/fake"
	"github.com/voxqa/voxqa/pkg/audio/ulaw"
	"github.com/voxqa/voxqa/pkg/convo"
	"github.com/voxqa/voxqa/pkg/persona"
	"github.com/voxqa/voxqa/pkg/scenario"
)

// fakeClock is a settable time source shared by the script transport
// and the session.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// step is one scripted inbound message. The clock advance and the
// optional real-time pause run inside Read, so virtual call time moves
// in lockstep with the session's processing.
type step struct {
	advance time.Duration
	pause   time.Duration
	env     *Envelope
}

// scriptTransport feeds a fixed inbound script and records every
// outbound write.
type scriptTransport struct {
	clock *fakeClock
	steps []step
	pos   int

	mu     sync.Mutex
	writes []any
}

func (t *scriptTransport) Read() (*Envelope, error) {
	if t.pos >= len(t.steps) {
		return nil, errors.New("scripted disconnect")
	}
	st := t.steps[t.pos]
	t.pos++
	if st.advance > 0 {
		t.clock.Advance(st.advance)
	}
	if st.pause > 0 {
		time.Sleep(st.pause)
	}
	return st.env, nil
}

func (t *scriptTransport) Write(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes = append(t.writes, v)
	return nil
}

func (t *scriptTransport) Close() error { return nil }

func (t *scriptTransport) mediaWrites() []OutboundMedia {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []OutboundMedia
	for _, w := range t.writes {
		if m, ok := w.(OutboundMedia); ok {
			out = append(out, m)
		}
	}
	return out
}

func (t *scriptTransport) clearWrites() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, w := range t.writes {
		if _, ok := w.(OutboundClear); ok {
			n++
		}
	}
	return n
}

// mediaAfterClear counts media frames written after the first clear.
func (t *scriptTransport) mediaAfterClear() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, seen := 0, false
	for _, w := range t.writes {
		switch w.(type) {
		case OutboundClear:
			seen = true
		case OutboundMedia:
			if seen {
				n++
			}
		}
	}
	return n
}

func connectedEnv() *Envelope { return &Envelope{Event: EventConnected} }
func stopEnv() *Envelope      { return &Envelope{Event: EventStop} }

func startEnv(sid string) *Envelope {
	return &Envelope{Event: EventStart, Start: &StartPayload{StreamSid: sid}}
}

func mediaEnv(frame []byte) *Envelope {
	return &Envelope{Event: EventMedia, Media: &MediaPayload{
		Payload: base64.StdEncoding.EncodeToString(frame),
	}}
}

// silenceFrame is 20 ms of mu-law silence.
func silenceFrame() []byte {
	frame := make([]byte, 160)
	for i := range frame {
		frame[i] = ulaw.Silence
	}
	return frame
}

// speechFrame is 20 ms of a loud 500 Hz square wave, well above the
// amplitude VAD threshold after decode and resample.
func speechFrame() []byte {
	pcm := make([]int16, 160)
	for i := range pcm {
		if (i/8)%2 == 0 {
			pcm[i] = 8000
		} else {
			pcm[i] = -8000
		}
	}
	return ulaw.Encode(pcm)
}

// frameSteps emits n media frames 20 ms of call time apart.
func frameSteps(n int, frame []byte) []step {
	steps := make([]step, n)
	for i := range steps {
		steps[i] = step{advance: 20 * time.Millisecond, env: mediaEnv(frame)}
	}
	return steps
}

// callPreamble is connected + start + the frame that ends the trial
// message window.
func callPreamble() []step {
	return []step{
		{env: connectedEnv()},
		{env: startEnv("MZtest")},
		{advance: 10*time.Second + 20*time.Millisecond, env: mediaEnv(silenceFrame())},
	}
}

// utteranceSteps is one agent utterance: speech followed by enough
// silence to cross the 700 ms turn boundary.
func utteranceSteps() []step {
	steps := frameSteps(30, speechFrame())
	return append(steps, frameSteps(45, silenceFrame())...)
}

func testScenario() *scenario.Scenario {
	return &scenario.Scenario{
		ID:            "schedule_new",
		Name:          "Schedule a new appointment",
		PatientName:   "Margaret Chen",
		PatientAge:    58,
		Personality:   "polite",
		SpeakingStyle: "calm",
		Goal:          "Book a checkup for next week",
		Backstory:     "New to the area.",
		Instructions:  "Ask for a morning slot.",
	}
}

type testDeps struct {
	clock *fakeClock
	stt   *sttfake.FakeSTT
	tts   *ttsfake.FakeTTS
	model *llmfake.FakeLLM
}

func newTestSession(t *testing.T, deps testDeps, cfg Config, genOpts ...persona.GeneratorOption) *MediaSession {
	t.Helper()

	if cfg.FrameInterval == 0 {
		cfg.FrameInterval = time.Millisecond
	}
	scn := testScenario()
	sess, err := New(Params{
		Scenario:  scn,
		VAD:       vadfake.NewAmplitudeVAD(),
		STT:       deps.stt,
		TTS:       deps.tts,
		Generator: persona.NewGenerator(scn, deps.model, genOpts...),
		Config:    cfg,
		Clock:     deps.clock.Now,
	})
	if err != nil {
		t.Fatal(err)
	}
	return sess
}

func TestSessionHappyPath(t *testing.T) {
	is := is.New(t)
	deps := testDeps{
		clock: newFakeClock(),
		stt:   sttfake.NewFakeSTT("Thank you for calling the clinic. How can I help you?"),
		tts:   ttsfake.NewFakeTTS(25),
		model: llmfake.NewFakeLLM("Hi, um, I'd like to book an appointment please."),
	}
	dir := t.TempDir()
	sess := newTestSession(t, deps, Config{TranscriptDir: dir})

	tr := &scriptTransport{clock: deps.clock}
	tr.steps = append(tr.steps, callPreamble()...)
	tr.steps = append(tr.steps, utteranceSteps()...)
	tr.steps = append(tr.steps, step{env: stopEnv()})

	is.NoErr(sess.Run(context.Background(), tr))
	<-sess.Done()

	tsc := sess.Transcript()
	is.Equal(tsc.TurnCount, 2)
	is.Equal(tsc.Turns[0].Speaker, convo.SpeakerAgent)
	is.Equal(tsc.Turns[0].Text, "Thank you for calling the clinic. How can I help you?")
	is.Equal(tsc.Turns[1].Speaker, convo.SpeakerPatient)
	is.Equal(tsc.Turns[1].Text, "Hi, um, I'd like to book an appointment please.")

	// Every synthesized frame reaches the wire, none are cleared.
	media := tr.mediaWrites()
	is.Equal(len(media), 25)
	is.Equal(tr.clearWrites(), 0)
	for _, m := range media {
		is.Equal(m.StreamSid, "MZtest")
		payload, err := base64.StdEncoding.DecodeString(m.Media.Payload)
		is.NoErr(err)
		is.Equal(len(payload), 160)
	}

	// Transcript persisted.
	is.True(sess.TranscriptPath() != "")
	_, err := os.Stat(sess.TranscriptPath())
	is.NoErr(err)
}

func TestSessionDiscardsTrialArtifact(t *testing.T) {
	is := is.New(t)
	deps := testDeps{
		clock: newFakeClock(),
		stt: sttfake.NewFakeSTT(
			"You are using a trial account. Upgrade to remove this message.",
			"Hello, this is the clinic front desk.",
		),
		tts:   ttsfake.NewFakeTTS(10),
		model: llmfake.NewFakeLLM("Hi, I'd like to schedule a visit."),
	}
	sess := newTestSession(t, deps, Config{})

	tr := &scriptTransport{clock: deps.clock}
	tr.steps = append(tr.steps, callPreamble()...)
	tr.steps = append(tr.steps, utteranceSteps()...) // transcribes to the artifact
	tr.steps = append(tr.steps, utteranceSteps()...) // the real greeting
	tr.steps = append(tr.steps, step{env: stopEnv()})

	is.NoErr(sess.Run(context.Background(), tr))
	<-sess.Done()

	// The artifact never reaches the conversation or the LLM.
	tsc := sess.Transcript()
	is.Equal(tsc.TurnCount, 2)
	is.Equal(tsc.Turns[0].Text, "Hello, this is the clinic front desk.")
	is.Equal(deps.model.Calls(), 1)
}

func TestSessionBargeIn(t *testing.T) {
	is := is.New(t)
	deps := testDeps{
		clock: newFakeClock(),
		stt:   sttfake.NewFakeSTT("Let me read you our full list of services."),
		tts:   ttsfake.NewFakeTTS(100), // a 2 s utterance
		model: llmfake.NewFakeLLM("Hi, I'd like to schedule a visit."),
	}
	sess := newTestSession(t, deps, Config{
		FrameInterval: 5 * time.Millisecond,
		QueueCapacity: 4,
	})

	tr := &scriptTransport{clock: deps.clock}
	tr.steps = append(tr.steps, callPreamble()...)
	tr.steps = append(tr.steps, utteranceSteps()...)
	// The agent talks over the patient's reply.
	for i := 0; i < 30; i++ {
		tr.steps = append(tr.steps, step{
			advance: 20 * time.Millisecond,
			pause:   2 * time.Millisecond,
			env:     mediaEnv(speechFrame()),
		})
	}
	tr.steps = append(tr.steps, step{env: stopEnv()})

	is.NoErr(sess.Run(context.Background(), tr))
	<-sess.Done()

	// Exactly one clear, and the utterance was cut short.
	is.Equal(tr.clearWrites(), 1)
	is.True(len(tr.mediaWrites()) < 100)

	// Queued audio was dropped with the interruption: nothing may
	// re-fill the playback buffer the clear just emptied.
	is.Equal(tr.mediaAfterClear(), 0)

	// Both turns were recorded before the interruption.
	is.Equal(sess.Transcript().TurnCount, 2)
}

func TestSessionFatalTranscriptionEndsCall(t *testing.T) {
	is := is.New(t)
	fstt := sttfake.NewFakeSTT()
	fstt.Err = ai.NewFatalError(errors.New("invalid api key"), "whisper: transcription failed")
	deps := testDeps{
		clock: newFakeClock(),
		stt:   fstt,
		tts:   ttsfake.NewFakeTTS(5),
		model: llmfake.NewFakeLLM("never used"),
	}
	sess := newTestSession(t, deps, Config{})

	tr := &scriptTransport{clock: deps.clock}
	tr.steps = append(tr.steps, callPreamble()...)
	tr.steps = append(tr.steps, utteranceSteps()...)
	tr.steps = append(tr.steps, utteranceSteps()...)
	tr.steps = append(tr.steps, step{env: stopEnv()})

	is.NoErr(sess.Run(context.Background(), tr))
	<-sess.Done()

	// The call ended at the first failed turn instead of playing the
	// script out.
	is.True(tr.pos < len(tr.steps))
	is.Equal(fstt.Calls, 1)
	is.Equal(sess.Transcript().TurnCount, 0)
	is.Equal(deps.model.Calls(), 0)
}

func TestSessionRecoverableTranscriptionDropsTurn(t *testing.T) {
	is := is.New(t)
	fstt := sttfake.NewFakeSTT()
	fstt.Err = ai.NewRecoverableError(errors.New("rate limited"), "whisper: transcription failed")
	deps := testDeps{
		clock: newFakeClock(),
		stt:   fstt,
		tts:   ttsfake.NewFakeTTS(5),
		model: llmfake.NewFakeLLM("never used"),
	}
	sess := newTestSession(t, deps, Config{})

	tr := &scriptTransport{clock: deps.clock}
	tr.steps = append(tr.steps, callPreamble()...)
	tr.steps = append(tr.steps, utteranceSteps()...)
	tr.steps = append(tr.steps, step{env: stopEnv()})

	is.NoErr(sess.Run(context.Background(), tr))
	<-sess.Done()

	// The turn was dropped but the call stayed up through the script.
	is.Equal(tr.pos, len(tr.steps))
	is.Equal(fstt.Calls, 1)
	is.Equal(sess.Transcript().TurnCount, 0)
	is.Equal(deps.model.Calls(), 0)
}

func TestSessionSilenceWatchdog(t *testing.T) {
	is := is.New(t)
	deps := testDeps{
		clock: newFakeClock(),
		stt:   sttfake.NewFakeSTT(),
		tts:   ttsfake.NewFakeTTS(5),
		model: llmfake.NewFakeLLM("never used"),
	}
	sess := newTestSession(t, deps, Config{})

	tr := &scriptTransport{clock: deps.clock}
	tr.steps = append(tr.steps, callPreamble()...)
	for i := 0; i < 3; i++ {
		tr.steps = append(tr.steps,
			step{advance: 16 * time.Second, env: mediaEnv(silenceFrame())},
			step{pause: 10 * time.Millisecond, env: mediaEnv(silenceFrame())},
		)
	}

	is.NoErr(sess.Run(context.Background(), tr))
	<-sess.Done()

	tsc := sess.Transcript()
	is.Equal(tsc.TurnCount, 3)
	is.Equal(tsc.Turns[0].Text, silencePrompt)
	is.Equal(tsc.Turns[1].Text, silencePrompt)
	is.Equal(tsc.Turns[2].Text, disconnectPrompt)
	for _, turn := range tsc.Turns {
		is.Equal(turn.Speaker, convo.SpeakerPatient)
	}

	// The agent never spoke, so nothing was transcribed or generated.
	is.Equal(deps.stt.Calls, 0)
	is.Equal(deps.model.Calls(), 0)
}

func TestSessionGoodbyeEndsCall(t *testing.T) {
	is := is.New(t)
	deps := testDeps{
		clock: newFakeClock(),
		stt:   sttfake.NewFakeSTT("Your appointment is all set. Anything else?"),
		tts:   ttsfake.NewFakeTTS(20),
		model: llmfake.NewFakeLLM("No, that's everything. Thank you, goodbye!"),
	}
	sess := newTestSession(t, deps, Config{GoodbyeTail: 10 * time.Millisecond})

	tr := &scriptTransport{clock: deps.clock}
	tr.steps = append(tr.steps, callPreamble()...)
	tr.steps = append(tr.steps, utteranceSteps()...)
	// No stop event: the patient hangs up first.

	is.NoErr(sess.Run(context.Background(), tr))
	<-sess.Done()

	// The goodbye plays out in full.
	is.Equal(len(tr.mediaWrites()), 20)
	is.Equal(tr.clearWrites(), 0)
	is.Equal(sess.Transcript().TurnCount, 2)
}

func TestSessionLLMFailureFallsBack(t *testing.T) {
	is := is.New(t)
	model := llmfake.NewFakeLLM("too slow to matter")
	model.Delay = 300 * time.Millisecond
	deps := testDeps{
		clock: newFakeClock(),
		stt: sttfake.NewFakeSTT(
			"Hello, how can I help you?",
			"I am sorry, could you repeat your date of birth?",
		),
		tts:   ttsfake.NewFakeTTS(5),
		model: model,
	}
	sess := newTestSession(t, deps, Config{}, persona.WithTimeout(10*time.Millisecond))

	tr := &scriptTransport{clock: deps.clock}
	tr.steps = append(tr.steps, callPreamble()...)
	tr.steps = append(tr.steps, utteranceSteps()...)
	tr.steps = append(tr.steps, utteranceSteps()...)
	tr.steps = append(tr.steps, step{env: stopEnv()})

	is.NoErr(sess.Run(context.Background(), tr))
	<-sess.Done()

	tsc := sess.Transcript()
	is.Equal(tsc.TurnCount, 4)

	// The opening falls back to a line built from the scenario.
	is.True(strings.Contains(tsc.Turns[1].Text, "Margaret Chen"))

	// Later responses fall back to a canned line; the call keeps going.
	found := false
	for _, f := range persona.FallbackResponses {
		if tsc.Turns[3].Text == f {
			found = true
		}
	}
	is.True(found)
}

func TestSessionMaxDuration(t *testing.T) {
	is := is.New(t)
	deps := testDeps{
		clock: newFakeClock(),
		stt:   sttfake.NewFakeSTT(),
		tts:   ttsfake.NewFakeTTS(5),
		model: llmfake.NewFakeLLM("unused"),
	}
	sess := newTestSession(t, deps, Config{MaxCallDuration: 30 * time.Second})

	tr := &scriptTransport{clock: deps.clock}
	tr.steps = append(tr.steps, callPreamble()...)
	// Keep sending audio well past the cap.
	tr.steps = append(tr.steps, frameSteps(2000, silenceFrame())...)

	is.NoErr(sess.Run(context.Background(), tr))
	<-sess.Done()

	// The session hung up long before the script ran out.
	is.True(tr.pos < len(tr.steps))
}

func TestRegistryStageAndClaim(t *testing.T) {
	is := is.New(t)
	r := NewRegistry()
	is.Equal(r.claim(), (*PendingCall)(nil))

	pc := r.Stage(Params{})
	is.Equal(r.claim(), pc)
	is.Equal(r.claim(), (*PendingCall)(nil))

	// Session times out when no stream ever connects.
	_, err := pc.Session(10 * time.Millisecond)
	is.True(err != nil)
}
