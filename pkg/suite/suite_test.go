package suite

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matryer/is"

	"github.com/voxqa/voxqa/pkg/analysis"
	llmfake "github.com/voxqa/voxqa/pkg/ai/llm/fake"
	sttfake "github.com/voxqa/voxqa/pkg/ai/stt/fake"
	ttsfake "github.com/voxqa/voxqa/pkg/ai/tts/fake"
	vadfake "github.com/voxqa/voxqa/pkg/ai/vad/fake"
	"github.com/voxqa/voxqa/pkg/audio/ulaw"
	"github.com/voxqa/voxqa/pkg/persona"
	"github.com/voxqa/voxqa/pkg/scenario"
	"github.com/voxqa/voxqa/pkg/session"
)

func testScenarios() []*scenario.Scenario {
	return []*scenario.Scenario{
		{
			ID:          "schedule_new",
			Name:        "Schedule a new appointment",
			PatientName: "Margaret Chen",
			Goal:        "Book a checkup",
		},
		{
			ID:          "prescription_refill",
			Name:        "Refill a prescription",
			PatientName: "Robert Hayes",
			Goal:        "Refill lisinopril",
		},
	}
}

func fastParams(scn *scenario.Scenario) session.Params {
	return session.Params{
		Scenario: scn,
		VAD:      vadfake.NewAmplitudeVAD(),
		STT:      sttfake.NewFakeSTT("Hello, can I get your name and date of birth?"),
		TTS:      ttsfake.NewFakeTTS(5),
		Generator: persona.NewGenerator(scn,
			llmfake.NewFakeLLM("That's all I needed. Thank you, goodbye!")),
		Config: session.Config{
			TrialMessageDuration: 30 * time.Millisecond,
			SilenceThresholdMs:   100,
			MinSpeechMs:          20,
			FrameInterval:        time.Millisecond,
			ReadTimeout:          2 * time.Second,
		},
	}
}

func mulawSpeech() []byte {
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

func mulawSilence() []byte {
	frame := make([]byte, 160)
	for i := range frame {
		frame[i] = ulaw.Silence
	}
	return frame
}

// wsCaller stands in for the telephony provider: placing a call dials
// our own media stream endpoint and plays one scripted agent
// utterance.
type wsCaller struct {
	url string
}

func (c *wsCaller) PlaceCall(ctx context.Context) (string, error) {
	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return "", err
	}

	go func() {
		defer conn.Close()

		// Drain server frames so neither side backs up.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		send := func(event string, media []byte) {
			env := map[string]any{"event": event}
			if event == "start" {
				env["start"] = map[string]any{"streamSid": "MZsuite"}
			}
			if media != nil {
				env["media"] = map[string]any{
					"payload": base64.StdEncoding.EncodeToString(media),
				}
			}
			_ = conn.WriteJSON(env)
		}

		send("connected", nil)
		send("start", nil)
		time.Sleep(50 * time.Millisecond)
		send("media", mulawSilence())
		for i := 0; i < 10; i++ {
			send("media", mulawSpeech())
			time.Sleep(10 * time.Millisecond)
		}
		for i := 0; i < 30; i++ {
			send("media", mulawSilence())
			time.Sleep(10 * time.Millisecond)
		}
	}()

	return "CAfake", nil
}

func TestRunnerSuite(t *testing.T) {
	is := is.New(t)

	registry := session.NewRegistry()
	server := httptest.NewServer(session.NewHandler(registry, nil))
	defer server.Close()

	dir := t.TempDir()
	runner := &Runner{
		Registry:       registry,
		Caller:         &wsCaller{url: "ws" + strings.TrimPrefix(server.URL, "http")},
		NewParams:      fastParams,
		Detector:       analysis.NewDetector(),
		ReportsDir:     dir,
		Delay:          10 * time.Millisecond,
		ConnectTimeout: 5 * time.Second,
		CallTimeout:    15 * time.Second,
	}

	results := runner.Run(context.Background(), testScenarios())
	is.Equal(len(results), 2)
	for _, r := range results {
		is.True(r.Success)
		is.True(r.Report != nil)
		is.Equal(r.Report.TurnCount, 2)
	}

	// Per-call reports plus summary.json are on disk.
	entries, err := os.ReadDir(dir)
	is.NoErr(err)
	var reports, summaries int
	for _, e := range entries {
		switch {
		case strings.HasPrefix(e.Name(), "report_"):
			reports++
		case e.Name() == "summary.json":
			summaries++
		}
	}
	is.Equal(reports, 2)
	is.Equal(summaries, 1)

	// The summary round-trips.
	data, err := os.ReadFile(filepath.Join(dir, "summary.json"))
	is.NoErr(err)
	var got []Result
	is.NoErr(json.Unmarshal(data, &got))
	is.Equal(len(got), 2)
	is.Equal(got[0].ScenarioID, "schedule_new")
}

func TestRunnerCallPlacementFailure(t *testing.T) {
	is := is.New(t)

	runner := &Runner{
		Registry:  session.NewRegistry(),
		Caller:    failingCaller{},
		NewParams: fastParams,
		Detector:  analysis.NewDetector(),
	}

	results := runner.Run(context.Background(), testScenarios()[:1])
	is.Equal(len(results), 1)
	is.True(!results[0].Success)
	is.Equal(results[0].BugsFound, 0)
}

type failingCaller struct{}

func (failingCaller) PlaceCall(context.Context) (string, error) {
	return "", errors.New("twilio rejected the call")
}

func TestFormatSummary(t *testing.T) {
	is := is.New(t)
	out := FormatSummary([]Result{
		{ScenarioName: "Schedule a new appointment", Success: true, BugsFound: 2},
		{ScenarioName: "Refill a prescription", Success: false},
	})
	is.True(strings.Contains(out, "TEST SUITE SUMMARY"))
	is.True(strings.Contains(out, "[OK] Schedule a new appointment: 2 bugs found"))
	is.True(strings.Contains(out, "[FAILED] Refill a prescription: 0 bugs found"))
	is.True(strings.Contains(out, "Total: 2 calls, 2 bugs found"))
}
