package vad

import (
	"math"
	"testing"
)

func toneWindow(amp float64) []int16 {
	w := make([]int16, WindowSize)
	for i := range w {
		w[i] = int16(amp * math.Sin(2*math.Pi*200*float64(i)/float64(SampleRate)))
	}
	return w
}

func TestAccumulatorWindows(t *testing.T) {
	var a Accumulator

	a.Add(make([]int16, 300))
	if _, ok := a.Next(); ok {
		t.Fatal("window available with only 300 samples")
	}

	a.Add(make([]int16, 300)) // 600 total
	w, ok := a.Next()
	if !ok {
		t.Fatal("no window with 600 samples buffered")
	}
	if len(w) != WindowSize {
		t.Fatalf("window size %d, want %d", len(w), WindowSize)
	}
	if a.Pending() != 600-WindowSize {
		t.Fatalf("pending = %d, want %d", a.Pending(), 600-WindowSize)
	}
	if _, ok := a.Next(); ok {
		t.Fatal("second window available from 88-sample tail")
	}

	a.Reset()
	if a.Pending() != 0 {
		t.Fatal("pending after reset")
	}
}

func TestEnergyEngineClassifies(t *testing.T) {
	e := NewEnergyEngine()

	speech, err := e.IsSpeech(toneWindow(8000))
	if err != nil {
		t.Fatal(err)
	}
	if !speech {
		t.Error("loud tone classified as silence")
	}

	e.Reset()
	quiet, err := e.IsSpeech(toneWindow(50))
	if err != nil {
		t.Fatal(err)
	}
	if quiet {
		t.Error("near-silence classified as speech")
	}
}

func TestEnergyEngineHangover(t *testing.T) {
	e := NewEnergyEngine(WithHangover(2))

	if s, _ := e.IsSpeech(toneWindow(8000)); !s {
		t.Fatal("speech not detected")
	}
	// Two quiet windows inside the hangover still count as speech.
	for i := 0; i < 2; i++ {
		if s, _ := e.IsSpeech(toneWindow(0)); !s {
			t.Fatalf("hangover window %d reported as silence", i)
		}
	}
	// The third quiet window ends the speech run.
	if s, _ := e.IsSpeech(toneWindow(0)); s {
		t.Fatal("speech still reported after hangover expired")
	}
}

func TestEnergyEngineResetClearsHangover(t *testing.T) {
	e := NewEnergyEngine(WithHangover(5))
	e.IsSpeech(toneWindow(8000))
	e.Reset()
	if s, _ := e.IsSpeech(toneWindow(0)); s {
		t.Fatal("silence after reset classified as speech")
	}
}
