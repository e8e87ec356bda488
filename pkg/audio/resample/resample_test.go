package resample

import (
	"math"
	"testing"
)

func sine(freq float64, rate, n int, amp float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func rms(pcm []int16) float64 {
	if len(pcm) == 0 {
		return 0
	}
	var sum float64
	for _, s := range pcm {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(pcm)))
}

func TestPassThrough(t *testing.T) {
	in := sine(440, 8000, 800, 10000)
	out := Resample(in, 8000, 8000)
	if len(out) != len(in) {
		t.Fatalf("length changed on pass-through: %d -> %d", len(in), len(out))
	}
	for i := range out {
		if out[i] != in[i] {
			t.Fatalf("sample %d changed on pass-through", i)
		}
	}
}

func TestUpsampleLength(t *testing.T) {
	in := sine(300, 8000, 160, 8000)
	out := Resample(in, 8000, 16000)
	if len(out) != 320 {
		t.Fatalf("8k->16k of 160 samples produced %d, want 320", len(out))
	}
}

func TestDownsampleLength(t *testing.T) {
	in := sine(300, 16000, 512, 8000)
	out := Resample(in, 16000, 8000)
	if len(out) != 256 {
		t.Fatalf("16k->8k of 512 samples produced %d, want 256", len(out))
	}
}

// Energy must be approximately preserved for in-band content.
func TestEnergyPreserved(t *testing.T) {
	cases := []struct {
		name         string
		orig, target int
	}{
		{"8k_to_16k", 8000, 16000},
		{"16k_to_8k", 16000, 8000},
		{"24k_to_8k", 24000, 8000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := sine(400, tc.orig, tc.orig/2, 12000) // half a second of 400 Hz
			out := Resample(in, tc.orig, tc.target)

			ratio := rms(out) / rms(in)
			if ratio < 0.9 || ratio > 1.1 {
				t.Errorf("RMS ratio %.3f outside [0.9, 1.1]", ratio)
			}
		})
	}
}

func TestEmptyInput(t *testing.T) {
	if out := Resample(nil, 8000, 16000); len(out) != 0 {
		t.Fatalf("empty input produced %d samples", len(out))
	}
}

func TestNoClipping(t *testing.T) {
	// Full-scale input must not wrap on filter overshoot.
	in := sine(1000, 8000, 4000, 32767)
	out := Resample(in, 8000, 16000)
	for i, s := range out {
		if s == math.MinInt16 && i > 0 && out[i-1] > 0 {
			t.Fatalf("sample %d wrapped from positive to MinInt16", i)
		}
	}
}
