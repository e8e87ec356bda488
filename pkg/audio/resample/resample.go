// Package resample converts PCM audio between sample rates using a
// polyphase windowed-sinc filter. The session uses it in two places:
// 8 kHz line audio up to 16 kHz for VAD and STT, and synthesized
// speech back down to 8 kHz for the wire.
package resample

import "math"

// tapsPerPhase controls filter length. 16 taps per polyphase branch is
// enough to keep the 8k/16k transition band well under the telephone
// voice band.
const tapsPerPhase = 16

// Resample converts pcm from orig Hz to target Hz. When the rates are
// equal the input is returned unchanged. Output samples are clipped to
// the int16 range.
func Resample(pcm []int16, orig, target int) []int16 {
	if orig == target || len(pcm) == 0 {
		return pcm
	}

	g := gcd(orig, target)
	up := target / g
	down := orig / g

	h := design(up, down)
	center := len(h) / 2

	outLen := (len(pcm)*up + down - 1) / down
	out := make([]int16, outLen)

	for n := 0; n < outLen; n++ {
		// Index into the conceptual zero-stuffed stream, aligned so the
		// filter is centered on the input.
		t := n*down + center
		var acc float64
		for m := t % up; m < len(h); m += up {
			i := (t - m) / up
			if i >= 0 && i < len(pcm) {
				acc += h[m] * float64(pcm[i])
			}
		}
		out[n] = clip(acc)
	}
	return out
}

// design builds a lowpass FIR with cutoff at the narrower of the two
// Nyquist rates, Hamming-windowed, with gain up to compensate for zero
// stuffing.
func design(up, down int) []float64 {
	maxFactor := up
	if down > maxFactor {
		maxFactor = down
	}
	fc := 0.5 / float64(maxFactor)

	n := tapsPerPhase*up*2 + 1
	h := make([]float64, n)
	center := float64(n-1) / 2
	for i := range h {
		x := float64(i) - center
		w := 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
		h[i] = float64(up) * 2 * fc * sinc(2*fc*x) * w
	}
	return h
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(math.Pi*x) / (math.Pi * x)
}

func clip(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
