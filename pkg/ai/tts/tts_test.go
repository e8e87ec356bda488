package tts

import (
	"bytes"
	"testing"

	"github.com/voxqa/voxqa/pkg/audio/ulaw"
)

func TestSplitFramesExact(t *testing.T) {
	data := bytes.Repeat([]byte{0x55}, FrameSize*3)
	frames := SplitFrames(data)
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	for i, f := range frames {
		if len(f) != FrameSize {
			t.Fatalf("frame %d is %d bytes", i, len(f))
		}
	}
}

func TestSplitFramesPadsFinal(t *testing.T) {
	data := bytes.Repeat([]byte{0x55}, FrameSize+10)
	frames := SplitFrames(data)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	last := frames[1]
	if len(last) != FrameSize {
		t.Fatalf("final frame is %d bytes, want %d", len(last), FrameSize)
	}
	for i := 10; i < FrameSize; i++ {
		if last[i] != ulaw.Silence {
			t.Fatalf("pad byte %d is %#02x, want mu-law silence", i, last[i])
		}
	}
}

func TestSplitFramesEmpty(t *testing.T) {
	if frames := SplitFrames(nil); frames != nil {
		t.Fatalf("empty input produced %d frames", len(frames))
	}
}
