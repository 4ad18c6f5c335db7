package whisper

import (
	"encoding/binary"
	"math"
	"testing"
)

// pcm16 builds a little-endian PCM byte buffer from int16 samples.
func pcm16(samples ...int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func TestPCMToFloat32(t *testing.T) {
	t.Run("converts and normalises samples", func(t *testing.T) {
		got := pcmToFloat32(pcm16(0, 16384, -16384, 32767, -32768))

		want := []float32{0, 0.5, -0.5, 32767.0 / 32768.0, -1.0}
		if len(got) != len(want) {
			t.Fatalf("expected %d samples, got %d", len(want), len(got))
		}
		for i := range want {
			if math.Abs(float64(got[i]-want[i])) > 1e-6 {
				t.Errorf("sample %d: expected %f, got %f", i, want[i], got[i])
			}
		}
	})

	t.Run("ignores trailing odd byte", func(t *testing.T) {
		buf := append(pcm16(100, 200), 0xFF)
		if got := pcmToFloat32(buf); len(got) != 2 {
			t.Errorf("expected 2 samples, got %d", len(got))
		}
	})

	t.Run("empty input yields empty output", func(t *testing.T) {
		if got := pcmToFloat32(nil); len(got) != 0 {
			t.Errorf("expected no samples, got %d", len(got))
		}
	})
}

func TestPCMToFloat32Mono(t *testing.T) {
	t.Run("single channel passes through", func(t *testing.T) {
		buf := pcm16(1000, -1000)
		mono := pcmToFloat32Mono(buf, 1)
		direct := pcmToFloat32(buf)
		if len(mono) != len(direct) {
			t.Fatalf("expected %d samples, got %d", len(direct), len(mono))
		}
		for i := range direct {
			if mono[i] != direct[i] {
				t.Errorf("sample %d: expected %f, got %f", i, direct[i], mono[i])
			}
		}
	})

	t.Run("stereo averages channel pairs", func(t *testing.T) {
		// Two frames: (16384, 0) and (-16384, -16384).
		mono := pcmToFloat32Mono(pcm16(16384, 0, -16384, -16384), 2)
		if len(mono) != 2 {
			t.Fatalf("expected 2 mono samples, got %d", len(mono))
		}
		if math.Abs(float64(mono[0]-0.25)) > 1e-6 {
			t.Errorf("frame 0: expected 0.25, got %f", mono[0])
		}
		if math.Abs(float64(mono[1]+0.5)) > 1e-6 {
			t.Errorf("frame 1: expected -0.5, got %f", mono[1])
		}
	})
}
