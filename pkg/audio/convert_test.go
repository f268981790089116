package audio_test

import (
	"encoding/binary"
	"testing"

	"github.com/liveprompt/liveprompt/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestDownmixLeft(t *testing.T) {
	// Three stereo frames; right channel values must be discarded.
	stereo := samplesToBytes([]int16{100, 9999, -200, 9999, 300, -9999})
	mono := audio.DownmixLeft(stereo)
	got := bytesToSamples(mono)
	want := []int16{100, -200, 300}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestDownmixLeft_FrameCount(t *testing.T) {
	// N stereo frames must yield exactly N mono samples.
	for _, frames := range []int{0, 1, 7, 480} {
		stereo := make([]byte, frames*4)
		mono := audio.DownmixLeft(stereo)
		if len(mono) != frames*2 {
			t.Errorf("%d frames: got %d mono bytes, want %d", frames, len(mono), frames*2)
		}
	}
}

func TestFloat32ToPCM16(t *testing.T) {
	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{"full scale positive", 1.0, 32767},
		{"full scale negative", -1.0, -32768},
		{"silence", 0.0, 0},
		{"half scale", 0.5, 16384},
		{"clamped above", 1.5, 32767},
		{"clamped below", -2.0, -32768},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := audio.Float32ToPCM16([]float32{tt.in})
			got := bytesToSamples(out)
			if got[0] != tt.want {
				t.Errorf("Float32ToPCM16(%v) = %d, want %d", tt.in, got[0], tt.want)
			}
		})
	}
}

func TestFloat32ToPCM16_ClampMatchesFullScale(t *testing.T) {
	over := audio.Float32ToPCM16([]float32{1.5})
	full := audio.Float32ToPCM16([]float32{1.0})
	if string(over) != string(full) {
		t.Errorf("out-of-range input %v should convert identically to 1.0 (%v)", over, full)
	}
}
