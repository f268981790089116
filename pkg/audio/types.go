package audio

import "time"

// Frame is a single delivery from a capture source. Deliveries are variable
// sized and variable timed — the capture layer imposes no cadence. Data must
// be little-endian int16 PCM and a whole multiple of the sample frame size
// (2 bytes per channel).
type Frame struct {
	// PCM audio data as delivered by the source.
	Data []byte

	// SampleRate in Hz (24000 for the live transport).
	SampleRate int

	// Channels: 1 for mono sources, 2 for stereo system-audio taps.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Chunk is a fixed-duration slice of mono s16le PCM, sized exactly for one
// realtime transport send. A chunk is transmitted or dropped as a whole unit,
// never split.
type Chunk struct {
	// Data holds exactly SampleRate × 2 × duration seconds of bytes.
	Data []byte

	// SampleRate in Hz.
	SampleRate int
}

// Duration returns the wall-clock time this chunk represents.
func (c Chunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	samples := len(c.Data) / 2
	return time.Duration(samples) * time.Second / time.Duration(c.SampleRate)
}
