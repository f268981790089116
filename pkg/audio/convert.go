package audio

// DownmixLeft converts interleaved stereo s16le PCM to mono by copying the
// left channel of each stereo frame and discarding the right — a fixed
// stride-4-to-stride-2 copy. This is a deliberate approximation, not a true
// L+R average: the capture taps this feeds carry the same programme on both
// channels, so averaging would only add arithmetic. Input length must be a
// multiple of 4; trailing partial frames are ignored.
func DownmixLeft(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		out[i*2] = pcm[i*4]
		out[i*2+1] = pcm[i*4+1]
	}
	return out
}

// Float32ToPCM16 converts float samples in [-1, 1] to little-endian signed
// 16-bit PCM. Out-of-range input is clamped before scaling rather than
// wrapped, so clipped capture input degrades to full-scale output instead of
// audible artifacts. 1.0 maps to 0x7FFF, -1.0 to -0x8000, 0 to 0.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, f := range samples {
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		v := int32(f * 32768)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		s := int16(v)
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}
