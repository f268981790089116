package audio

import (
	"fmt"
	"sync"
	"time"
)

// Default chunking parameters for the live transport.
const (
	DefaultSampleRate    = 24000
	DefaultChunkDuration = 100 * time.Millisecond
	DefaultRetention     = 1 * time.Second
)

// ChunkerConfig contains configuration for the chunking process.
type ChunkerConfig struct {
	// SampleRate in Hz. Defaults to 24000 if zero.
	SampleRate int

	// Channels is the channel count of ingested frames, 1 or 2.
	// Stereo input is downmixed to mono before buffering. Defaults to 1.
	Channels int

	// ChunkDuration is the wall-clock length of each emitted chunk.
	// Defaults to 100ms if zero.
	ChunkDuration time.Duration

	// Retention caps the buffered backlog. When ingestion outpaces
	// consumption the oldest bytes are dropped first, so the buffer always
	// holds the most recent Retention of audio. Defaults to 1s if zero.
	Retention time.Duration
}

// Chunker accumulates raw PCM from a capture source and slices fixed-size
// mono chunks for transmission, tolerating bursty delivery from the
// underlying capture mechanism.
//
// Chunks are contiguous, non-overlapping, and exactly the configured size —
// never short, never merged — and are emitted in strict arrival order. Under
// sustained backpressure the chunker prefers recent audio over a full
// history: stale audio is of no use to a live assistant.
//
// All methods are safe for concurrent use. The emit callback is invoked
// synchronously from Ingest and must not call back into the Chunker.
type Chunker struct {
	sampleRate int
	channels   int
	chunkBytes int
	capBytes   int
	emit       func(Chunk)

	mu      sync.Mutex
	buf     []byte
	paused  bool
	emitted uint64
	dropped uint64
}

// NewChunker creates a Chunker that delivers chunks to emit. Returns an error
// for unusable configuration rather than guessing at intent.
func NewChunker(cfg ChunkerConfig, emit func(Chunk)) (*Chunker, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	if cfg.ChunkDuration == 0 {
		cfg.ChunkDuration = DefaultChunkDuration
	}
	if cfg.Retention == 0 {
		cfg.Retention = DefaultRetention
	}

	if cfg.SampleRate < 0 {
		return nil, fmt.Errorf("chunker: sample rate %d is invalid", cfg.SampleRate)
	}
	if cfg.Channels != 1 && cfg.Channels != 2 {
		return nil, fmt.Errorf("chunker: channel count %d is invalid (want 1 or 2)", cfg.Channels)
	}
	if emit == nil {
		return nil, fmt.Errorf("chunker: emit callback is required")
	}

	chunkBytes := int(int64(cfg.SampleRate) * 2 * int64(cfg.ChunkDuration) / int64(time.Second))
	if chunkBytes < 2 {
		return nil, fmt.Errorf("chunker: chunk duration %v too short for %d Hz", cfg.ChunkDuration, cfg.SampleRate)
	}
	capBytes := int(int64(cfg.SampleRate) * 2 * int64(cfg.Retention) / int64(time.Second))
	if capBytes < chunkBytes {
		return nil, fmt.Errorf("chunker: retention %v shorter than chunk duration %v", cfg.Retention, cfg.ChunkDuration)
	}

	return &Chunker{
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		chunkBytes: chunkBytes,
		capBytes:   capBytes,
		emit:       emit,
		buf:        make([]byte, 0, capBytes),
	}, nil
}

// Ingest appends raw PCM bytes to the capture buffer and emits any complete
// chunks. A length that is not a whole multiple of the sample frame size
// (2 bytes per channel) indicates a capture-layer bug and is rejected.
func (c *Chunker) Ingest(pcm []byte) error {
	frameSize := 2 * c.channels
	if len(pcm)%frameSize != 0 {
		return fmt.Errorf("chunker: %d bytes is not a multiple of the %d-byte sample frame", len(pcm), frameSize)
	}
	if len(pcm) == 0 {
		return nil
	}
	if c.channels == 2 {
		pcm = DownmixLeft(pcm)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.buf = append(c.buf, pcm...)
	c.drainLocked()
	c.truncateLocked()
	return nil
}

// IngestFloat32 converts float samples in [-1, 1] to s16le PCM and ingests
// them. Sample count must be a whole multiple of the channel count.
func (c *Chunker) IngestFloat32(samples []float32) error {
	if len(samples)%c.channels != 0 {
		return fmt.Errorf("chunker: %d samples is not a multiple of %d channels", len(samples), c.channels)
	}
	return c.Ingest(Float32ToPCM16(samples))
}

// Pause suspends chunk extraction. Ingested audio keeps accumulating, capped
// at the retention window with the oldest bytes dropped first.
func (c *Chunker) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
}

// Resume re-enables chunk extraction and immediately drains any complete
// chunks accumulated while paused.
func (c *Chunker) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
	c.drainLocked()
	c.truncateLocked()
}

// drainLocked emits complete chunks from the front of the buffer (FIFO)
// until less than one chunk remains. Must be called with c.mu held.
func (c *Chunker) drainLocked() {
	if c.paused {
		return
	}
	for len(c.buf) >= c.chunkBytes {
		data := make([]byte, c.chunkBytes)
		copy(data, c.buf[:c.chunkBytes])
		c.buf = c.buf[:copy(c.buf, c.buf[c.chunkBytes:])]
		c.emitted++
		c.emit(Chunk{Data: data, SampleRate: c.sampleRate})
	}
}

// truncateLocked enforces the retention cap, keeping only the most recent
// cap-sized window. Must be called with c.mu held.
func (c *Chunker) truncateLocked() {
	if len(c.buf) <= c.capBytes {
		return
	}
	drop := len(c.buf) - c.capBytes
	c.dropped += uint64(drop)
	c.buf = c.buf[:copy(c.buf, c.buf[drop:])]
}

// ChunkBytes returns the exact byte length of every emitted chunk.
func (c *Chunker) ChunkBytes() int { return c.chunkBytes }

// Buffered returns the current backlog in bytes.
func (c *Chunker) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

// ChunksEmitted returns the total number of chunks emitted.
func (c *Chunker) ChunksEmitted() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.emitted
}

// BytesDropped returns the total bytes discarded by retention-cap truncation.
func (c *Chunker) BytesDropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}
