package modem

import (
	"fmt"
	"sync"
	"time"
)

// Engine decodes data-over-sound payloads from 8-bit signed PCM. An engine
// may keep internal state across buffers (a payload usually spans many of
// them) and returns at most one decoded message per buffer.
type Engine interface {
	// Decode consumes one buffer of PCM samples and reports a decoded
	// message when one completes within it.
	Decode(pcm []int8) (string, bool)
	// Reset discards any partially decoded state.
	Reset()
}

// Processor adapts normalized float32 capture audio to an acoustic modem
// engine. It owns the float-to-int8 conversion, gates access behind
// initialization, and tracks decode statistics.
type Processor struct {
	engine Engine

	isInitialized bool

	// Statistics
	buffersProcessed uint64
	candidatesFound  uint64
	lastProcessed    time.Time

	mu sync.Mutex
}

// ProcessorStats represents codec adapter statistics for monitoring.
type ProcessorStats struct {
	IsInitialized    bool      `json:"is_initialized"`
	BuffersProcessed uint64    `json:"buffers_processed"`
	CandidatesFound  uint64    `json:"candidates_found"`
	LastProcessed    time.Time `json:"last_processed"`
}

// NewProcessor creates a codec adapter around the given engine.
func NewProcessor(engine Engine) (*Processor, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine must not be nil")
	}
	return &Processor{engine: engine}, nil
}

// Initialize prepares the engine for decoding. It must be called before
// Decode and may be called again to restart a fresh decode session.
func (p *Processor) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.engine.Reset()
	p.isInitialized = true
	p.lastProcessed = time.Now()

	return nil
}

// Decode converts one buffer of normalized samples to the engine's input
// domain and feeds it through. It returns zero or one candidate message per
// buffer. A buffer that yields nothing is not an error.
func (p *Processor) Decode(samples []float32) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isInitialized {
		return "", false, fmt.Errorf("processor not initialized")
	}

	pcm := ConvertPCM8(samples)

	msg, ok := p.engine.Decode(pcm)

	p.buffersProcessed++
	if ok {
		p.candidatesFound++
	}
	p.lastProcessed = time.Now()

	return msg, ok, nil
}

// GetStats returns current adapter statistics.
func (p *Processor) GetStats() ProcessorStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return ProcessorStats{
		IsInitialized:    p.isInitialized,
		BuffersProcessed: p.buffersProcessed,
		CandidatesFound:  p.candidatesFound,
		LastProcessed:    p.lastProcessed,
	}
}

// IsInitialized reports whether the processor is ready to decode.
func (p *Processor) IsInitialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isInitialized
}

// ConvertPCM8 converts normalized floating-point amplitudes in [-1.0, 1.0]
// to the engine's 8-bit signed input domain. Values are scaled by 128 and
// clamped to [-128, 127]: plain truncation wraps around at amplitude
// extremes and corrupts decoding.
func ConvertPCM8(samples []float32) []int8 {
	pcm := make([]int8, len(samples))
	for i, s := range samples {
		v := int32(s * 128)
		if v > 127 {
			v = 127
		} else if v < -128 {
			v = -128
		}
		pcm[i] = int8(v)
	}
	return pcm
}
