package audio

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"
)

// Frame is one fixed-size buffer of captured samples.
type Frame struct {
	Samples   []float32
	Seq       uint64
	Timestamp time.Time
}

// PipelineStats represents capture pipeline statistics for monitoring.
type PipelineStats struct {
	FramesProduced uint64 `json:"frames_produced"`
	FramesDropped  uint64 `json:"frames_dropped"`
}

// Pipeline frames a Source into fixed-size buffers and delivers them on a
// bounded channel. Delivery is lossy-tolerant: when the consumer falls
// behind, frames are dropped and counted, never surfaced as errors.
type Pipeline struct {
	logger    *slog.Logger
	frameSize int
	queueSize int

	framesProduced atomic.Uint64
	framesDropped  atomic.Uint64
}

// NewPipeline creates a capture pipeline producing frames of frameSize
// samples through a channel buffered to queueSize.
func NewPipeline(logger *slog.Logger, frameSize, queueSize int) *Pipeline {
	if frameSize <= 0 {
		frameSize = 1024
	}
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Pipeline{
		logger:    logger,
		frameSize: frameSize,
		queueSize: queueSize,
	}
}

// Start launches the producer goroutine reading from an already-open source.
// The returned channel closes when the source ends or the context is
// cancelled. The pipeline does not own the source; the caller opens and
// closes it.
func (p *Pipeline) Start(ctx context.Context, source Source) <-chan Frame {
	out := make(chan Frame, p.queueSize)

	go func() {
		defer close(out)

		var seq uint64
		for {
			if ctx.Err() != nil {
				return
			}

			buf := make([]float32, p.frameSize)
			n, err := source.ReadFrame(buf)

			if n > 0 {
				frame := Frame{
					Samples:   buf[:n],
					Seq:       seq,
					Timestamp: time.Now(),
				}
				seq++

				select {
				case out <- frame:
					p.framesProduced.Add(1)
				case <-ctx.Done():
					return
				default:
					// Consumer is behind; a dropped frame just
					// yields no candidate.
					p.framesDropped.Add(1)
				}
			}

			if err != nil {
				if err != io.EOF {
					p.logger.Warn("Capture read failed",
						slog.String("error", err.Error()),
					)
				} else {
					p.logger.Debug("Capture stream ended",
						slog.Uint64("frames", seq),
					)
				}
				return
			}
		}
	}()

	return out
}

// GetStats returns current pipeline statistics.
func (p *Pipeline) GetStats() PipelineStats {
	return PipelineStats{
		FramesProduced: p.framesProduced.Load(),
		FramesDropped:  p.framesDropped.Load(),
	}
}

// FrameSize returns the configured frame size in samples.
func (p *Pipeline) FrameSize() int {
	return p.frameSize
}
