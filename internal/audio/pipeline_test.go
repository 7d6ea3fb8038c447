package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pcm16Bytes encodes int16 samples as little-endian bytes.
func pcm16Bytes(samples []int16) []byte {
	buf := new(bytes.Buffer)
	for _, s := range samples {
		binary.Write(buf, binary.LittleEndian, s)
	}
	return buf.Bytes()
}

func TestReaderSourceFraming(t *testing.T) {
	samples := []int16{0, 16384, -16384, 32767, -32768, 100}
	source := NewReaderSource(bytes.NewReader(pcm16Bytes(samples)))

	if err := source.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer source.Close()

	buf := make([]float32, 4)
	n, err := source.ReadFrame(buf)
	if err != nil {
		t.Fatalf("first ReadFrame failed: %v", err)
	}
	if n != 4 {
		t.Fatalf("first frame samples = %d, want 4", n)
	}

	expected := []float32{0, 0.5, -0.5, 32767.0 / 32768.0}
	for i, want := range expected {
		if buf[i] != want {
			t.Errorf("sample %d = %f, want %f", i, buf[i], want)
		}
	}

	// Partial final frame delivered before EOF
	n, err = source.ReadFrame(buf)
	if err != nil {
		t.Fatalf("second ReadFrame failed: %v", err)
	}
	if n != 2 {
		t.Errorf("final partial frame samples = %d, want 2", n)
	}

	if _, err = source.ReadFrame(buf); err != io.EOF {
		t.Errorf("expected io.EOF after stream end, got %v", err)
	}
}

func TestReaderSourceRequiresOpen(t *testing.T) {
	source := NewReaderSource(bytes.NewReader(nil))
	if _, err := source.ReadFrame(make([]float32, 4)); err == nil {
		t.Error("expected error reading before Open")
	}
}

func TestPipelineDeliversFrames(t *testing.T) {
	samples := make([]int16, 1000)
	for i := range samples {
		samples[i] = int16(i)
	}
	source := NewReaderSource(bytes.NewReader(pcm16Bytes(samples)))
	if err := source.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer source.Close()

	pipeline := NewPipeline(testLogger(), 256, 16)
	frames := pipeline.Start(context.Background(), source)

	var total int
	var lastSeq uint64
	for frame := range frames {
		total += len(frame.Samples)
		if frame.Seq < lastSeq {
			t.Errorf("sequence went backwards: %d after %d", frame.Seq, lastSeq)
		}
		lastSeq = frame.Seq
	}

	if total != len(samples) {
		t.Errorf("received %d samples, want %d", total, len(samples))
	}
}

func TestPipelineDropsWhenConsumerBehind(t *testing.T) {
	samples := make([]int16, 256*20) // 20 full frames
	source := NewReaderSource(bytes.NewReader(pcm16Bytes(samples)))
	if err := source.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer source.Close()

	pipeline := NewPipeline(testLogger(), 256, 2)
	frames := pipeline.Start(context.Background(), source)

	// Do not consume until the producer has worked through the stream.
	deadline := time.After(5 * time.Second)
	for {
		stats := pipeline.GetStats()
		if stats.FramesProduced+stats.FramesDropped >= 20 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("producer did not finish in time")
		case <-time.After(5 * time.Millisecond):
		}
	}

	var received int
	for range frames {
		received++
	}

	stats := pipeline.GetStats()
	if stats.FramesDropped == 0 {
		t.Error("expected dropped frames with a stalled consumer")
	}
	if uint64(received) != stats.FramesProduced {
		t.Errorf("received %d frames, stats say %d produced", received, stats.FramesProduced)
	}
	if stats.FramesProduced+stats.FramesDropped != 20 {
		t.Errorf("produced+dropped = %d, want 20", stats.FramesProduced+stats.FramesDropped)
	}
}

func TestPipelineStopsOnCancel(t *testing.T) {
	// A reader that never ends
	source := NewReaderSource(endlessReader{})
	if err := source.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer source.Close()

	ctx, cancel := context.WithCancel(context.Background())
	pipeline := NewPipeline(testLogger(), 256, 2)
	frames := pipeline.Start(ctx, source)

	// Consume one frame to prove it is alive, then cancel.
	select {
	case <-frames:
	case <-time.After(2 * time.Second):
		t.Fatal("no frame produced")
	}

	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-frames:
			if !ok {
				return // channel closed, producer exited
			}
		case <-deadline:
			t.Fatal("channel not closed after cancel")
		}
	}
}

// endlessReader produces zero-valued PCM forever.
type endlessReader struct{}

func (endlessReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}
