package modem

import (
	"math"
)

// Tone alphabet layout: 16 nibble tones followed by the start and end
// markers, all spaced FreqStep apart above BaseFreq.
const (
	nibbleTones = 16
	startTone   = 16
	endTone     = 17
	toneCount   = 18
)

// ToneConfig holds the FSK parameters shared by encoder and decoder. Both
// sides must agree on every field for decoding to succeed.
type ToneConfig struct {
	SampleRate    int     // samples per second
	SymbolSamples int     // samples per tone symbol
	BaseFreq      float64 // frequency of nibble 0, Hz
	FreqStep      float64 // spacing between adjacent tones, Hz
	Amplitude     float64 // encoder output amplitude, 0..1
	Threshold     float64 // minimum normalized tone magnitude to accept
	MaxMessageLen int     // decoded messages longer than this are discarded
}

// DefaultToneConfig returns the parameters used by the service. The tone
// spacing must stay at or above SampleRate/SymbolSamples so Goertzel bins
// remain separable.
func DefaultToneConfig(sampleRate int) ToneConfig {
	return ToneConfig{
		SampleRate:    sampleRate,
		SymbolSamples: sampleRate / 100, // 10ms symbols
		BaseFreq:      2000,
		FreqStep:      200,
		Amplitude:     0.5,
		Threshold:     0.15,
		MaxMessageLen: 128,
	}
}

// ToneEngine is a 16-ary FSK reference engine: each byte is sent as two
// nibble tones bracketed by start and end markers. It is deliberately
// simple; deployments needing robustness against room acoustics swap in a
// hardened data-over-sound library behind the Engine interface.
// TODO: evaluate replacing the reference engine with a ggwave binding.
type ToneEngine struct {
	cfg ToneConfig

	// Decoder state
	pending   []int8 // samples awaiting a full symbol window
	inMessage bool
	nibbles   []byte
}

// NewToneEngine creates an engine with the given parameters.
func NewToneEngine(cfg ToneConfig) *ToneEngine {
	return &ToneEngine{cfg: cfg}
}

// Reset discards any partially decoded message and buffered samples.
func (e *ToneEngine) Reset() {
	e.pending = e.pending[:0]
	e.inMessage = false
	e.nibbles = e.nibbles[:0]
}

// Decode consumes one buffer of PCM samples. Symbol windows are classified
// as silence, a nibble tone, or a marker; a completed start..end sequence
// with an even nibble count yields a message. Anything garbled simply
// yields no candidate.
func (e *ToneEngine) Decode(pcm []int8) (string, bool) {
	e.pending = append(e.pending, pcm...)

	n := e.cfg.SymbolSamples
	for len(e.pending) >= n {
		window := e.pending[:n]
		e.pending = e.pending[n:]

		tone, ok := e.classify(window)
		switch {
		case !ok:
			// Silence or noise. Mid-message it means the signal was
			// lost; discard the partial message.
			if e.inMessage {
				e.inMessage = false
				e.nibbles = e.nibbles[:0]
			}

		case tone == startTone:
			e.inMessage = true
			e.nibbles = e.nibbles[:0]

		case tone == endTone:
			if !e.inMessage {
				continue
			}
			e.inMessage = false
			msg, valid := assembleMessage(e.nibbles)
			e.nibbles = e.nibbles[:0]
			if valid {
				return msg, true
			}

		default:
			if !e.inMessage {
				continue // tone outside a message, ignore
			}
			if len(e.nibbles) >= e.cfg.MaxMessageLen*2 {
				// Runaway message, treat as garbage
				e.inMessage = false
				e.nibbles = e.nibbles[:0]
				continue
			}
			e.nibbles = append(e.nibbles, byte(tone))
		}
	}

	return "", false
}

// Encode renders a text payload as normalized float32 audio: a start
// marker, two nibble tones per byte (high nibble first), and an end marker.
func (e *ToneEngine) Encode(text string) []float32 {
	symbols := make([]int, 0, len(text)*2+2)
	symbols = append(symbols, startTone)
	for i := 0; i < len(text); i++ {
		b := text[i]
		symbols = append(symbols, int(b>>4), int(b&0x0f))
	}
	symbols = append(symbols, endTone)

	out := make([]float32, 0, len(symbols)*e.cfg.SymbolSamples)
	for _, sym := range symbols {
		out = e.appendTone(out, e.toneFreq(sym))
	}
	return out
}

// EncodeSilence renders a run of silent symbol windows, useful for padding
// between repeated broadcasts.
func (e *ToneEngine) EncodeSilence(symbols int) []float32 {
	return make([]float32, symbols*e.cfg.SymbolSamples)
}

// classify runs Goertzel detection over one symbol window and returns the
// strongest tone index, or ok=false when no tone clears the threshold.
func (e *ToneEngine) classify(window []int8) (int, bool) {
	best := -1
	bestMag := 0.0
	for tone := 0; tone < toneCount; tone++ {
		mag := goertzelMagnitude(window, e.toneFreq(tone), e.cfg.SampleRate)
		if mag > bestMag {
			bestMag = mag
			best = tone
		}
	}

	if best < 0 || bestMag < e.cfg.Threshold {
		return 0, false
	}
	return best, true
}

// toneFreq returns the carrier frequency for a tone index.
func (e *ToneEngine) toneFreq(tone int) float64 {
	return e.cfg.BaseFreq + float64(tone)*e.cfg.FreqStep
}

// appendTone appends one symbol window of a pure tone.
func (e *ToneEngine) appendTone(out []float32, freq float64) []float32 {
	step := 2 * math.Pi * freq / float64(e.cfg.SampleRate)
	for i := 0; i < e.cfg.SymbolSamples; i++ {
		out = append(out, float32(e.cfg.Amplitude*math.Sin(step*float64(i))))
	}
	return out
}

// assembleMessage packs collected nibbles into bytes. An odd nibble count
// means a corrupted message.
func assembleMessage(nibbles []byte) (string, bool) {
	if len(nibbles) == 0 || len(nibbles)%2 != 0 {
		return "", false
	}
	buf := make([]byte, len(nibbles)/2)
	for i := range buf {
		buf[i] = nibbles[2*i]<<4 | nibbles[2*i+1]
	}
	return string(buf), true
}

// goertzelMagnitude computes the normalized Goertzel magnitude of a target
// frequency within a window. The result is scaled so a full-amplitude pure
// tone at the target frequency approaches 1.0.
func goertzelMagnitude(window []int8, freq float64, sampleRate int) float64 {
	n := len(window)
	if n == 0 {
		return 0
	}

	k := math.Round(float64(n) * freq / float64(sampleRate))
	omega := 2 * math.Pi * k / float64(n)
	coeff := 2 * math.Cos(omega)

	var s0, s1, s2 float64
	for _, sample := range window {
		s0 = float64(sample)/128.0 + coeff*s1 - s2
		s2 = s1
		s1 = s0
	}

	power := s1*s1 + s2*s2 - coeff*s1*s2
	if power < 0 {
		power = 0
	}

	// A pure tone of amplitude A yields magnitude ~A*n/2.
	return math.Sqrt(power) / (float64(n) / 2)
}
