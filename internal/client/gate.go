package client

import (
	"github.com/voxlink-ai/voxlink/internal/config"
	"github.com/voxlink-ai/voxlink/pkg/audio"
	"github.com/voxlink-ai/voxlink/pkg/vad"
)

// Event describes what the speech gate decided for one frame.
type Event struct {
	// Send carries the samples a streaming transport should forward now.
	// Non-nil only while the gate is open; on the opening frame it includes
	// the debounce run that triggered the onset, so word heads survive.
	Send []float32

	// Cut marks a short-pause boundary inside an ongoing utterance.
	Cut bool

	// Final marks the end of the utterance: trailing silence or the length
	// cap. The caller collects the audio with [Gate.Take].
	Final bool
}

// Utterance is the audio accumulated between gate open and finalization.
type Utterance struct {
	Samples    []float32
	DurationMs float64
	AvgEnergy  float64

	// Sendable reports whether the utterance passed the minimum duration and
	// energy checks. Both thresholds are inclusive.
	Sendable bool
}

// Gate is the dual-gate utterance segmenter: a frame counts as speech only
// when the VAD detector fires and the frame's RMS energy reaches min_energy.
// Opening requires a debounce run of consecutive speech frames; closing is
// driven by trailing silence or the utterance length cap.
//
// The gate is a pure function of the frame stream plus the detector verdicts
// and is owned by a single goroutine.
type Gate struct {
	cfg config.GateConfig
	det vad.Detector

	speaking     bool
	onsetCount   int
	silenceCount int

	onsetBuf    []float32
	onsetEnergy float64
	onsetFrames int

	samples    []float32
	energySum  float64
	frameCount int
}

// NewGate creates a gate over the given detector. The gate takes ownership of
// the detector; [Gate.Close] releases it.
func NewGate(cfg config.GateConfig, det vad.Detector) *Gate {
	return &Gate{cfg: cfg, det: det}
}

// Speaking reports whether the gate is currently inside an utterance.
func (g *Gate) Speaking() bool { return g.speaking }

// Feed classifies one frame and advances the utterance state machine. Empty
// frames are filtered silently.
func (g *Gate) Feed(frame []float32) (Event, error) {
	if len(frame) == 0 {
		return Event{}, nil
	}
	energy := audio.RMS(frame)
	vadSpeech, err := g.det.IsSpeech(frame)
	if err != nil {
		return Event{}, err
	}
	speech := vadSpeech && energy >= g.cfg.MinEnergy

	if !g.speaking {
		if !speech {
			// Any non-speech frame resets the debounce run.
			g.onsetCount = 0
			g.onsetBuf = g.onsetBuf[:0]
			g.onsetEnergy = 0
			g.onsetFrames = 0
			return Event{}, nil
		}
		g.onsetCount++
		g.onsetBuf = append(g.onsetBuf, frame...)
		g.onsetEnergy += energy
		g.onsetFrames++
		if g.onsetCount < g.cfg.OnsetThreshold {
			return Event{}, nil
		}

		// Gate opens; the debounce run becomes the head of the utterance.
		g.speaking = true
		g.silenceCount = 0
		g.samples = append(g.samples, g.onsetBuf...)
		g.energySum = g.onsetEnergy
		g.frameCount = g.onsetFrames
		send := append([]float32(nil), g.onsetBuf...)
		g.onsetBuf = g.onsetBuf[:0]
		g.onsetCount, g.onsetEnergy, g.onsetFrames = 0, 0, 0
		return Event{Send: send}, nil
	}

	// Every frame inside an utterance is kept, speech or not, so word tails
	// survive the classifier flickering off.
	g.samples = append(g.samples, frame...)
	g.energySum += energy
	g.frameCount++
	if speech {
		g.silenceCount = 0
	} else {
		g.silenceCount++
	}

	ev := Event{Send: frame}
	switch {
	case g.silenceCount >= g.silenceChunks():
		ev.Final = true
	case g.durationMs() >= float64(g.cfg.MaxSpeechMs):
		ev.Final = true
	case g.silenceCount == g.pauseChunks():
		ev.Cut = true
	}
	return ev, nil
}

// Take returns the accumulated utterance and resets the gate for the next
// one. The detector state is reset as well.
func (g *Gate) Take() Utterance {
	u := Utterance{
		Samples:    g.samples,
		DurationMs: g.durationMs(),
	}
	if g.frameCount > 0 {
		u.AvgEnergy = g.energySum / float64(g.frameCount)
	}
	u.Sendable = u.DurationMs >= float64(g.cfg.MinSpeechMs) && u.AvgEnergy >= g.cfg.MinEnergy
	g.reset()
	return u
}

// Reset discards any in-progress utterance, e.g. when entering a cooldown
// window.
func (g *Gate) Reset() {
	g.reset()
}

// SetConfig replaces the gate parameters, discarding any in-progress
// utterance. Used for configuration hot reload.
func (g *Gate) SetConfig(cfg config.GateConfig) {
	g.cfg = cfg
	g.reset()
}

// Close releases the detector.
func (g *Gate) Close() error {
	return g.det.Close()
}

func (g *Gate) reset() {
	g.speaking = false
	g.onsetCount = 0
	g.silenceCount = 0
	g.onsetBuf = g.onsetBuf[:0]
	g.onsetEnergy = 0
	g.onsetFrames = 0
	g.samples = nil
	g.energySum = 0
	g.frameCount = 0
	g.det.Reset()
}

func (g *Gate) durationMs() float64 {
	return audio.SamplesToMs(len(g.samples), g.cfg.SampleRate)
}

func (g *Gate) silenceChunks() int {
	if g.cfg.FrameMs <= 0 {
		return 1
	}
	return g.cfg.SilenceMs / g.cfg.FrameMs
}

func (g *Gate) pauseChunks() int {
	if g.cfg.FrameMs <= 0 {
		return 1
	}
	return g.cfg.PauseMs / g.cfg.FrameMs
}
