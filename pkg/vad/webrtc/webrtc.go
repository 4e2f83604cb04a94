// Package webrtc implements a dependency-free detector modeled on the WebRTC
// VAD's frame classifier: band energy against an adaptive noise floor,
// combined with the zero-crossing rate to separate voiced speech from
// broadband noise.
//
// It is the default backend. It needs no model files and runs in a few
// microseconds per 30 ms frame.
package webrtc

import (
	"fmt"
	"math"

	"github.com/voxlink-ai/voxlink/pkg/audio"
	"github.com/voxlink-ai/voxlink/pkg/vad"
)

const (
	// defaultThreshold maps onto the classifier margin: energy must exceed
	// the noise floor by this factor times the aggressiveness scale.
	defaultThreshold = 0.5

	// noiseAdapt is the exponential smoothing factor for the noise floor
	// estimate during non-speech frames.
	noiseAdapt = 0.05

	// initialNoiseFloor seeds the estimate high enough that the first frames
	// of a stream are not all classified as speech before adaptation.
	initialNoiseFloor = 0.003

	// Voiced speech at 16 kHz sits well under this zero-crossing rate;
	// fricatives and broadband noise sit above it.
	maxSpeechZCR = 0.35
)

// Engine builds webrtc-style detectors.
type Engine struct{}

// NewEngine returns an Engine. It never fails; the backend has no external
// resources.
func NewEngine() *Engine { return &Engine{} }

// NewDetector implements vad.Engine.
func (e *Engine) NewDetector(cfg vad.Config) (vad.Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("webrtc: invalid config: %w", err)
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = defaultThreshold
	}
	return &detector{
		cfg:        cfg,
		noiseFloor: initialNoiseFloor,
	}, nil
}

var _ vad.Engine = (*Engine)(nil)

type detector struct {
	cfg        vad.Config
	noiseFloor float64
	closed     bool
}

// IsSpeech implements vad.Detector.
func (d *detector) IsSpeech(frame []float32) (bool, error) {
	if d.closed {
		return false, fmt.Errorf("webrtc: detector is closed")
	}
	if len(frame) != d.cfg.FrameSamples {
		return false, fmt.Errorf("%w: got %d samples, want %d",
			vad.ErrFrameSize, len(frame), d.cfg.FrameSamples)
	}

	energy := audio.RMS(frame)
	zcr := zeroCrossingRate(frame)

	// A higher threshold demands more margin over the noise floor. The +1
	// keeps the margin above the floor itself even at threshold 0.
	margin := 1 + 4*d.cfg.Threshold
	speech := energy > d.noiseFloor*margin && zcr < maxSpeechZCR

	if !speech {
		// Track the floor only through non-speech frames so sustained speech
		// cannot raise it and mask itself.
		d.noiseFloor = (1-noiseAdapt)*d.noiseFloor + noiseAdapt*energy
		if d.noiseFloor < 1e-6 {
			d.noiseFloor = 1e-6
		}
	}
	return speech, nil
}

// Reset implements vad.Detector.
func (d *detector) Reset() {
	d.noiseFloor = initialNoiseFloor
}

// Close implements vad.Detector.
func (d *detector) Close() error {
	d.closed = true
	return nil
}

// zeroCrossingRate returns the fraction of adjacent sample pairs with a sign
// change.
func zeroCrossingRate(frame []float32) float64 {
	if len(frame) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(frame); i++ {
		if math.Signbit(float64(frame[i])) != math.Signbit(float64(frame[i-1])) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(frame)-1)
}
