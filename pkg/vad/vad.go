// Package vad defines the Detector interface for voice activity detection
// backends.
//
// A detector classifies fixed-size mono float32 frames as speech or
// non-speech. Detectors are stateful per audio stream (smoothing history,
// model state), so each stream gets its own Detector from an Engine. A single
// Detector must not be shared across goroutines.
//
// Detection is synchronous: IsSpeech returns immediately, making it suitable
// for the capture loop that gates recognizer input.
package vad

import (
	"errors"
	"fmt"
)

// ErrFrameSize is returned by IsSpeech when the supplied frame does not match
// the configured frame size.
var ErrFrameSize = errors.New("vad: frame size mismatch")

// Config holds the parameters for a detector.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// frames passed to IsSpeech.
	SampleRate int

	// FrameSamples is the number of samples per frame. Detectors operate on
	// fixed frame sizes; IsSpeech returns ErrFrameSize otherwise.
	FrameSamples int

	// Threshold is the speech probability above which a frame is classified
	// as speech. Range [0.0, 1.0]. Zero selects the backend default.
	Threshold float64
}

// Validate reports configuration errors before a detector is built.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate %d must be positive", c.SampleRate))
	}
	if c.FrameSamples <= 0 {
		errs = append(errs, fmt.Errorf("frame samples %d must be positive", c.FrameSamples))
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		errs = append(errs, fmt.Errorf("threshold %v outside [0, 1]", c.Threshold))
	}
	return errors.Join(errs...)
}

// Detector classifies audio frames for a single stream.
type Detector interface {
	// IsSpeech classifies one frame. The frame must be mono float32 PCM in
	// [-1, 1] at the configured sample rate and frame size.
	IsSpeech(frame []float32) (bool, error)

	// Reset clears accumulated detection state without closing the detector.
	// Called between utterances so a previous segment cannot bleed into the
	// next.
	Reset()

	// Close releases detector resources. Safe to call more than once.
	Close() error
}

// Engine creates detectors. Implementations must be safe for concurrent use;
// the detectors they return need not be.
type Engine interface {
	NewDetector(cfg Config) (Detector, error)
}
