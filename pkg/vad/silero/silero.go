// Package silero implements a detector backed by the Silero VAD ONNX model
// running through onnxruntime.
//
// The model consumes fixed windows of 512 samples at 16 kHz (256 at 8 kHz)
// and carries recurrent state between windows, so the detector buffers
// incoming frames and re-feeds the state tensor on every inference. Model and
// runtime paths come from SILERO_MODEL_PATH and ONNXRUNTIME_LIB.
package silero

import (
	"fmt"
	"os"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/voxlink-ai/voxlink/pkg/vad"
)

const (
	defaultThreshold = 0.5

	// Recurrent state shape is fixed by the model: [2, 1, 128].
	stateLen = 2 * 1 * 128
)

// windowSamples returns the model's window size for a sample rate, or 0 when
// the rate is unsupported.
func windowSamples(sampleRate int) int {
	switch sampleRate {
	case 16000:
		return 512
	case 8000:
		return 256
	default:
		return 0
	}
}

// Engine builds Silero detectors sharing one model file.
type Engine struct {
	modelPath string
}

// NewEngine validates the model file and prepares the onnxruntime
// environment. The environment is initialized once per process.
func NewEngine(modelPath string) (*Engine, error) {
	if modelPath == "" {
		modelPath = os.Getenv("SILERO_MODEL_PATH")
	}
	if modelPath == "" {
		return nil, fmt.Errorf("silero: no model path; set SILERO_MODEL_PATH")
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("silero: model file: %w", err)
	}
	if err := ensureEnv(); err != nil {
		return nil, fmt.Errorf("silero: initialize onnxruntime: %w", err)
	}
	return &Engine{modelPath: modelPath}, nil
}

// NewDetector implements vad.Engine.
func (e *Engine) NewDetector(cfg vad.Config) (vad.Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("silero: invalid config: %w", err)
	}
	window := windowSamples(cfg.SampleRate)
	if window == 0 {
		return nil, fmt.Errorf("silero: unsupported sample rate %d; want 8000 or 16000", cfg.SampleRate)
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = defaultThreshold
	}

	d := &detector{cfg: cfg, window: window}
	if err := d.buildSession(e.modelPath); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

var _ vad.Engine = (*Engine)(nil)

type detector struct {
	cfg    vad.Config
	window int

	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	state   *ort.Tensor[float32]
	sr      *ort.Tensor[int64]
	output  *ort.Tensor[float32]
	stateN  *ort.Tensor[float32]

	buf      []float32
	speaking bool
	closed   bool
}

// buildSession creates the inference session with pre-bound tensors. The
// tensors are reused across Run calls; only their contents change.
func (d *detector) buildSession(modelPath string) error {
	var err error
	if d.input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(d.window))); err != nil {
		return fmt.Errorf("silero: input tensor: %w", err)
	}
	if d.state, err = ort.NewEmptyTensor[float32](ort.NewShape(2, 1, 128)); err != nil {
		return fmt.Errorf("silero: state tensor: %w", err)
	}
	if d.sr, err = ort.NewTensor(ort.NewShape(1), []int64{int64(d.cfg.SampleRate)}); err != nil {
		return fmt.Errorf("silero: sr tensor: %w", err)
	}
	if d.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1)); err != nil {
		return fmt.Errorf("silero: output tensor: %w", err)
	}
	if d.stateN, err = ort.NewEmptyTensor[float32](ort.NewShape(2, 1, 128)); err != nil {
		return fmt.Errorf("silero: stateN tensor: %w", err)
	}

	d.session, err = ort.NewAdvancedSession(modelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		[]ort.ArbitraryTensor{d.input, d.state, d.sr},
		[]ort.ArbitraryTensor{d.output, d.stateN},
		nil)
	if err != nil {
		return fmt.Errorf("silero: create session: %w", err)
	}
	return nil
}

// IsSpeech implements vad.Detector. Frames smaller than the model window are
// buffered; until a full window is available the previous classification is
// returned.
func (d *detector) IsSpeech(frame []float32) (bool, error) {
	if d.closed {
		return false, fmt.Errorf("silero: detector is closed")
	}
	if len(frame) != d.cfg.FrameSamples {
		return false, fmt.Errorf("%w: got %d samples, want %d",
			vad.ErrFrameSize, len(frame), d.cfg.FrameSamples)
	}

	d.buf = append(d.buf, frame...)
	for len(d.buf) >= d.window {
		prob, err := d.infer(d.buf[:d.window])
		if err != nil {
			return false, err
		}
		d.buf = d.buf[d.window:]
		d.speaking = prob >= float32(d.cfg.Threshold)
	}
	return d.speaking, nil
}

// infer runs one model window and threads the recurrent state forward.
func (d *detector) infer(window []float32) (float32, error) {
	copy(d.input.GetData(), window)
	if err := d.session.Run(); err != nil {
		return 0, fmt.Errorf("silero: inference: %w", err)
	}
	copy(d.state.GetData(), d.stateN.GetData())
	return d.output.GetData()[0], nil
}

// Reset implements vad.Detector. It zeroes the recurrent state and drops
// buffered samples.
func (d *detector) Reset() {
	clear(d.state.GetData())
	d.buf = d.buf[:0]
	d.speaking = false
}

// Close implements vad.Detector.
func (d *detector) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if d.session != nil {
		d.session.Destroy()
	}
	for _, t := range []ort.ArbitraryTensor{d.input, d.state, d.sr, d.output, d.stateN} {
		if t != nil {
			t.Destroy()
		}
	}
	return nil
}
