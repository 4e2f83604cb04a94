package client_test

import (
	"testing"

	"github.com/voxlink-ai/voxlink/internal/client"
	"github.com/voxlink-ai/voxlink/internal/config"
	"github.com/voxlink-ai/voxlink/pkg/vad/mock"
)

// testGateConfig uses 30 ms frames at 16 kHz: 480 samples per frame,
// 3 trailing silence frames to finalize, 2 to cut.
func testGateConfig() config.GateConfig {
	return config.GateConfig{
		SampleRate:     16000,
		FrameMs:        30,
		MinEnergy:      0.005,
		OnsetThreshold: 3,
		SilenceMs:      90,
		PauseMs:        60,
		MinSpeechMs:    90,
		MaxSpeechMs:    60000,
	}
}

const frameSamples = 480

// speechFrame is a constant-amplitude frame; its RMS equals amp.
func speechFrame(amp float32) []float32 {
	f := make([]float32, frameSamples)
	for i := range f {
		f[i] = amp
	}
	return f
}

func silenceFrame() []float32 {
	return make([]float32, frameSamples)
}

func feed(t *testing.T, g *client.Gate, frame []float32) client.Event {
	t.Helper()
	ev, err := g.Feed(frame)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	return ev
}

func TestGate_OpensAfterOnsetRun(t *testing.T) {
	det := &mock.Detector{Default: true}
	g := client.NewGate(testGateConfig(), det)

	for i := 0; i < 2; i++ {
		ev := feed(t, g, speechFrame(0.1))
		if ev.Send != nil || g.Speaking() {
			t.Fatalf("gate opened after %d frames", i+1)
		}
	}
	ev := feed(t, g, speechFrame(0.1))
	if !g.Speaking() {
		t.Fatal("gate did not open after the onset run")
	}
	if len(ev.Send) != 3*frameSamples {
		t.Errorf("opening Send carries %d samples, want %d", len(ev.Send), 3*frameSamples)
	}
}

func TestGate_NonSpeechResetsOnsetRun(t *testing.T) {
	det := &mock.Detector{Default: true}
	g := client.NewGate(testGateConfig(), det)

	feed(t, g, speechFrame(0.1))
	feed(t, g, speechFrame(0.1))
	feed(t, g, silenceFrame())
	feed(t, g, speechFrame(0.1))
	if ev := feed(t, g, speechFrame(0.1)); ev.Send != nil || g.Speaking() {
		t.Fatal("gate opened on a non-consecutive speech run")
	}
	if ev := feed(t, g, speechFrame(0.1)); !g.Speaking() || len(ev.Send) != 3*frameSamples {
		t.Fatal("gate did not open after a fresh consecutive run")
	}
}

func TestGate_EnergyGateBlocksQuietFrames(t *testing.T) {
	det := &mock.Detector{Default: true}
	g := client.NewGate(testGateConfig(), det)

	for i := 0; i < 10; i++ {
		feed(t, g, speechFrame(0.001))
	}
	if g.Speaking() {
		t.Fatal("gate opened on frames below min_energy despite positive VAD")
	}
}

func TestGate_VADGateBlocksLoudNonSpeech(t *testing.T) {
	det := &mock.Detector{Default: false}
	g := client.NewGate(testGateConfig(), det)

	for i := 0; i < 10; i++ {
		feed(t, g, speechFrame(0.1))
	}
	if g.Speaking() {
		t.Fatal("gate opened on loud frames the VAD classified as non-speech")
	}
}

func TestGate_CutThenFinalOnTrailingSilence(t *testing.T) {
	det := &mock.Detector{Default: true}
	g := client.NewGate(testGateConfig(), det)

	for i := 0; i < 3; i++ {
		feed(t, g, speechFrame(0.1))
	}
	if ev := feed(t, g, silenceFrame()); ev.Cut || ev.Final {
		t.Fatal("boundary fired after one silence frame")
	}
	if ev := feed(t, g, silenceFrame()); !ev.Cut || ev.Final {
		t.Fatal("pause cut did not fire at pause_ms")
	}
	ev := feed(t, g, silenceFrame())
	if !ev.Final {
		t.Fatal("finalization did not fire at silence_ms")
	}

	utt := g.Take()
	if len(utt.Samples) != 6*frameSamples {
		t.Errorf("utterance carries %d samples, want %d", len(utt.Samples), 6*frameSamples)
	}
	if utt.DurationMs != 180 {
		t.Errorf("DurationMs = %v, want 180", utt.DurationMs)
	}
	if !utt.Sendable {
		t.Errorf("utterance not sendable: duration %v avg energy %v", utt.DurationMs, utt.AvgEnergy)
	}
	if g.Speaking() {
		t.Error("gate still open after Take")
	}
}

func TestGate_SpeechAfterCutResetsSilenceRun(t *testing.T) {
	det := &mock.Detector{Default: true}
	g := client.NewGate(testGateConfig(), det)

	for i := 0; i < 3; i++ {
		feed(t, g, speechFrame(0.1))
	}
	feed(t, g, silenceFrame())
	if ev := feed(t, g, silenceFrame()); !ev.Cut {
		t.Fatal("expected a pause cut")
	}
	if ev := feed(t, g, speechFrame(0.1)); ev.Cut || ev.Final || !g.Speaking() {
		t.Fatal("resumed speech did not keep the gate open")
	}
	feed(t, g, silenceFrame())
	if ev := feed(t, g, silenceFrame()); !ev.Cut {
		t.Fatal("second pause cut did not fire after speech resumed")
	}
}

func TestGate_MaxDurationFinalizesOngoingSpeech(t *testing.T) {
	cfg := testGateConfig()
	cfg.MaxSpeechMs = 180
	det := &mock.Detector{Default: true}
	g := client.NewGate(cfg, det)

	for i := 0; i < 5; i++ {
		if ev := feed(t, g, speechFrame(0.1)); ev.Final {
			t.Fatalf("finalized early at frame %d", i+1)
		}
	}
	if ev := feed(t, g, speechFrame(0.1)); !ev.Final {
		t.Fatal("length cap did not finalize the utterance")
	}
}

func TestGate_ThresholdsAreInclusive(t *testing.T) {
	cfg := testGateConfig()
	cfg.MinSpeechMs = 180
	det := &mock.Detector{Default: true}
	g := client.NewGate(cfg, det)

	// Three frames at RMS 0.01 plus three at 0 average exactly to
	// min_energy; six frames are exactly min_speech_ms.
	for i := 0; i < 3; i++ {
		feed(t, g, speechFrame(0.01))
	}
	for i := 0; i < 3; i++ {
		feed(t, g, silenceFrame())
	}
	utt := g.Take()
	if !utt.Sendable {
		t.Errorf("boundary utterance not sendable: duration %v avg energy %v", utt.DurationMs, utt.AvgEnergy)
	}
}

func TestGate_ShortUtteranceNotSendable(t *testing.T) {
	cfg := testGateConfig()
	cfg.MinSpeechMs = 300
	det := &mock.Detector{Default: true}
	g := client.NewGate(cfg, det)

	for i := 0; i < 3; i++ {
		feed(t, g, speechFrame(0.1))
	}
	for i := 0; i < 3; i++ {
		feed(t, g, silenceFrame())
	}
	utt := g.Take()
	if utt.Sendable {
		t.Errorf("180 ms utterance sendable with min_speech_ms=300")
	}
}

func TestGate_ResetDiscardsUtteranceAndDetectorState(t *testing.T) {
	det := &mock.Detector{Default: true}
	g := client.NewGate(testGateConfig(), det)

	for i := 0; i < 3; i++ {
		feed(t, g, speechFrame(0.1))
	}
	g.Reset()
	if g.Speaking() {
		t.Error("gate still open after Reset")
	}
	if det.ResetCallCount == 0 {
		t.Error("detector state not reset")
	}
	if utt := g.Take(); len(utt.Samples) != 0 {
		t.Errorf("Take after Reset returned %d samples", len(utt.Samples))
	}
}

func TestGate_EmptyFrameIgnored(t *testing.T) {
	det := &mock.Detector{Default: true}
	g := client.NewGate(testGateConfig(), det)

	if ev := feed(t, g, nil); ev.Send != nil || ev.Cut || ev.Final {
		t.Fatal("empty frame produced an event")
	}
	if len(det.IsSpeechCalls) != 0 {
		t.Error("empty frame reached the detector")
	}
}
