package audio_test

import (
	"math"
	"testing"

	"github.com/voxlink-ai/voxlink/pkg/audio"
)

func TestRMS_Empty(t *testing.T) {
	if got := audio.RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
}

func TestRMS_ConstantSignal(t *testing.T) {
	samples := make([]float32, 480)
	for i := range samples {
		samples[i] = 0.5
	}
	got := audio.RMS(samples)
	if math.Abs(got-0.5) > 1e-6 {
		t.Errorf("RMS = %v, want 0.5", got)
	}
}

func TestRMS_Sine(t *testing.T) {
	// RMS of a full-scale sine is 1/sqrt(2).
	samples := make([]float32, 16000)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 16000))
	}
	got := audio.RMS(samples)
	want := 1 / math.Sqrt2
	if math.Abs(got-want) > 1e-3 {
		t.Errorf("RMS = %v, want %v", got, want)
	}
}

func TestInt16Bytes_RoundTrip(t *testing.T) {
	in := []float32{0, 0.25, -0.25, 0.5, -0.5}
	back := audio.Float32FromInt16Bytes(audio.Int16Bytes(in))
	if len(back) != len(in) {
		t.Fatalf("length mismatch: got %d, want %d", len(back), len(in))
	}
	for i := range in {
		if math.Abs(float64(back[i]-in[i])) > 1.0/32768 {
			t.Errorf("sample %d: got %v, want %v", i, back[i], in[i])
		}
	}
}

func TestInt16Bytes_Clamping(t *testing.T) {
	out := audio.Int16Bytes([]float32{1.5, -1.5})
	samples := audio.Float32FromInt16Bytes(out)
	if samples[0] < 0.99 {
		t.Errorf("positive overflow not clamped to full scale: %v", samples[0])
	}
	if samples[1] > -0.99 {
		t.Errorf("negative overflow not clamped to full scale: %v", samples[1])
	}
}

func TestResample_SameRate(t *testing.T) {
	in := []float32{1, 2, 3}
	out := audio.Resample(in, 16000, 16000)
	if len(out) != 3 {
		t.Fatalf("expected passthrough, got %d samples", len(out))
	}
}

func TestResample_Upsample(t *testing.T) {
	in := []float32{0, 1}
	out := audio.Resample(in, 8000, 16000)
	if len(out) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(out))
	}
	if out[0] != 0 {
		t.Errorf("first sample: got %v, want 0", out[0])
	}
	if math.Abs(float64(out[1]-0.5)) > 1e-6 {
		t.Errorf("interpolated sample: got %v, want 0.5", out[1])
	}
}

func TestResample_Downsample(t *testing.T) {
	in := make([]float32, 480) // 30ms at 16kHz
	for i := range in {
		in[i] = float32(i)
	}
	out := audio.Resample(in, 48000, 16000)
	if len(out) != 160 {
		t.Fatalf("expected 160 samples, got %d", len(out))
	}
	if out[0] != 0 {
		t.Errorf("first sample: got %v, want 0", out[0])
	}
}

func TestResample_DoesNotMutateInput(t *testing.T) {
	in := []float32{0, 1, 2, 3}
	orig := append([]float32(nil), in...)
	audio.Resample(in, 8000, 16000)
	for i := range in {
		if in[i] != orig[i] {
			t.Fatalf("input mutated at %d", i)
		}
	}
}

func TestSamplesToMs(t *testing.T) {
	cases := []struct {
		samples, rate int
		want          float64
	}{
		{16000, 16000, 1000},
		{8000, 16000, 500},
		{480, 16000, 30},
	}
	for _, c := range cases {
		if got := audio.SamplesToMs(c.samples, c.rate); got != c.want {
			t.Errorf("SamplesToMs(%d, %d) = %v, want %v", c.samples, c.rate, got, c.want)
		}
	}
}

func TestMsToSamples(t *testing.T) {
	cases := []struct {
		ms   float64
		rate int
		want int
	}{
		{1000, 16000, 16000},
		{500, 16000, 8000},
		{30, 16000, 480},
	}
	for _, c := range cases {
		if got := audio.MsToSamples(c.ms, c.rate); got != c.want {
			t.Errorf("MsToSamples(%v, %d) = %d, want %d", c.ms, c.rate, got, c.want)
		}
	}
}
