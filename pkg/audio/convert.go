package audio

import (
	"encoding/binary"
	"math"
)

// RMS returns the root-mean-square energy of a float32 sample block, in the
// same [0, 1] scale as the samples. Returns 0 for an empty block.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Int16Bytes converts float32 samples in [-1, 1] to 16-bit signed
// little-endian PCM bytes. Values outside the valid range are clamped.
// This is the representation VAD backends operate on.
func Int16Bytes(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int32(s * 32768)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// Float32FromInt16Bytes converts 16-bit signed little-endian PCM bytes back
// to float32 samples in [-1, 1). A trailing odd byte is ignored.
func Float32FromInt16Bytes(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(s) / 32768.0
	}
	return out
}

// SamplesToMs returns the duration in milliseconds of n samples at rate Hz.
// Returns 0 for a non-positive rate.
func SamplesToMs(n, rate int) float64 {
	if rate <= 0 {
		return 0
	}
	return float64(n) / float64(rate) * 1000
}

// MsToSamples returns the number of samples spanning ms milliseconds at rate
// Hz, truncated toward zero.
func MsToSamples(ms float64, rate int) int {
	if rate <= 0 || ms <= 0 {
		return 0
	}
	return int(ms * float64(rate) / 1000)
}

// Resample converts float32 mono samples from srcRate to dstRate using
// deterministic linear interpolation into a fresh slice. When the rates match
// the input is returned unchanged (no copy).
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate == dstRate || srcRate <= 0 || dstRate <= 0 || len(samples) == 0 {
		return samples
	}

	ratio := float64(srcRate) / float64(dstRate)
	outLen := int(float64(len(samples)) / ratio)
	if outLen == 0 {
		outLen = 1
	}

	out := make([]float32, outLen)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}
	return out
}
