package wire

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeAudio encodes float32 mono samples as base64 little-endian bytes,
// the payload format of audio_frame and transcribe messages.
func EncodeAudio(samples []float32) string {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeAudio decodes a base64 payload back into float32 samples. It returns
// an error for invalid base64 or a byte count that is not a multiple of 4.
func DecodeAudio(payload string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("wire: decode audio payload: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("wire: audio payload length %d is not a multiple of 4", len(raw))
	}
	samples := make([]float32, len(raw)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return samples, nil
}
