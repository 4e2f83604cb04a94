package audio_test

import (
	"encoding/binary"
	"testing"

	"github.com/voxlink-ai/voxlink/pkg/audio"
)

func TestEncodeWAV_Header(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 1}
	wav := audio.EncodeWAV(samples, 16000)

	if len(wav) != 44+len(samples)*2 {
		t.Fatalf("length: got %d, want %d", len(wav), 44+len(samples)*2)
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE magic")
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Errorf("sample rate: got %d", rate)
	}
	if ch := binary.LittleEndian.Uint16(wav[22:24]); ch != 1 {
		t.Errorf("channels: got %d", ch)
	}
	if bits := binary.LittleEndian.Uint16(wav[34:36]); bits != 16 {
		t.Errorf("bits per sample: got %d", bits)
	}
	if size := binary.LittleEndian.Uint32(wav[40:44]); size != uint32(len(samples)*2) {
		t.Errorf("data size: got %d, want %d", size, len(samples)*2)
	}
}

func TestEncodeWAV_PayloadMatchesInt16(t *testing.T) {
	samples := []float32{0.25, -0.25}
	wav := audio.EncodeWAV(samples, 16000)
	want := audio.Int16Bytes(samples)
	got := wav[44:]
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("payload byte %d: got %d, want %d", i, got[i], want[i])
		}
	}
}
