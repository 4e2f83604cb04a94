package wire_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/voxlink-ai/voxlink/internal/wire"
)

func TestEncodeDecodeAudio_RoundTrip(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 1, -1, 0.123456}
	out, err := wire.DecodeAudio(wire.EncodeAudio(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d: got %v, want %v (round trip must be exact)", i, out[i], in[i])
		}
	}
}

func TestDecodeAudio_InvalidBase64(t *testing.T) {
	if _, err := wire.DecodeAudio("not!!base64"); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestDecodeAudio_TruncatedPayload(t *testing.T) {
	// 3 raw bytes is not a whole float32.
	if _, err := wire.DecodeAudio("AAAA"); err == nil {
		t.Error("expected error for payload not a multiple of 4 bytes")
	}
}

func TestParseClientMessage(t *testing.T) {
	raw := `{"type":"audio_frame","audio":"AAAAAA==","sample_rate":16000}`
	m, err := wire.ParseClientMessage([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.Type != wire.TypeAudioFrame {
		t.Errorf("type: got %q", m.Type)
	}
	if m.SampleRate != 16000 {
		t.Errorf("sample_rate: got %d", m.SampleRate)
	}
}

func TestParseClientMessage_Errors(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"non-json", "{{{"},
		{"missing type", `{"audio":"AAAA"}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := wire.ParseClientMessage([]byte(c.raw)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestTranscribe_OmitsEmptyCorrelationFields(t *testing.T) {
	m := wire.Transcribe([]float32{0}, 16000, "", "")
	raw, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(raw), "session_id") || strings.Contains(string(raw), "traceparent") {
		t.Errorf("empty correlation fields should be omitted: %s", raw)
	}
}

func TestFinal_EmptyTextAndSegmentsPresent(t *testing.T) {
	raw, err := wire.Final("", nil, "en", 12.5, "", false)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["type"] != "final" {
		t.Errorf("type: got %v", m["type"])
	}
	if _, ok := m["text"]; !ok {
		t.Error("text field must be present even when empty")
	}
	if _, ok := m["segments"]; !ok {
		t.Error("segments field must be present even when empty")
	}
}

func TestFinal_BatchAlias(t *testing.T) {
	raw, err := wire.Final("hello", []wire.Segment{{Start: 0, End: 1, Text: "hello"}}, "en", 42, "", true)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	m, err := wire.ParseServerMessage(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.Type != wire.TypeResult {
		t.Errorf("batch reply type: got %q, want result", m.Type)
	}
	if m.Text != "hello" || len(m.Segments) != 1 {
		t.Errorf("unexpected reply: %+v", m)
	}
}

func TestNoise_CarriesSample(t *testing.T) {
	raw, err := wire.Noise("lili lili lili", "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	m, err := wire.ParseServerMessage(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.Type != wire.TypeNoise || m.Sample != "lili lili lili" {
		t.Errorf("unexpected noise message: %+v", m)
	}
	if m.Traceparent == "" {
		t.Error("traceparent should round-trip on replies")
	}
}
