// Package wire defines the JSON message catalog spoken between the voxlink
// client and server, and the base64 float32 PCM payload codec.
//
// All control and audio-bearing messages are JSON text frames over a
// persistent WebSocket. Audio payloads are base64-encoded little-endian
// float32 samples, mono, at the rate given by the message's sample_rate
// field. The maximum message size on either side is [MaxMessageSize].
package wire

import (
	"encoding/json"
	"fmt"
)

// MaxMessageSize is the largest WebSocket message either side will accept.
const MaxMessageSize = 10 * 1024 * 1024 // 10 MiB

// Message type tags. Client → server: audio_frame, vad_end, transcribe.
// Server → client: partial, final, result, noise.
const (
	TypeAudioFrame = "audio_frame"
	TypeVADEnd     = "vad_end"
	TypeTranscribe = "transcribe"

	TypePartial = "partial"
	TypeFinal   = "final"
	TypeResult  = "result"
	TypeNoise   = "noise"
)

// Segment is one timed span of transcribed text. Start and End are seconds
// relative to the audio given to the recognizer.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// ClientMessage is the decoded form of any client → server message.
// Fields not applicable to the message type are zero.
type ClientMessage struct {
	Type        string `json:"type"`
	Audio       string `json:"audio,omitempty"`
	SampleRate  int    `json:"sample_rate,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	Traceparent string `json:"traceparent,omitempty"`
}

// ParseClientMessage decodes a raw JSON frame into a [ClientMessage].
// It returns an error for non-JSON input or a missing type tag; unknown
// types are returned as-is for the caller to reject.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var m ClientMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return ClientMessage{}, fmt.Errorf("wire: decode message: %w", err)
	}
	if m.Type == "" {
		return ClientMessage{}, fmt.Errorf("wire: message has no type field")
	}
	return m, nil
}

// AudioFrame builds an audio_frame message carrying one chunk of float32
// samples at the given rate.
func AudioFrame(samples []float32, sampleRate int) ClientMessage {
	return ClientMessage{
		Type:       TypeAudioFrame,
		Audio:      EncodeAudio(samples),
		SampleRate: sampleRate,
	}
}

// VADEnd builds the end-of-utterance marker for streaming mode.
func VADEnd() ClientMessage {
	return ClientMessage{Type: TypeVADEnd}
}

// Transcribe builds a batch transcription request carrying a complete
// utterance. sessionID and traceparent are optional correlation fields and
// are omitted when empty.
func Transcribe(samples []float32, sampleRate int, sessionID, traceparent string) ClientMessage {
	return ClientMessage{
		Type:        TypeTranscribe,
		Audio:       EncodeAudio(samples),
		SampleRate:  sampleRate,
		SessionID:   sessionID,
		Traceparent: traceparent,
	}
}

// ServerMessage is the decoded form of any server → client reply.
// ProcessingTimeMs mirrors the backend-reported processing time; Sample is
// only set on noise rejections.
type ServerMessage struct {
	Type             string    `json:"type"`
	Text             string    `json:"text"`
	Segments         []Segment `json:"segments,omitempty"`
	Language         string    `json:"language,omitempty"`
	ProcessingTimeMs float64   `json:"processing_time_ms,omitempty"`
	Sample           string    `json:"sample,omitempty"`
	Traceparent      string    `json:"traceparent,omitempty"`
}

// ParseServerMessage decodes a raw JSON frame into a [ServerMessage].
func ParseServerMessage(data []byte) (ServerMessage, error) {
	var m ServerMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return ServerMessage{}, fmt.Errorf("wire: decode message: %w", err)
	}
	if m.Type == "" {
		return ServerMessage{}, fmt.Errorf("wire: message has no type field")
	}
	return m, nil
}

// partialReply is the exact shape of a partial message on the wire. The text
// field is always present, even when empty.
type partialReply struct {
	Type             string  `json:"type"`
	Text             string  `json:"text"`
	ProcessingTimeMs float64 `json:"processing_time_ms"`
	Traceparent      string  `json:"traceparent,omitempty"`
}

// finalReply is the exact shape of final and result messages. Segments is
// always present so clients can range over it without a nil check.
type finalReply struct {
	Type             string    `json:"type"`
	Text             string    `json:"text"`
	Segments         []Segment `json:"segments"`
	Language         string    `json:"language"`
	ProcessingTimeMs float64   `json:"processing_time_ms"`
	Traceparent      string    `json:"traceparent,omitempty"`
}

// noiseReply is the exact shape of a hallucination rejection message.
type noiseReply struct {
	Type        string `json:"type"`
	Sample      string `json:"sample"`
	Traceparent string `json:"traceparent,omitempty"`
}

// Partial marshals a partial transcript reply.
func Partial(text string, processingMs float64, traceparent string) ([]byte, error) {
	return json.Marshal(partialReply{
		Type:             TypePartial,
		Text:             text,
		ProcessingTimeMs: processingMs,
		Traceparent:      traceparent,
	})
}

// Final marshals a committed transcript reply. When batch is true the
// message is tagged "result" (the batch alias); otherwise "final".
func Final(text string, segments []Segment, language string, processingMs float64, traceparent string, batch bool) ([]byte, error) {
	typ := TypeFinal
	if batch {
		typ = TypeResult
	}
	if segments == nil {
		segments = []Segment{}
	}
	return json.Marshal(finalReply{
		Type:             typ,
		Text:             text,
		Segments:         segments,
		Language:         language,
		ProcessingTimeMs: processingMs,
		Traceparent:      traceparent,
	})
}

// Noise marshals a hallucination rejection carrying the rejected sample text.
func Noise(sample, traceparent string) ([]byte, error) {
	return json.Marshal(noiseReply{
		Type:        TypeNoise,
		Sample:      sample,
		Traceparent: traceparent,
	})
}
