package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coder/websocket"

	"github.com/voxlink-ai/voxlink/internal/observe"
	"github.com/voxlink-ai/voxlink/internal/wire"
)

// ttsTimeout bounds one synthesis round trip, connect included.
const ttsTimeout = 60 * time.Second

// Player consumes synthesized audio for playback. Play is called once per
// received audio chunk, in order.
type Player interface {
	Play(ctx context.Context, audio []byte) error
}

// ttsRequest is the synthesis request sent to the TTS service.
type ttsRequest struct {
	Type        string `json:"type"`
	Text        string `json:"text"`
	Voice       string `json:"voice,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	Traceparent string `json:"traceparent,omitempty"`
}

// TTSSink speaks agent replies through an external websocket TTS service.
// Each Speak call opens a fresh connection, sends one request, and forwards
// the returned binary audio chunks to the player until the service closes
// the stream.
type TTSSink struct {
	url       string
	voice     string
	sessionID string
	player    Player
}

// NewTTSSink creates a sink targeting url with the given voice.
func NewTTSSink(url, voice string, player Player) *TTSSink {
	return &TTSSink{url: url, voice: voice, player: player}
}

// Speak synthesizes text and plays the result. It returns once the service
// closes the audio stream, the timeout elapses, or playback fails.
func (s *TTSSink) Speak(ctx context.Context, text string) error {
	ctx, cancel := context.WithTimeout(ctx, ttsTimeout)
	defer cancel()

	c, _, err := websocket.Dial(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("tts: dial %s: %w", s.url, err)
	}
	defer c.CloseNow()
	c.SetReadLimit(wire.MaxMessageSize)

	req, err := json.Marshal(ttsRequest{
		Type:        "speak",
		Text:        text,
		Voice:       s.voice,
		SessionID:   s.sessionID,
		Traceparent: observe.Traceparent(ctx),
	})
	if err != nil {
		return fmt.Errorf("tts: encode request: %w", err)
	}
	if err := c.Write(ctx, websocket.MessageText, req); err != nil {
		return fmt.Errorf("tts: send request: %w", err)
	}

	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			// A clean close ends the stream.
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("tts: read audio: %w", err)
		}
		if typ != websocket.MessageBinary {
			continue
		}
		if err := s.player.Play(ctx, data); err != nil {
			return fmt.Errorf("tts: playback: %w", err)
		}
	}
}
