package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"
)

// Agent turns an accepted transcript into a reply. An empty reply with a nil
// error means the agent chose not to respond.
type Agent interface {
	Reply(ctx context.Context, transcript string) (string, error)
}

// HTTPAgent posts each transcript to an external conversation service.
//
// The request body is {"text": ...}; the response is either
// {"reply": ...} or a plain text body.
type HTTPAgent struct {
	url    string
	client *http.Client
}

// NewHTTPAgent creates an agent targeting url. Request deadlines come from
// the caller's context.
func NewHTTPAgent(url string) *HTTPAgent {
	return &HTTPAgent{url: url, client: &http.Client{}}
}

// Reply implements [Agent].
func (a *HTTPAgent) Reply(ctx context.Context, transcript string) (string, error) {
	body, err := json.Marshal(struct {
		Text string `json:"text"`
	}{Text: transcript})
	if err != nil {
		return "", fmt.Errorf("agent: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("agent: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("agent: request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("agent: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("agent: unexpected status %d", resp.StatusCode)
	}

	var reply struct {
		Reply string `json:"reply"`
	}
	if err := json.Unmarshal(raw, &reply); err == nil && reply.Reply != "" {
		return reply.Reply, nil
	}
	return strings.TrimSpace(string(raw)), nil
}

// LLMAgent routes transcripts to a chat model through any-llm-go. Each
// transcript is an independent single-turn completion under the configured
// system prompt.
type LLMAgent struct {
	backend      anyllmlib.Provider
	model        string
	systemPrompt string
}

// NewLLMAgent creates an agent for the given provider id ("openai",
// "anthropic", or "ollama") and model. apiKey may be empty for providers that
// read their key from the environment or need none.
func NewLLMAgent(provider, model, apiKey, systemPrompt string) (*LLMAgent, error) {
	if model == "" {
		return nil, fmt.Errorf("agent: llm model must not be empty")
	}
	var opts []anyllmlib.Option
	if apiKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(apiKey))
	}

	var (
		backend anyllmlib.Provider
		err     error
	)
	switch strings.ToLower(provider) {
	case "openai":
		backend, err = anyllmoai.New(opts...)
	case "anthropic":
		backend, err = anthropic.New(opts...)
	case "ollama":
		backend, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("agent: unsupported llm provider %q", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("agent: create %q backend: %w", provider, err)
	}

	return &LLMAgent{backend: backend, model: model, systemPrompt: systemPrompt}, nil
}

// Reply implements [Agent].
func (a *LLMAgent) Reply(ctx context.Context, transcript string) (string, error) {
	var messages []anyllmlib.Message
	if a.systemPrompt != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: a.systemPrompt,
		})
	}
	messages = append(messages, anyllmlib.Message{
		Role:    anyllmlib.RoleUser,
		Content: transcript,
	})

	resp, err := a.backend.Completion(ctx, anyllmlib.CompletionParams{
		Model:    a.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("agent: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("agent: empty choices in response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.ContentString()), nil
}
