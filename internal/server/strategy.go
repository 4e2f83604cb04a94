package server

import (
	"fmt"

	"github.com/voxlink-ai/voxlink/internal/config"
)

// Strategy is the resolved conditioning capability of a streaming session.
// Prompt conditioning feeds the previous accepted transcript to the
// recognizer; context conditioning prepends trailing audio from the previous
// utterance and trims the overlapping segments from the result.
type Strategy struct {
	Name        string
	UsesPrompt  bool
	UsesContext bool
}

// StrategyFor resolves a strategy name from the websocket path. Unknown names
// return an error; the caller closes the connection with a policy violation.
func StrategyFor(name config.Strategy) (Strategy, error) {
	switch name {
	case config.StrategyPrompt:
		return Strategy{Name: string(name), UsesPrompt: true}, nil
	case config.StrategyContext:
		return Strategy{Name: string(name), UsesContext: true}, nil
	case config.StrategyHybrid:
		return Strategy{Name: string(name), UsesPrompt: true, UsesContext: true}, nil
	}
	return Strategy{}, fmt.Errorf("server: unknown strategy %q", name)
}

// batchStrategy is the conditioning applied to batch sessions: prompt only,
// since batch requests carry complete utterances with no audio continuity.
var batchStrategy = Strategy{Name: "batch", UsesPrompt: true}
