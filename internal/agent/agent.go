// Package agent produces assistant replies for chat turns. The Ollama agent
// grounds its prompt with semantic matches and can call the catalog and
// vector tools while composing an answer.
package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/chirino/movie-service/internal/config"
	"github.com/chirino/movie-service/internal/model"
	"github.com/chirino/movie-service/internal/semantic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/tools"
)

// ErrDisabled is returned by the "none" agent.
var ErrDisabled = errors.New("agent disabled")

// Agent turns a conversation history and a new user message into a reply.
type Agent interface {
	Reply(ctx context.Context, history []model.Turn, message string) (string, error)
	// Ping reports whether the backing model can be reached.
	Ping(ctx context.Context) error
	Name() string
}

// Disabled is the agent used when no LLM is configured.
type Disabled struct{}

func (Disabled) Reply(context.Context, []model.Turn, string) (string, error) { return "", ErrDisabled }
func (Disabled) Ping(context.Context) error                                  { return ErrDisabled }
func (Disabled) Name() string                                                { return "none" }

// Load builds the agent selected by cfg.AgentType.
func Load(cfg *config.Config, searcher *semantic.Searcher, toolset []tools.Tool) (Agent, error) {
	switch cfg.AgentType {
	case "", "none":
		return Disabled{}, nil
	case "ollama":
		llm, err := ollama.New(
			ollama.WithServerURL(cfg.OllamaHost),
			ollama.WithModel(cfg.OllamaModel),
		)
		if err != nil {
			return nil, fmt.Errorf("ollama agent: %w", err)
		}
		return NewOllama(llm, Options{
			Host:          cfg.OllamaHost,
			Model:         cfg.OllamaModel,
			Temperature:   cfg.AgentTemperature,
			ContextMovies: cfg.AgentContextMovies,
			Timeout:       cfg.AgentTimeout,
		}, searcher, toolset), nil
	default:
		return nil, fmt.Errorf("unknown agent %q; valid: [ollama none]", cfg.AgentType)
	}
}
