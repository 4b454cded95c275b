package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/movie-service/internal/model"
	"github.com/chirino/movie-service/internal/semantic"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"
)

const maxToolRounds = 6

const systemPrompt = `You are a helpful movie assistant.
Answer questions about movies using only the catalog context and tool results you are given.
Use query_sql_db for concrete filters (genre, cast, director, title, year) and query_vector_db for themes or plot descriptions.
Recommend 3 to 5 titles as "Title (Year)" with the rating when known and one line on why each fits.
If nothing matches, say so and ask a focused follow-up question. Never invent movies.`

// Options configures the Ollama agent.
type Options struct {
	Host          string
	Model         string
	Temperature   float64
	ContextMovies int
	Timeout       time.Duration
}

// Ollama is an Agent backed by a langchaingo chat model.
type Ollama struct {
	llm      llms.Model
	opts     Options
	searcher *semantic.Searcher
	tools    map[string]tools.Tool
	defs     []llms.Tool
	client   *http.Client
}

// NewOllama returns an agent that talks to llm. searcher may be nil, in which
// case prompts carry no grounding context.
func NewOllama(llm llms.Model, opts Options, searcher *semantic.Searcher, toolset []tools.Tool) *Ollama {
	a := &Ollama{
		llm:      llm,
		opts:     opts,
		searcher: searcher,
		tools:    make(map[string]tools.Tool, len(toolset)),
		client:   &http.Client{Timeout: 5 * time.Second},
	}
	for _, t := range toolset {
		a.tools[t.Name()] = t
		var params any = map[string]any{"type": "object", "properties": map[string]any{}}
		if ps, ok := t.(ParameterSchema); ok {
			params = ps.Parameters()
		}
		a.defs = append(a.defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  params,
			},
		})
	}
	return a
}

func (a *Ollama) Name() string { return "ollama" }

// Ping checks that the Ollama server answers its model listing endpoint.
func (a *Ollama) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(a.opts.Host, "/")+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned %s", resp.Status)
	}
	return nil
}

func (a *Ollama) Reply(ctx context.Context, history []model.Turn, message string) (string, error) {
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	msgs := make([]llms.MessageContent, 0, len(history)+2)
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, a.systemText(ctx, message)))
	for _, t := range history {
		role := llms.ChatMessageTypeHuman
		if t.Role == model.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		msgs = append(msgs, llms.TextParts(role, t.Content))
	}
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, message))

	callOpts := []llms.CallOption{llms.WithTemperature(a.opts.Temperature)}
	if len(a.defs) > 0 {
		callOpts = append(callOpts, llms.WithTools(a.defs))
	}

	for round := 0; round < maxToolRounds; round++ {
		resp, err := a.llm.GenerateContent(ctx, msgs, callOpts...)
		if err != nil {
			return "", fmt.Errorf("generate: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("model returned no choices")
		}
		choice := resp.Choices[0]
		if len(choice.ToolCalls) == 0 {
			return strings.TrimSpace(choice.Content), nil
		}

		call := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		for _, tc := range choice.ToolCalls {
			call.Parts = append(call.Parts, tc)
		}
		msgs = append(msgs, call)
		for _, tc := range choice.ToolCalls {
			msgs = append(msgs, llms.MessageContent{
				Role:  llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{a.runTool(ctx, tc)},
			})
		}
	}
	return "", fmt.Errorf("no answer after %d tool rounds", maxToolRounds)
}

// runTool executes one tool call. Failures are reported back to the model
// as the tool's output so it can recover.
func (a *Ollama) runTool(ctx context.Context, tc llms.ToolCall) llms.ToolCallResponse {
	resp := llms.ToolCallResponse{ToolCallID: tc.ID}
	if tc.FunctionCall == nil {
		resp.Content = "Tool error: missing function call"
		return resp
	}
	resp.Name = tc.FunctionCall.Name
	tool, ok := a.tools[tc.FunctionCall.Name]
	if !ok {
		resp.Content = fmt.Sprintf("Tool error: unknown tool %q", tc.FunctionCall.Name)
		return resp
	}
	start := time.Now()
	out, err := tool.Call(ctx, tc.FunctionCall.Arguments)
	if err != nil {
		log.Warn("Tool call failed", "tool", resp.Name, "err", err)
		resp.Content = "Tool error: " + err.Error()
		return resp
	}
	log.Debug("Tool call finished", "tool", resp.Name, "duration", time.Since(start), "bytes", len(out))
	resp.Content = out
	return resp
}

// systemText appends the top semantic matches for message to the system
// prompt. Grounding is best effort.
func (a *Ollama) systemText(ctx context.Context, message string) string {
	if a.searcher == nil || !a.searcher.Enabled() || a.opts.ContextMovies <= 0 {
		return systemPrompt
	}
	k := min(a.opts.ContextMovies, semantic.MaxTopK)
	res, err := a.searcher.Search(ctx, message, k)
	if err != nil {
		log.Debug("Grounding search skipped", "err", err)
		return systemPrompt
	}
	if res.Count == 0 {
		return systemPrompt
	}
	ctxJSON, err := json.Marshal(res.Movies)
	if err != nil {
		return systemPrompt
	}
	return systemPrompt + "\n\nCatalog context (closest matches to the user's message):\n" + string(ctxJSON)
}

var _ Agent = (*Ollama)(nil)
