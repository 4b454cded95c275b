package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/chirino/movie-service/internal/catalog"
	"github.com/chirino/movie-service/internal/config"
	"github.com/chirino/movie-service/internal/model"
	"github.com/chirino/movie-service/internal/querycache"
	registrycatalog "github.com/chirino/movie-service/internal/registry/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"
)

type scriptedModel struct {
	responses []*llms.ContentResponse
	err       error
	seen      [][]llms.MessageContent
}

func (m *scriptedModel) GenerateContent(_ context.Context, msgs []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.seen = append(m.seen, msgs)
	if m.err != nil {
		return nil, m.err
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, opts...)
}

type recordingTool struct {
	inputs []string
}

func (t *recordingTool) Name() string        { return QueryToolName }
func (t *recordingTool) Description() string { return "test" }
func (t *recordingTool) Call(_ context.Context, input string) (string, error) {
	t.inputs = append(t.inputs, input)
	return `{"count":1}`, nil
}

func text(content string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: content}}}
}

func TestReply_RunsToolsThenAnswers(t *testing.T) {
	tool := &recordingTool{}
	llm := &scriptedModel{responses: []*llms.ContentResponse{
		{Choices: []*llms.ContentChoice{{ToolCalls: []llms.ToolCall{{
			ID:           "call-1",
			Type:         "function",
			FunctionCall: &llms.FunctionCall{Name: QueryToolName, Arguments: `{"genre":"Crime"}`},
		}}}}},
		text("  Try Heat (1995).  "),
	}}
	a := NewOllama(llm, Options{Temperature: 0.3}, nil, []tools.Tool{tool})

	history := []model.Turn{
		{Role: model.RoleUser, Content: "hi"},
		{Role: model.RoleAssistant, Content: "hello"},
	}
	reply, err := a.Reply(context.Background(), history, "crime movies")
	require.NoError(t, err)
	assert.Equal(t, "Try Heat (1995).", reply)
	assert.Equal(t, []string{`{"genre":"Crime"}`}, tool.inputs)

	require.Len(t, llm.seen, 2)
	first := llm.seen[0]
	require.Len(t, first, 4)
	assert.Equal(t, llms.ChatMessageTypeSystem, first[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, first[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, first[2].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, first[3].Role)

	second := llm.seen[1]
	last := second[len(second)-1]
	assert.Equal(t, llms.ChatMessageTypeTool, last.Role)
	resp, ok := last.Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)
	assert.Equal(t, "call-1", resp.ToolCallID)
	assert.Equal(t, `{"count":1}`, resp.Content)
}

func TestReply_UnknownToolIsReportedToModel(t *testing.T) {
	llm := &scriptedModel{responses: []*llms.ContentResponse{
		{Choices: []*llms.ContentChoice{{ToolCalls: []llms.ToolCall{{
			ID:           "c",
			FunctionCall: &llms.FunctionCall{Name: "drop_tables", Arguments: "{}"},
		}}}}},
		text("sorry"),
	}}
	a := NewOllama(llm, Options{}, nil, nil)

	reply, err := a.Reply(context.Background(), nil, "x")
	require.NoError(t, err)
	assert.Equal(t, "sorry", reply)
	resp := llm.seen[1][len(llm.seen[1])-1].Parts[0].(llms.ToolCallResponse)
	assert.True(t, strings.HasPrefix(resp.Content, "Tool error:"))
}

func TestReply_ModelFailure(t *testing.T) {
	a := NewOllama(&scriptedModel{err: errors.New("connection refused")}, Options{}, nil, nil)
	_, err := a.Reply(context.Background(), nil, "x")
	assert.ErrorContains(t, err, "connection refused")
}

func TestDisabled(t *testing.T) {
	a, err := Load(&config.Config{AgentType: "none"}, nil, nil)
	require.NoError(t, err)
	_, err = a.Reply(context.Background(), nil, "x")
	assert.ErrorIs(t, err, ErrDisabled)
	assert.ErrorIs(t, a.Ping(context.Background()), ErrDisabled)

	_, err = Load(&config.Config{AgentType: "gpt"}, nil, nil)
	assert.Error(t, err)
}

func TestParseQueryInput(t *testing.T) {
	p, err := ParseQueryInput(`{"genre":["Action"," Romance",""],"cast":"","year_min":"1990","year_max":1999,
		"order_dir":"sideways","order_by":"rating","response_format":"DETAILED","limit":"ten"}`)
	require.NoError(t, err)
	assert.Equal(t, catalog.StringList{"Action, Romance"}, p.Genre)
	assert.Empty(t, p.Cast)
	require.NotNil(t, p.YearMin)
	assert.Equal(t, 1990, *p.YearMin)
	assert.Equal(t, 1999, *p.YearMax)
	assert.Empty(t, p.OrderDir)
	assert.Equal(t, "detailed", p.ResponseFormat)
	assert.Zero(t, p.Limit)

	empty, err := ParseQueryInput("")
	require.NoError(t, err)
	assert.True(t, empty.Unfiltered())

	_, err = ParseQueryInput("not json")
	assert.Error(t, err)
}

type staticCatalog struct{ movies []model.MovieRecord }

func (c *staticCatalog) Scan(context.Context, registrycatalog.BaseFilter) ([]model.MovieRecord, error) {
	return c.movies, nil
}
func (c *staticCatalog) GetByIDs(context.Context, []int64) (map[int64]model.MovieRecord, error) {
	return nil, nil
}
func (c *staticCatalog) Count(context.Context) (int64, error)    { return int64(len(c.movies)), nil }
func (c *staticCatalog) Version(context.Context) (string, error) { return "1", nil }
func (c *staticCatalog) Close() error                            { return nil }

func TestQueryTool_Call(t *testing.T) {
	cache, err := querycache.New[[]model.MovieRecord]("agent-tool-test", 4)
	require.NoError(t, err)
	engine := catalog.NewEngine(&staticCatalog{movies: []model.MovieRecord{
		{ID: 1, Title: "Heat", Genres: []string{"Crime"}, Rating: 8.3},
		{ID: 2, Title: "Amelie", Genres: []string{"Romance"}, Rating: 7.9},
	}}, cache)

	out, err := (&QueryTool{Engine: engine}).Call(context.Background(), `{"genre":"crime"}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"title":"Heat"`)
	assert.NotContains(t, out, "Amelie")

	_, err = (&QueryTool{Engine: engine}).Call(context.Background(), `{"limit":500}`)
	assert.Error(t, err)
}
