package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chirino/movie-service/internal/catalog"
	"github.com/chirino/movie-service/internal/semantic"
	"github.com/tmc/langchaingo/tools"
)

const (
	QueryToolName  = "query_sql_db"
	SearchToolName = "query_vector_db"
)

// ParameterSchema is implemented by tools that publish a JSON schema for
// their input object.
type ParameterSchema interface {
	Parameters() map[string]any
}

// QueryTool runs structured catalog queries. Its input is a JSON object of
// catalog query parameters.
type QueryTool struct {
	Engine *catalog.Engine
}

func (t *QueryTool) Name() string { return QueryToolName }
func (t *QueryTool) Description() string {
	return "Structured movie search. Use for concrete filters: genre, cast, director, title, year or year range, " +
		"sorting and limits. genre and cast accept one value or a comma-separated list."
}

func (t *QueryTool) Parameters() map[string]any {
	str := func(desc string) map[string]any { return map[string]any{"type": "string", "description": desc} }
	num := func(desc string) map[string]any { return map[string]any{"type": "integer", "description": desc} }
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"genre":           str("Genre or comma-separated genres"),
			"cast":            str("Cast member or comma-separated cast members"),
			"director":        str("Director name substring"),
			"title":           str("Title substring"),
			"year":            num("Exact release year"),
			"year_min":        num("Earliest release year"),
			"year_max":        num("Latest release year"),
			"limit":           num("Maximum results, 1 to 100"),
			"offset":          num("Results to skip"),
			"order_by":        str("One of id, title, year, rating, popularity, vote_count, revenue, budget, runtime, release_date"),
			"order_dir":       str("ASC or DESC"),
			"response_format": str("summary or detailed"),
		},
	}
}

func (t *QueryTool) Call(ctx context.Context, input string) (string, error) {
	log.Debug("Tool call", "tool", t.Name(), "input", input)
	params, err := ParseQueryInput(input)
	if err != nil {
		return "", err
	}
	if params.Unfiltered() {
		log.Warn("Catalog query without filters", "tool", t.Name())
	}
	res, err := t.Engine.Query(ctx, params)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(res)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ParseQueryInput decodes loosely typed model output into catalog params:
// empty strings are dropped, lists are joined for genre and cast, numeric
// strings become integers and out-of-range enum values are dropped.
func ParseQueryInput(input string) (catalog.Params, error) {
	var raw map[string]any
	if strings.TrimSpace(input) != "" {
		if err := json.Unmarshal([]byte(input), &raw); err != nil {
			return catalog.Params{}, fmt.Errorf("%s input must be a JSON object: %w", QueryToolName, err)
		}
	}
	cleaned := make(map[string]any, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		switch k {
		case "genre", "cast":
			if list, ok := v.([]any); ok {
				parts := make([]string, 0, len(list))
				for _, item := range list {
					if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
						parts = append(parts, s)
					}
				}
				v = strings.Join(parts, ", ")
			}
		case "year", "year_min", "year_max", "limit", "offset":
			if s, ok := v.(string); ok {
				n, err := strconv.Atoi(strings.TrimSpace(s))
				if err != nil {
					continue
				}
				v = n
			}
		case "order_dir":
			if s, ok := v.(string); ok {
				s = strings.ToUpper(strings.TrimSpace(s))
				if s != catalog.OrderAsc && s != catalog.OrderDesc {
					continue
				}
				v = s
			}
		case "response_format":
			if s, ok := v.(string); ok {
				s = strings.ToLower(strings.TrimSpace(s))
				if s != catalog.FormatSummary && s != catalog.FormatDetailed {
					continue
				}
				v = s
			}
		}
		cleaned[k] = v
	}

	data, err := json.Marshal(cleaned)
	if err != nil {
		return catalog.Params{}, err
	}
	var p catalog.Params
	if err := json.Unmarshal(data, &p); err != nil {
		return catalog.Params{}, fmt.Errorf("%s: %w", QueryToolName, err)
	}
	return p, nil
}

// SearchTool runs semantic searches. Its input is a JSON object with
// query_text and an optional top_k, or plain text.
type SearchTool struct {
	Searcher    *semantic.Searcher
	DefaultTopK int
}

func (t *SearchTool) Name() string { return SearchToolName }
func (t *SearchTool) Description() string {
	return "Semantic movie search. Use for themes, moods, scenes or plot descriptions rather than concrete filters."
}

func (t *SearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query_text": map[string]any{"type": "string", "description": "Description of the movies wanted"},
			"top_k":      map[string]any{"type": "integer", "description": "Number of results, 1 to 50"},
		},
		"required": []string{"query_text"},
	}
}

type searchInput struct {
	QueryText string `json:"query_text"`
	TopK      int    `json:"top_k"`
	// Limit is accepted as an alias of top_k.
	Limit int `json:"limit"`
}

func (t *SearchTool) Call(ctx context.Context, input string) (string, error) {
	log.Debug("Tool call", "tool", t.Name(), "input", input)
	var in searchInput
	if err := json.Unmarshal([]byte(input), &in); err != nil {
		in = searchInput{QueryText: input}
	}
	k := in.TopK
	if k == 0 {
		k = in.Limit
	}
	if k == 0 {
		k = t.DefaultTopK
	}
	if k == 0 {
		k = semantic.DefaultTopK
	}
	res, err := t.Searcher.Search(ctx, in.QueryText, k)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(res)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

var (
	_ tools.Tool      = (*QueryTool)(nil)
	_ tools.Tool      = (*SearchTool)(nil)
	_ ParameterSchema = (*QueryTool)(nil)
	_ ParameterSchema = (*SearchTool)(nil)
)
