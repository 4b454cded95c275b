package catalog

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chirino/movie-service/internal/querycache"
	registrystore "github.com/chirino/movie-service/internal/registry/store"
)

const (
	DefaultLimit   = 10
	MaxLimit       = 100
	DefaultOrderBy = "rating"

	OrderAsc  = "ASC"
	OrderDesc = "DESC"

	FormatSummary  = "summary"
	FormatDetailed = "detailed"
)

// orderable lists the fields results may be sorted by.
var orderable = map[string]bool{
	"id":           true,
	"title":        true,
	"year":         true,
	"rating":       true,
	"popularity":   true,
	"vote_count":   true,
	"revenue":      true,
	"budget":       true,
	"runtime":      true,
	"release_date": true,
}

// StringList accepts either a JSON string or an array of strings.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = StringList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected a string or a list of strings")
	}
	*l = many
	return nil
}

// Params are the filters, ordering and pagination of a catalog query.
type Params struct {
	Year           *int       `json:"year,omitempty"`
	YearMin        *int       `json:"year_min,omitempty"`
	YearMax        *int       `json:"year_max,omitempty"`
	Director       string     `json:"director,omitempty"`
	Title          string     `json:"title,omitempty"`
	Genre          StringList `json:"genre,omitempty"`
	Cast           StringList `json:"cast,omitempty"`
	Limit          int        `json:"limit,omitempty"`
	Offset         int        `json:"offset,omitempty"`
	OrderBy        string     `json:"order_by,omitempty"`
	OrderDir       string     `json:"order_dir,omitempty"`
	ResponseFormat string     `json:"response_format,omitempty"`
}

// Normalize validates p and returns the effective parameters: defaults
// filled in, multi-valued filters reduced to a sorted duplicate-free set,
// range filters dropped when an exact year is given. Unknown order_by values
// fall back to rating.
func (p Params) Normalize() (Params, error) {
	if p.Year == nil && p.YearMin != nil && p.YearMax != nil && *p.YearMin > *p.YearMax {
		return p, &registrystore.ValidationError{Field: "year_min", Message: fmt.Sprintf("year_min (%d) must not exceed year_max (%d)", *p.YearMin, *p.YearMax)}
	}
	if p.Limit == 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit < 1 || p.Limit > MaxLimit {
		return p, &registrystore.ValidationError{Field: "limit", Message: fmt.Sprintf("must be between 1 and %d", MaxLimit)}
	}
	if p.Offset < 0 {
		return p, &registrystore.ValidationError{Field: "offset", Message: "must be >= 0"}
	}

	switch dir := strings.ToUpper(strings.TrimSpace(p.OrderDir)); dir {
	case "":
		p.OrderDir = OrderDesc
	case OrderAsc, OrderDesc:
		p.OrderDir = dir
	default:
		return p, &registrystore.ValidationError{Field: "order_dir", Message: "must be ASC or DESC"}
	}
	p.OrderBy = strings.ToLower(strings.TrimSpace(p.OrderBy))
	if !orderable[p.OrderBy] {
		p.OrderBy = DefaultOrderBy
	}

	switch f := strings.ToLower(strings.TrimSpace(p.ResponseFormat)); f {
	case "":
		p.ResponseFormat = FormatSummary
	case FormatSummary, FormatDetailed:
		p.ResponseFormat = f
	default:
		return p, &registrystore.ValidationError{Field: "response_format", Message: "must be summary or detailed"}
	}

	if p.Year != nil {
		p.YearMin, p.YearMax = nil, nil
	}
	p.Director = strings.TrimSpace(p.Director)
	p.Title = strings.TrimSpace(p.Title)
	p.Genre = emptyToNil(querycache.NormalizeList([]string(p.Genre)))
	p.Cast = emptyToNil(querycache.NormalizeList([]string(p.Cast)))
	return p, nil
}

// Unfiltered reports whether p carries no filter at all.
func (p Params) Unfiltered() bool {
	return p.Year == nil && p.YearMin == nil && p.YearMax == nil &&
		p.Director == "" && p.Title == "" && len(p.Genre) == 0 && len(p.Cast) == 0
}

// cacheKey covers every parameter that affects which records are returned
// and in what order. response_format only changes the projection.
func (p Params) cacheKey() string {
	return querycache.MakeKey(map[string]any{
		"year":      p.Year,
		"year_min":  p.YearMin,
		"year_max":  p.YearMax,
		"director":  p.Director,
		"title":     p.Title,
		"genre":     []string(p.Genre),
		"cast":      []string(p.Cast),
		"limit":     p.Limit,
		"offset":    p.Offset,
		"order_by":  p.OrderBy,
		"order_dir": p.OrderDir,
	})
}

func emptyToNil(values []string) StringList {
	if len(values) == 0 {
		return nil
	}
	return values
}
