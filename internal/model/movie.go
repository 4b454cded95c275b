package model

import "math"

// MovieRecord is a catalog entry as read by the query engine.
type MovieRecord struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Year        int      `json:"year,omitempty"`
	ReleaseDate string   `json:"release_date,omitempty"`
	Director    string   `json:"director,omitempty"`
	Genres      []string `json:"genres"`
	Cast        []string `json:"cast"`
	Keywords    []string `json:"keywords"`
	Overview    string   `json:"overview,omitempty"`
	Rating      float64  `json:"rating"`
	Popularity  float64  `json:"popularity"`
	VoteCount   int      `json:"vote_count"`
	Revenue     int64    `json:"revenue"`
	Budget      int64    `json:"budget"`
	Runtime     int      `json:"runtime"`
}

// MovieSummary is the compact projection returned by default.
type MovieSummary struct {
	ID       int64    `json:"id"`
	Title    string   `json:"title"`
	Year     int      `json:"year,omitempty"`
	Director string   `json:"director,omitempty"`
	Genres   []string `json:"genres"`
	Rating   float64  `json:"rating"`
	Cast     []string `json:"cast"`
	Overview string   `json:"overview,omitempty"`
}

// MovieDetail extends MovieSummary with the remaining catalog fields.
type MovieDetail struct {
	MovieSummary
	Keywords    []string `json:"keywords"`
	Popularity  float64  `json:"popularity"`
	VoteCount   int      `json:"vote_count"`
	ReleaseDate string   `json:"release_date,omitempty"`
	Runtime     int      `json:"runtime"`
	Revenue     int64    `json:"revenue"`
	Budget      int64    `json:"budget"`
}

const (
	summaryCastLimit    = 3
	detailKeywordsLimit = 5
)

// Summary projects the record onto its summary fields. Cast is cut to the
// top three billed names.
func (m MovieRecord) Summary() MovieSummary {
	return MovieSummary{
		ID:       m.ID,
		Title:    m.Title,
		Year:     m.Year,
		Director: m.Director,
		Genres:   nonNil(m.Genres),
		Rating:   m.Rating,
		Cast:     head(m.Cast, summaryCastLimit),
		Overview: m.Overview,
	}
}

// Detailed projects the record onto the detailed field set.
func (m MovieRecord) Detailed() MovieDetail {
	return MovieDetail{
		MovieSummary: m.Summary(),
		Keywords:     head(m.Keywords, detailKeywordsLimit),
		Popularity:   m.Popularity,
		VoteCount:    m.VoteCount,
		ReleaseDate:  m.ReleaseDate,
		Runtime:      m.Runtime,
		Revenue:      m.Revenue,
		Budget:       m.Budget,
	}
}

// ScoredMovie is a semantic search hit.
type ScoredMovie struct {
	Movie      MovieRecord
	Similarity float64
}

// ScoredSummary is the wire projection of a ScoredMovie.
type ScoredSummary struct {
	MovieSummary
	Similarity float64 `json:"similarity"`
}

// Summary projects the hit, rounding similarity to three decimals.
func (s ScoredMovie) Summary() ScoredSummary {
	return ScoredSummary{
		MovieSummary: s.Movie.Summary(),
		Similarity:   math.Round(s.Similarity*1000) / 1000,
	}
}

func head(values []string, n int) []string {
	if len(values) > n {
		values = values[:n]
	}
	return nonNil(values)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
