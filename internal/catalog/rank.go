package catalog

import (
	"cmp"
	"slices"
	"strings"

	"github.com/chirino/movie-service/internal/model"
)

type ranked struct {
	movie model.MovieRecord
	full  bool
}

// Rank keeps the records whose genres and cast match every present
// multi-valued filter at least once, then orders them: records matching all
// requested values of every present filter first, then by order_by/order_dir,
// then by id. p must already be normalized.
//
// A record value matches when it contains any requested value as a
// case-insensitive substring, so "Science Fiction" matches "fiction".
func Rank(records []model.MovieRecord, p Params) []model.MovieRecord {
	candidates := make([]ranked, 0, len(records))
	for _, m := range records {
		genreMatches := countMatches(m.Genres, p.Genre)
		castMatches := countMatches(m.Cast, p.Cast)
		if len(p.Genre) > 0 && genreMatches == 0 {
			continue
		}
		if len(p.Cast) > 0 && castMatches == 0 {
			continue
		}
		candidates = append(candidates, ranked{
			movie: m,
			full:  genreMatches >= len(p.Genre) && castMatches >= len(p.Cast),
		})
	}

	compareField := fieldComparator(p.OrderBy)
	desc := p.OrderDir == OrderDesc
	slices.SortStableFunc(candidates, func(a, b ranked) int {
		if a.full != b.full {
			if a.full {
				return -1
			}
			return 1
		}
		if c := compareField(a.movie, b.movie); c != 0 {
			if desc {
				return -c
			}
			return c
		}
		return cmp.Compare(a.movie.ID, b.movie.ID)
	})

	out := make([]model.MovieRecord, len(candidates))
	for i, c := range candidates {
		out[i] = c.movie
	}
	return out
}

// Page returns the limit records starting at offset.
func Page(records []model.MovieRecord, limit, offset int) []model.MovieRecord {
	if offset >= len(records) {
		return []model.MovieRecord{}
	}
	end := min(offset+limit, len(records))
	return slices.Clone(records[offset:end])
}

func countMatches(values []string, wanted []string) int {
	if len(wanted) == 0 {
		return 0
	}
	n := 0
	for _, v := range values {
		lv := strings.ToLower(v)
		for _, w := range wanted {
			if strings.Contains(lv, w) {
				n++
				break
			}
		}
	}
	return n
}

func fieldComparator(field string) func(a, b model.MovieRecord) int {
	switch field {
	case "id":
		return func(a, b model.MovieRecord) int { return cmp.Compare(a.ID, b.ID) }
	case "title":
		return func(a, b model.MovieRecord) int { return strings.Compare(a.Title, b.Title) }
	case "year":
		return func(a, b model.MovieRecord) int { return cmp.Compare(a.Year, b.Year) }
	case "popularity":
		return func(a, b model.MovieRecord) int { return cmp.Compare(a.Popularity, b.Popularity) }
	case "vote_count":
		return func(a, b model.MovieRecord) int { return cmp.Compare(a.VoteCount, b.VoteCount) }
	case "revenue":
		return func(a, b model.MovieRecord) int { return cmp.Compare(a.Revenue, b.Revenue) }
	case "budget":
		return func(a, b model.MovieRecord) int { return cmp.Compare(a.Budget, b.Budget) }
	case "runtime":
		return func(a, b model.MovieRecord) int { return cmp.Compare(a.Runtime, b.Runtime) }
	case "release_date":
		return func(a, b model.MovieRecord) int { return strings.Compare(a.ReleaseDate, b.ReleaseDate) }
	default:
		return func(a, b model.MovieRecord) int { return cmp.Compare(a.Rating, b.Rating) }
	}
}
