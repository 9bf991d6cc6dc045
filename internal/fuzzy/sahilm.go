package fuzzy

import (
	"context"
	"unicode/utf8"

	"github.com/sahilm/fuzzy"

	"github.com/dshills/cmdpalette/internal/palette"
)

// SahilmMatcher matches with github.com/sahilm/fuzzy, which favors matches
// at word starts and after separators.
type SahilmMatcher struct {
	// MinScore drops matches scoring below it when non-zero.
	// sahilm/fuzzy scores can be negative for scattered matches.
	MinScore int

	// FieldWeights is added to the score of a match in the given field.
	FieldWeights map[palette.Field]int
}

// NewSahilmMatcher creates a matcher using the default field weights.
func NewSahilmMatcher() *SahilmMatcher {
	return &SahilmMatcher{FieldWeights: DefaultOptions().FieldWeights}
}

// fieldSource exposes one field of the candidates as a fuzzy.Source.
type fieldSource struct {
	items []palette.CommandItem
	field palette.Field
}

func (s fieldSource) String(i int) string { return s.items[i].Text(s.field) }
func (s fieldSource) Len() int            { return len(s.items) }

// Match implements palette.Matcher.
func (m *SahilmMatcher) Match(ctx context.Context, query string, candidates []palette.CommandItem, fields []palette.Field) ([]palette.MatchResult, error) {
	if query == "" {
		return neutral(candidates), nil
	}

	best := make(map[int]palette.MatchResult)
	for _, field := range fields {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, match := range fuzzy.FindFrom(query, fieldSource{items: candidates, field: field}) {
			score := match.Score + m.FieldWeights[field]
			if cur, ok := best[match.Index]; ok && cur.Score >= score {
				continue
			}
			best[match.Index] = palette.MatchResult{
				Item:  candidates[match.Index],
				Score: score,
				Spans: spans(field, runeOffsets(match.Str, match.MatchedIndexes)),
			}
		}
	}

	scored := make([]indexedResult, 0, len(best))
	for idx, r := range best {
		if m.MinScore != 0 && r.Score < m.MinScore {
			continue
		}
		scored = append(scored, indexedResult{index: idx, result: r})
	}
	return sortIndexed(scored), nil
}

// runeOffsets converts the byte offsets reported by sahilm/fuzzy into rune
// offsets.
func runeOffsets(s string, byteIdx []int) []int {
	out := make([]int, 0, len(byteIdx))
	for _, b := range byteIdx {
		if b < 0 || b > len(s) {
			continue
		}
		out = append(out, utf8.RuneCountInString(s[:b]))
	}
	return out
}
