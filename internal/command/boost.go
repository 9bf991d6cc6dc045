package command

import (
	"context"
	"sort"

	"github.com/dshills/cmdpalette/internal/palette"
)

// recentBonus is added to the score of the most recently executed command.
// Each older history position earns one point less.
const recentBonus = 100

// BoostRecent wraps m so that recently executed commands rank higher.
// Only non-empty queries reach a matcher, so the empty query keeps the
// section order.
func (r *Registry) BoostRecent(m palette.Matcher) palette.Matcher {
	return palette.MatcherFunc(func(ctx context.Context, query string, candidates []palette.CommandItem, fields []palette.Field) ([]palette.MatchResult, error) {
		results, err := m.Match(ctx, query, candidates, fields)
		if err != nil {
			return nil, err
		}
		if r.history.Len() == 0 {
			return results, nil
		}

		boosted := false
		for i := range results {
			if pos := r.history.Position(results[i].Item.ID); pos >= 0 && pos < recentBonus {
				results[i].Score += recentBonus - pos
				boosted = true
			}
		}
		if boosted {
			sort.SliceStable(results, func(i, j int) bool {
				return results[i].Score > results[j].Score
			})
		}
		return results, nil
	})
}
