// Package fuzzy provides the fuzzy matchers used by the command palette.
//
// Every matcher implements palette.Matcher: it scores a query against the
// searchable fields of each candidate item and returns the matching items
// ordered by descending score. Items with equal scores keep their candidate
// order, so results are deterministic for a fixed input.
//
// # Matchers
//
//   - Matcher: rune-aware subsequence matching with a weighted scorer and an
//     LRU result cache.
//   - AsyncMatcher: the same algorithm spread over a worker pool for large
//     candidate sets.
//   - SahilmMatcher: backed by github.com/sahilm/fuzzy.
//
// # Scoring Algorithm
//
// The scorer favors matches based on several factors:
//   - Consecutive character matches (bonus)
//   - Word boundary matches (start of word, camelCase transitions)
//   - Prefix matches (query at start of text)
//   - Shorter text (more specific matches)
//   - Minimal gaps between matched characters
//
// Each field adds its weight to the score; an item scores as its best field.
//
// # Usage
//
//	m := fuzzy.NewMatcher(fuzzy.DefaultOptions())
//	results, err := m.Match(ctx, "sav", items, palette.DefaultFields)
//	for _, r := range results {
//	    fmt.Printf("%s (score: %d)\n", r.Item.Title, r.Score)
//	}
//
// # Thread Safety
//
// All matchers are safe for concurrent use.
package fuzzy
