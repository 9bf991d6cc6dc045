package fuzzy

import (
	"context"
	"hash/maphash"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/dshills/cmdpalette/internal/palette"
)

// Options configures the matcher behavior.
type Options struct {
	// CacheSize is the maximum number of cached query results.
	// Set to 0 to disable caching.
	CacheSize int

	// MinScore is the minimum score for a match to be included.
	MinScore int

	// CaseSensitive enables case-sensitive matching.
	CaseSensitive bool

	// FieldWeights is added to the score of a match in the given field.
	// Fields without a weight add nothing.
	FieldWeights map[palette.Field]int
}

// DefaultOptions returns sensible default options.
// Title matches outrank id matches, which outrank caption matches.
func DefaultOptions() Options {
	return Options{
		CacheSize: 256,
		FieldWeights: map[palette.Field]int{
			palette.FieldTitle: 50,
			palette.FieldID:    25,
		},
	}
}

// Matcher performs fuzzy matching over palette items.
type Matcher struct {
	mu      sync.RWMutex
	cache   *Cache
	scorer  Scorer
	options Options
	seed    maphash.Seed
}

// NewMatcher creates a new fuzzy matcher with the given options.
func NewMatcher(opts Options) *Matcher {
	var cache *Cache
	if opts.CacheSize > 0 {
		cache = NewCache(opts.CacheSize)
	}
	return &Matcher{
		cache:   cache,
		scorer:  DefaultScorer(),
		options: opts,
		seed:    maphash.MakeSeed(),
	}
}

// SetScorer sets a custom scoring algorithm and drops cached results.
func (m *Matcher) SetScorer(scorer Scorer) {
	m.mu.Lock()
	m.scorer = scorer
	m.mu.Unlock()
	m.ClearCache()
}

// ClearCache clears the result cache.
func (m *Matcher) ClearCache() {
	if m.cache != nil {
		m.cache.Clear()
	}
}

// Match implements palette.Matcher.
func (m *Matcher) Match(ctx context.Context, query string, candidates []palette.CommandItem, fields []palette.Field) ([]palette.MatchResult, error) {
	queryRunes := m.normalizeQuery(query)
	if len(queryRunes) == 0 {
		return neutral(candidates), nil
	}

	var key string
	if m.cache != nil {
		key = m.cacheKey(queryRunes, candidates, fields)
		if cached, ok := m.cache.Get(key); ok {
			return rebind(cached, candidates), nil
		}
	}

	scored := make([]indexedResult, 0, len(candidates))
	for i, item := range candidates {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if r, ok := m.scoreItem(queryRunes, item, fields); ok {
			scored = append(scored, indexedResult{index: i, result: r})
		}
	}

	results := sortIndexed(scored)
	if m.cache != nil {
		m.cache.Set(key, results)
	}
	return results, nil
}

// normalizeQuery composes, trims and (unless case-sensitive) lowercases the
// query. Terminal input may arrive in decomposed form.
func (m *Matcher) normalizeQuery(query string) []rune {
	query = strings.TrimSpace(norm.NFC.String(query))
	runes := []rune(query)
	if !m.options.CaseSensitive {
		lowerRunes(runes)
	}
	return runes
}

// scoreItem scores every requested field and keeps the best one.
func (m *Matcher) scoreItem(queryRunes []rune, item palette.CommandItem, fields []palette.Field) (palette.MatchResult, bool) {
	best := palette.MatchResult{Item: item}
	found := false

	for _, field := range fields {
		score, matches := m.matchText(queryRunes, item.Text(field))
		if matches == nil {
			continue
		}
		score += m.options.FieldWeights[field]
		if !found || score > best.Score {
			best.Score = score
			best.Spans = spans(field, matches)
			found = true
		}
	}

	if !found || best.Score < m.options.MinScore {
		return palette.MatchResult{}, false
	}
	return best, true
}

// matchText matches queryRunes as a subsequence of text using a greedy
// left-to-right scan. Returns nil matches if some query rune is missing.
func (m *Matcher) matchText(queryRunes []rune, text string) (int, []int) {
	if text == "" {
		return 0, nil
	}

	originalRunes := []rune(text)
	textRunes := originalRunes
	if !m.options.CaseSensitive {
		textRunes = make([]rune, len(originalRunes))
		copy(textRunes, originalRunes)
		lowerRunes(textRunes)
	}

	matches := make([]int, 0, len(queryRunes))
	qi := 0
	for i := 0; i < len(textRunes) && qi < len(queryRunes); i++ {
		if textRunes[i] == queryRunes[qi] {
			matches = append(matches, i)
			qi++
		}
	}
	if qi != len(queryRunes) {
		return 0, nil
	}

	m.mu.RLock()
	scorer := m.scorer
	m.mu.RUnlock()

	return scorer.Score(queryRunes, originalRunes, textRunes, matches), matches
}

// cacheKey identifies a (query, fields, candidates) triple. Candidates are
// folded into a hash since the store can change between identical queries.
// Only the matched text is hashed; rebind refreshes the rest of each item.
func (m *Matcher) cacheKey(queryRunes []rune, candidates []palette.CommandItem, fields []palette.Field) string {
	var h maphash.Hash
	h.SetSeed(m.seed)
	for _, c := range candidates {
		h.WriteString(c.ID)
		h.WriteByte(0)
		h.WriteString(c.Title)
		h.WriteByte(0)
		h.WriteString(c.Caption)
		h.WriteByte(1)
	}

	var b strings.Builder
	b.WriteString(string(queryRunes))
	for _, f := range fields {
		b.WriteByte(0)
		b.WriteString(string(f))
	}
	b.WriteByte(0)
	b.WriteString(strconv.FormatUint(h.Sum64(), 16))
	return b.String()
}

// lowerRunes lowercases in place, keeping rune offsets aligned with the
// original text.
func lowerRunes(runes []rune) {
	for i, r := range runes {
		runes[i] = unicode.ToLower(r)
	}
}

// spans collapses sorted rune indices into contiguous runs.
func spans(field palette.Field, matches []int) []palette.Span {
	var out []palette.Span
	for i := 0; i < len(matches); {
		j := i + 1
		for j < len(matches) && matches[j] == matches[j-1]+1 {
			j++
		}
		out = append(out, palette.Span{Field: field, Start: matches[i], End: matches[j-1] + 1})
		i = j
	}
	return out
}

// indexedResult remembers the candidate position for tie-breaking.
type indexedResult struct {
	index  int
	result palette.MatchResult
}

// sortIndexed orders by descending score, then by candidate position.
func sortIndexed(scored []indexedResult) []palette.MatchResult {
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].result.Score != scored[j].result.Score {
			return scored[i].result.Score > scored[j].result.Score
		}
		return scored[i].index < scored[j].index
	})

	results := make([]palette.MatchResult, len(scored))
	for i, s := range scored {
		results[i] = s.result
	}
	return results
}

// rebind replaces the items of cached results with the current candidates
// carrying the same id, so args and shortcuts edited since the results were
// cached are not served stale.
func rebind(results []palette.MatchResult, candidates []palette.CommandItem) []palette.MatchResult {
	byID := make(map[string]int, len(candidates))
	for i, c := range candidates {
		if _, ok := byID[c.ID]; !ok {
			byID[c.ID] = i
		}
	}
	for i := range results {
		if idx, ok := byID[results[i].Item.ID]; ok {
			results[i].Item = candidates[idx]
		}
	}
	return results
}

// neutral returns every candidate in order with a zero score.
func neutral(candidates []palette.CommandItem) []palette.MatchResult {
	results := make([]palette.MatchResult, len(candidates))
	for i, c := range candidates {
		results[i] = palette.MatchResult{Item: c}
	}
	return results
}
