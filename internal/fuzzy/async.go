package fuzzy

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/cmdpalette/internal/palette"
)

// AsyncMatcher spreads matching over a pool of workers.
// Results are identical to the wrapped Matcher's.
type AsyncMatcher struct {
	matcher    *Matcher
	numWorkers int
	minChunk   int
}

// NewAsyncMatcher creates an async matcher with the given base matcher.
// If numWorkers is 0, it defaults to runtime.NumCPU().
// Panics if matcher is nil.
func NewAsyncMatcher(matcher *Matcher, numWorkers int) *AsyncMatcher {
	if matcher == nil {
		panic("fuzzy: NewAsyncMatcher called with nil matcher")
	}
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	return &AsyncMatcher{
		matcher:    matcher,
		numWorkers: numWorkers,
		minChunk:   64,
	}
}

// Match implements palette.Matcher. Workers stop early when ctx is cancelled
// and ctx.Err() is returned.
func (m *AsyncMatcher) Match(ctx context.Context, query string, candidates []palette.CommandItem, fields []palette.Field) ([]palette.MatchResult, error) {
	queryRunes := m.matcher.normalizeQuery(query)
	if len(queryRunes) == 0 {
		return neutral(candidates), nil
	}

	cache := m.matcher.cache
	var key string
	if cache != nil {
		key = m.matcher.cacheKey(queryRunes, candidates, fields)
		if cached, ok := cache.Get(key); ok {
			return rebind(cached, candidates), nil
		}
	}

	chunkSize := (len(candidates) + m.numWorkers - 1) / m.numWorkers
	if chunkSize < m.minChunk {
		chunkSize = m.minChunk
	}

	chunks := make([][]indexedResult, (len(candidates)+chunkSize-1)/chunkSize)
	g, gctx := errgroup.WithContext(ctx)
	for c := range chunks {
		start := c * chunkSize
		end := min(start+chunkSize, len(candidates))
		g.Go(func() error {
			var local []indexedResult
			for i := start; i < end; i++ {
				if (i-start)%128 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				if r, ok := m.matcher.scoreItem(queryRunes, candidates[i], fields); ok {
					local = append(local, indexedResult{index: i, result: r})
				}
			}
			chunks[c] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var scored []indexedResult
	for _, chunk := range chunks {
		scored = append(scored, chunk...)
	}
	results := sortIndexed(scored)
	if cache != nil {
		cache.Set(key, results)
	}
	return results, nil
}
