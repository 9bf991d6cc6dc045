// Package palette implements the interaction core of a command palette.
//
// The palette lists invocable commands grouped into labeled sections, filters
// them against a live query, keeps a single selection cursor over the
// filtered list and emits intent events. It never renders anything itself.
//
// # Architecture
//
// Two types form the core:
//
//   - Store: ordered, uniquely keyed collection of sections. Add returns a
//     Handle whose Dispose removes exactly that section.
//   - Engine: owns the query, the filtered results and the selection cursor.
//     It re-filters on every query change and every store change.
//
// Scoring is delegated to a Matcher. An optional Registry is consulted before
// an execute intent is emitted so that commands unregistered in the meantime
// are ignored.
//
// # Usage
//
//	store := palette.NewStore()
//	engine := palette.NewEngine(store, fuzzy.NewMatcher(fuzzy.DefaultOptions()))
//	defer engine.Close()
//
//	engine.OnExecute(func(ev palette.ExecuteEvent) {
//	    _ = registry.Execute(ctx, ev.ID, ev.Args)
//	})
//
//	h, err := store.Add(palette.Section{ID: "file", Heading: "File", Items: items})
//	if err != nil {
//	    return err
//	}
//	defer h.Dispose()
//
//	_ = engine.SetQuery(ctx, "sav")
//	engine.MoveSelection(palette.Down)
//	engine.ConfirmSelection()
//
// # Query ordering
//
// Every SetQuery call and every store change bumps a generation counter.
// Matcher results are applied only if their generation is still current, so
// a slow match for an old query can never overwrite a newer one. SetQuery
// returns ErrStaleQuery in that case.
//
// # Thread Safety
//
// All Store and Engine operations are safe for concurrent use. Event
// callbacks are invoked without internal locks held.
package palette
