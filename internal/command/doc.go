// Package command provides the executable commands behind palette items.
//
// A Registry maps command IDs to Commands. Each command knows how to render
// itself as a palette.CommandItem, and the registry satisfies
// palette.Registry so an Engine only emits ids it can run:
//
//	reg := command.NewRegistry()
//	reg.Register(&command.Command{
//	    ID:      "demo:abc:a",
//	    Title:   "A",
//	    Caption: "The letter A",
//	    Handler: func(ctx context.Context, args any) error { return nil },
//	})
//	engine := palette.NewEngine(store, reg.BoostRecent(matcher), palette.WithRegistry(reg))
//
// Commands that declare Params receive a validated argument map with
// defaults filled in. Other commands receive the item's Args untouched.
//
// Successful executions are recorded in a bounded most-recently-used
// History, which BoostRecent uses to rank recent commands higher.
package command
