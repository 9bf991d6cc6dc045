// Package script runs Lua command actions.
//
// A Runtime owns one gopher-lua state. Every operation on it is marshalled
// to a single goroutine, so handlers may be invoked from any goroutine.
// Only the base, table, string and math libraries are opened, and the
// functions that load code (dofile, loadfile, load, loadstring, require)
// are removed. print is redirected to the runtime's logger.
//
// A chunk sees two globals while it runs:
//
//	id    the command ID
//	args  the item's arguments converted to Lua values
//
// Typical use turns a section file entry into a command handler:
//
//	rt := script.New(script.WithLogger(log))
//	defer rt.Close()
//
//	h, err := rt.Handler("demo:foo", `print("running " .. id, #args)`)
package script
