package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-logr/logr"

	"github.com/dshills/cmdpalette/internal/palette"
)

var (
	// ErrUnknownCommand is returned when executing an unregistered command.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrNoHandler is returned when a command has no handler.
	ErrNoHandler = errors.New("command has no handler")

	// ErrInvalidCommand is returned by Register for a nil command or one
	// without an ID or title.
	ErrInvalidCommand = errors.New("invalid command")
)

// Registry holds the executable commands behind palette items.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]*Command
	history  *History
	log      logr.Logger
	changed  palette.Signal[string]
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(log logr.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// WithHistorySize bounds the execution history.
func WithHistorySize(n int) Option {
	return func(r *Registry) { r.history = NewHistory(n) }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		commands: make(map[string]*Command),
		history:  NewHistory(100),
		log:      logr.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a command to the registry.
// If a command with the same ID exists, it is replaced.
func (r *Registry) Register(cmd *Command) error {
	if cmd == nil {
		return fmt.Errorf("%w: nil command", ErrInvalidCommand)
	}
	if cmd.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidCommand)
	}
	if cmd.Title == "" {
		return fmt.Errorf("%w: command %q has no title", ErrInvalidCommand, cmd.ID)
	}

	r.mu.Lock()
	_, replaced := r.commands[cmd.ID]
	r.commands[cmd.ID] = cmd
	r.mu.Unlock()

	r.log.V(1).Info("registered command", "id", cmd.ID, "source", cmd.Source, "replaced", replaced)
	r.changed.Emit(cmd.ID)
	return nil
}

// Unregister removes a command. It reports whether the command existed.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	_, exists := r.commands[id]
	delete(r.commands, id)
	r.mu.Unlock()

	if exists {
		r.history.Remove(id)
		r.changed.Emit(id)
	}
	return exists
}

// UnregisterBySource removes every command registered from source and
// returns how many were removed.
func (r *Registry) UnregisterBySource(source string) int {
	var removed []string
	r.mu.Lock()
	for id, cmd := range r.commands {
		if cmd.Source == source {
			delete(r.commands, id)
			removed = append(removed, id)
		}
	}
	r.mu.Unlock()

	sort.Strings(removed)
	for _, id := range removed {
		r.history.Remove(id)
		r.changed.Emit(id)
	}
	return len(removed)
}

// Get returns the command registered under id, or nil.
func (r *Registry) Get(id string) *Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.commands[id]
}

// Lookup returns the palette item for id. It satisfies palette.Registry.
func (r *Registry) Lookup(id string) (palette.CommandItem, bool) {
	cmd := r.Get(id)
	if cmd == nil {
		return palette.CommandItem{}, false
	}
	return cmd.Item(), true
}

// ListAll returns every command's palette item, sorted by title then id.
func (r *Registry) ListAll() []palette.CommandItem {
	r.mu.RLock()
	items := make([]palette.CommandItem, 0, len(r.commands))
	for _, cmd := range r.commands {
		items = append(items, cmd.Item())
	}
	r.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].Title != items[j].Title {
			return items[i].Title < items[j].Title
		}
		return items[i].ID < items[j].ID
	})
	return items
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Execute runs a command by ID with the given arguments.
// History is only updated after successful execution.
func (r *Registry) Execute(ctx context.Context, id string, args any) error {
	cmd := r.Get(id)
	if cmd == nil {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, id)
	}

	log := r.log.WithValues("id", id)
	if err := cmd.Execute(ctx, args); err != nil {
		log.Error(err, "command failed")
		return err
	}

	r.history.Add(id)
	log.V(1).Info("command executed")
	return nil
}

// History returns the execution history.
func (r *Registry) History() *History {
	return r.history
}

// OnChange registers fn to be called with the id of each registered or
// unregistered command. The returned function disconnects fn.
func (r *Registry) OnChange(fn func(id string)) func() {
	return r.changed.Connect(fn)
}
