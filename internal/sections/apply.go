package sections

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/dshills/cmdpalette/internal/command"
	"github.com/dshills/cmdpalette/internal/palette"
	"github.com/dshills/cmdpalette/internal/script"
)

// Applied is the live state created by Apply. Dispose undoes it.
type Applied struct {
	File     *File
	Handles  []*palette.Handle
	Commands []string

	registry *command.Registry
}

// Dispose removes the file's sections from the store and its commands from
// the registry. It is safe to call more than once.
func (a *Applied) Dispose() {
	if a == nil {
		return
	}
	for _, h := range a.Handles {
		h.Dispose()
	}
	for _, id := range a.Commands {
		// A later file may have replaced the command; leave it alone.
		if cmd := a.registry.Get(id); cmd != nil && cmd.Source == a.File.Path {
			a.registry.Unregister(id)
		}
	}
}

// ApplyOption configures Apply.
type ApplyOption func(*applyConfig)

type applyConfig struct {
	runtime  *script.Runtime
	fallback command.Handler
	log      logr.Logger
}

// WithRuntime compiles each item's lua source into its handler.
func WithRuntime(rt *script.Runtime) ApplyOption {
	return func(c *applyConfig) { c.runtime = rt }
}

// WithFallback sets the handler for items without lua source.
func WithFallback(h command.Handler) ApplyOption {
	return func(c *applyConfig) { c.fallback = h }
}

// WithApplyLogger sets the logger used by Apply.
func WithApplyLogger(log logr.Logger) ApplyOption {
	return func(c *applyConfig) { c.log = log }
}

// Apply registers every item of f as a command and adds its sections to
// store. Lua sources are compiled before anything is registered. If a
// section cannot be added, everything already applied is rolled back.
func Apply(store *palette.Store, reg *command.Registry, f *File, opts ...ApplyOption) (*Applied, error) {
	cfg := applyConfig{log: logr.Discard()}
	for _, opt := range opts {
		opt(&cfg)
	}

	var cmds []*command.Command
	for _, s := range f.Sections {
		for _, it := range s.Items {
			params, err := it.Arguments()
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, f.Path, err)
			}
			cmd := &command.Command{
				ID:       it.ID,
				Title:    it.Title,
				Caption:  it.Caption,
				Shortcut: it.Shortcut,
				Args:     it.Args,
				Params:   params,
				Handler:  cfg.fallback,
				Source:   f.Path,
			}
			if it.Lua != "" {
				if cfg.runtime == nil {
					return nil, fmt.Errorf("%w: %s: item %q has lua but no runtime is configured", ErrInvalid, f.Path, it.ID)
				}
				h, err := cfg.runtime.Handler(it.ID, it.Lua)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", f.Path, err)
				}
				cmd.Handler = h
			}
			cmds = append(cmds, cmd)
		}
	}

	applied := &Applied{File: f, registry: reg}
	for _, cmd := range cmds {
		if prev := reg.Get(cmd.ID); prev != nil && prev.Source != f.Path {
			applied.Dispose()
			return nil, fmt.Errorf("%w: %s: command %q is already registered by %q", ErrInvalid, f.Path, cmd.ID, prev.Source)
		}
		if err := reg.Register(cmd); err != nil {
			applied.Dispose()
			return nil, err
		}
		applied.Commands = append(applied.Commands, cmd.ID)
	}

	for _, s := range f.Sections {
		h, err := store.Add(s.Section())
		if err != nil {
			applied.Dispose()
			return nil, fmt.Errorf("%s: %w", f.Path, err)
		}
		applied.Handles = append(applied.Handles, h)
	}

	cfg.log.V(1).Info("applied section file", "path", f.Path, "sections", len(applied.Handles), "commands", len(applied.Commands))
	return applied, nil
}
