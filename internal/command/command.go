package command

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/dshills/cmdpalette/internal/palette"
)

// ArgType defines the type of a command argument.
type ArgType uint8

const (
	// ArgString is a string argument.
	ArgString ArgType = iota

	// ArgNumber is a numeric argument (int or float).
	ArgNumber

	// ArgBoolean is a boolean argument.
	ArgBoolean

	// ArgEnum is a string argument restricted to Options.
	ArgEnum

	// ArgList is a list argument.
	ArgList
)

// String returns a string representation of the argument type.
func (t ArgType) String() string {
	switch t {
	case ArgString:
		return "string"
	case ArgNumber:
		return "number"
	case ArgBoolean:
		return "boolean"
	case ArgEnum:
		return "enum"
	case ArgList:
		return "list"
	default:
		return "unknown"
	}
}

// ParseArgType converts a type name back to an ArgType.
func ParseArgType(s string) (ArgType, error) {
	switch s {
	case "", "string":
		return ArgString, nil
	case "number":
		return ArgNumber, nil
	case "boolean", "bool":
		return ArgBoolean, nil
	case "enum":
		return ArgEnum, nil
	case "list":
		return ArgList, nil
	}
	return ArgString, fmt.Errorf("unknown argument type %q", s)
}

// Arg describes a named argument a command accepts.
type Arg struct {
	Name        string
	Type        ArgType
	Required    bool
	Default     any
	Description string

	// Options lists valid values for enum types.
	Options []string
}

// Validate checks if a value is valid for this argument.
func (a *Arg) Validate(value any) error {
	if value == nil {
		if a.Required {
			return fmt.Errorf("argument %q is required", a.Name)
		}
		return nil
	}

	switch a.Type {
	case ArgString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("argument %q must be a string", a.Name)
		}
	case ArgNumber:
		switch value.(type) {
		case int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:
		default:
			return fmt.Errorf("argument %q must be a number", a.Name)
		}
	case ArgBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("argument %q must be a boolean", a.Name)
		}
	case ArgEnum:
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("argument %q must be a string", a.Name)
		}
		if !slices.Contains(a.Options, str) {
			return fmt.Errorf("argument %q must be one of: %v", a.Name, a.Options)
		}
	case ArgList:
		switch value.(type) {
		case []any, []string:
		default:
			return fmt.Errorf("argument %q must be a list", a.Name)
		}
	}

	return nil
}

// Handler runs a command. args is whatever the palette item carried, or the
// filled-in argument map for commands that declare Params.
type Handler func(ctx context.Context, args any) error

// Command is an executable action that can be shown in the palette.
type Command struct {
	// ID is the unique command identifier (e.g. "demo:nes:sumer").
	ID string

	// Title is the display name shown in the palette.
	Title string

	Caption  string
	Shortcut string

	// Args is the opaque payload passed to Handler when the palette
	// activates the command.
	Args any

	// Params declares named arguments. When non-empty, Execute requires
	// args to be a map and validates it against Params.
	Params []Arg

	Handler Handler

	// Source records who registered the command, e.g. a section file path.
	Source string
}

// Item returns the palette entry for the command.
func (c *Command) Item() palette.CommandItem {
	return palette.CommandItem{
		ID:       c.ID,
		Args:     c.Args,
		Shortcut: c.Shortcut,
		Title:    c.Title,
		Caption:  c.Caption,
	}
}

// ValidateArgs validates args against the declared Params.
func (c *Command) ValidateArgs(args any) error {
	if len(c.Params) == 0 {
		return nil
	}

	m, err := argMap(args)
	if err != nil {
		return err
	}
	for i := range c.Params {
		p := &c.Params[i]
		value, exists := m[p.Name]
		if !exists {
			value = p.Default
		}
		if err := p.Validate(value); err != nil {
			return err
		}
	}
	return nil
}

// Execute validates args and runs the handler.
// The caller's argument map is never modified.
func (c *Command) Execute(ctx context.Context, args any) error {
	if err := c.ValidateArgs(args); err != nil {
		return fmt.Errorf("command %q: %w", c.ID, err)
	}
	if c.Handler == nil {
		return fmt.Errorf("command %q: %w", c.ID, ErrNoHandler)
	}
	if len(c.Params) == 0 {
		return c.Handler(ctx, args)
	}

	m, _ := argMap(args)
	execArgs := maps.Clone(m)
	if execArgs == nil {
		execArgs = make(map[string]any, len(c.Params))
	}
	for i := range c.Params {
		p := &c.Params[i]
		if _, exists := execArgs[p.Name]; !exists && p.Default != nil {
			execArgs[p.Name] = p.Default
		}
	}
	return c.Handler(ctx, execArgs)
}

func argMap(args any) (map[string]any, error) {
	switch v := args.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	default:
		return nil, fmt.Errorf("arguments must be a map, got %T", args)
	}
}
