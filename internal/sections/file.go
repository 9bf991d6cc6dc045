package sections

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/dshills/cmdpalette/internal/command"
	"github.com/dshills/cmdpalette/internal/palette"
)

var (
	// ErrUnknownFormat is returned for files whose extension is not
	// .yaml, .yml or .toml.
	ErrUnknownFormat = errors.New("unknown section file format")

	// ErrInvalid is returned when a parsed file fails validation.
	ErrInvalid = errors.New("invalid section file")
)

// ParseError represents an error while parsing a section file.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("parse error in %s at line %d, column %d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	if e.Line > 0 {
		return fmt.Sprintf("parse error in %s at line %d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// File is a parsed section file.
type File struct {
	// Path is where the file was loaded from.
	Path string `yaml:"-" toml:"-"`

	Sections []SectionDef `yaml:"sections" toml:"sections"`
}

// SectionDef declares one palette section.
type SectionDef struct {
	ID      string    `yaml:"id" toml:"id"`
	Heading string    `yaml:"heading" toml:"heading"`
	Items   []ItemDef `yaml:"items" toml:"items"`
}

// ItemDef declares one command.
type ItemDef struct {
	ID       string `yaml:"id" toml:"id"`
	Title    string `yaml:"title" toml:"title"`
	Caption  string `yaml:"caption,omitempty" toml:"caption,omitempty"`
	Shortcut string `yaml:"shortcut,omitempty" toml:"shortcut,omitempty"`
	Args     any    `yaml:"args,omitempty" toml:"args,omitempty"`

	// Params declares named arguments. An item with params takes its args
	// as a map.
	Params []ParamDef `yaml:"params,omitempty" toml:"params,omitempty"`

	// Lua is the source of the item's action, if any.
	Lua string `yaml:"lua,omitempty" toml:"lua,omitempty"`
}

// ParamDef declares one named argument of an item.
type ParamDef struct {
	Name        string   `yaml:"name" toml:"name"`
	Type        string   `yaml:"type,omitempty" toml:"type,omitempty"`
	Required    bool     `yaml:"required,omitempty" toml:"required,omitempty"`
	Default     any      `yaml:"default,omitempty" toml:"default,omitempty"`
	Description string   `yaml:"description,omitempty" toml:"description,omitempty"`
	Options     []string `yaml:"options,omitempty" toml:"options,omitempty"`
}

// Arguments converts the item's params into command arguments.
func (d ItemDef) Arguments() ([]command.Arg, error) {
	if len(d.Params) == 0 {
		return nil, nil
	}
	if d.Args != nil {
		if _, ok := d.Args.(map[string]any); !ok {
			return nil, fmt.Errorf("item %q declares params, so args must be a map", d.ID)
		}
	}

	out := make([]command.Arg, 0, len(d.Params))
	seen := make(map[string]bool, len(d.Params))
	for i, p := range d.Params {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, fmt.Errorf("item %q: param %d has no name", d.ID, i)
		}
		if seen[name] {
			return nil, fmt.Errorf("item %q: duplicate param %q", d.ID, name)
		}
		seen[name] = true

		typ, err := command.ParseArgType(strings.TrimSpace(p.Type))
		if err != nil {
			return nil, fmt.Errorf("item %q: param %q: %w", d.ID, name, err)
		}
		if typ == command.ArgEnum && len(p.Options) == 0 {
			return nil, fmt.Errorf("item %q: enum param %q has no options", d.ID, name)
		}
		arg := command.Arg{
			Name:        name,
			Type:        typ,
			Required:    p.Required,
			Default:     p.Default,
			Description: p.Description,
			Options:     p.Options,
		}
		if p.Default != nil {
			if err := arg.Validate(p.Default); err != nil {
				return nil, fmt.Errorf("item %q: default: %w", d.ID, err)
			}
		}
		out = append(out, arg)
	}
	return out, nil
}

// Load reads and parses the section file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading section file %s: %w", path, err)
	}
	return Parse(path, data)
}

// LoadFS reads and parses name from fsys.
func LoadFS(fsys fs.FS, name string) (*File, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("reading section file %s: %w", name, err)
	}
	return Parse(name, data)
}

// Parse decodes data in the format implied by path's extension, then
// normalizes and validates it.
func Parse(path string, data []byte) (*File, error) {
	f := &File{Path: path}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, f); err != nil {
			return nil, yamlParseError(path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, f); err != nil {
			return nil, tomlParseError(path, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}

	f.normalize()
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func tomlParseError(path string, err error) error {
	pe := &ParseError{Path: path, Message: err.Error(), Err: err}
	var de *toml.DecodeError
	if errors.As(err, &de) {
		pe.Line, pe.Column = de.Position()
	}
	return pe
}

func yamlParseError(path string, err error) error {
	pe := &ParseError{Path: path, Message: err.Error(), Err: err}
	var te *yaml.TypeError
	if errors.As(err, &te) && len(te.Errors) > 0 {
		pe.Message = strings.Join(te.Errors, "; ")
	}
	// yaml.v3 reports syntax errors as "yaml: line N: ...".
	var line int
	if _, scanErr := fmt.Sscanf(pe.Message, "yaml: line %d:", &line); scanErr == nil {
		pe.Line = line
	}
	return pe
}

// normalize composes display text so decomposed input matches typed queries.
func (f *File) normalize() {
	for i := range f.Sections {
		s := &f.Sections[i]
		s.ID = strings.TrimSpace(s.ID)
		s.Heading = norm.NFC.String(s.Heading)
		for j := range s.Items {
			it := &s.Items[j]
			it.ID = strings.TrimSpace(it.ID)
			it.Title = norm.NFC.String(it.Title)
			it.Caption = norm.NFC.String(it.Caption)
		}
	}
}

// Validate checks that ids are present and unique within the file, that
// every item has a title, and that declared params are well formed.
func (f *File) Validate() error {
	sectionIDs := make(map[string]bool, len(f.Sections))
	itemIDs := make(map[string]bool)

	for i, s := range f.Sections {
		if s.ID == "" {
			return fmt.Errorf("%w: %s: section %d has no id", ErrInvalid, f.Path, i)
		}
		if sectionIDs[s.ID] {
			return fmt.Errorf("%w: %s: duplicate section id %q", ErrInvalid, f.Path, s.ID)
		}
		sectionIDs[s.ID] = true

		for j, it := range s.Items {
			if it.ID == "" {
				return fmt.Errorf("%w: %s: item %d of section %q has no id", ErrInvalid, f.Path, j, s.ID)
			}
			if it.Title == "" {
				return fmt.Errorf("%w: %s: item %q has no title", ErrInvalid, f.Path, it.ID)
			}
			if itemIDs[it.ID] {
				return fmt.Errorf("%w: %s: duplicate item id %q", ErrInvalid, f.Path, it.ID)
			}
			itemIDs[it.ID] = true
			if _, err := it.Arguments(); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalid, f.Path, err)
			}
		}
	}
	return nil
}

// Section converts a definition into a palette section.
func (d SectionDef) Section() palette.Section {
	sec := palette.Section{ID: d.ID, Heading: d.Heading, Items: make([]palette.CommandItem, len(d.Items))}
	for i, it := range d.Items {
		sec.Items[i] = palette.CommandItem{
			ID:       it.ID,
			Args:     it.Args,
			Shortcut: it.Shortcut,
			Title:    it.Title,
			Caption:  it.Caption,
		}
	}
	return sec
}
