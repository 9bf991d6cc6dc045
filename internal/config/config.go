// Package config loads cmdpalette settings.
//
// Settings are layered: built-in defaults, then a config file (YAML or
// TOML), then CMDPALETTE_* environment variables, then command-line flags.
// Nested keys map to env vars by replacing dots with underscores, so
// matcher.cache_size is CMDPALETTE_MATCHER_CACHE_SIZE.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dshills/cmdpalette/internal/logging"
	"github.com/dshills/cmdpalette/internal/palette"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CMDPALETTE"

// Matcher algorithms.
const (
	AlgorithmBuiltin = "builtin"
	AlgorithmSahilm  = "sahilm"
)

// ErrInvalid is wrapped by every Validate error.
var ErrInvalid = errors.New("invalid configuration")

// Config holds application configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Matcher  MatcherConfig  `mapstructure:"matcher"`
	Sections SectionsConfig `mapstructure:"sections"`
	History  HistoryConfig  `mapstructure:"history"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// MatcherConfig holds fuzzy matcher settings.
type MatcherConfig struct {
	Algorithm     string   `mapstructure:"algorithm"`
	CacheSize     int      `mapstructure:"cache_size"`
	CaseSensitive bool     `mapstructure:"case_sensitive"`
	MinScore      int      `mapstructure:"min_score"`
	Fields        []string `mapstructure:"fields"`

	// Workers is the size of the parallel matcher pool. 0 matches on the
	// calling goroutine, negative means one worker per CPU.
	// The sahilm algorithm is always case-insensitive and does not use
	// CacheSize or Workers.
	Workers int `mapstructure:"workers"`
}

// SectionsConfig lists section files to load.
type SectionsConfig struct {
	Files    []string      `mapstructure:"files"`
	Watch    bool          `mapstructure:"watch"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// HistoryConfig bounds the execution history and controls whether recently
// run commands rank higher.
type HistoryConfig struct {
	Size  int  `mapstructure:"size"`
	Boost bool `mapstructure:"boost"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Matcher: MatcherConfig{
			Algorithm: AlgorithmBuiltin,
			CacheSize: 256,
			Fields:    []string{string(palette.FieldTitle), string(palette.FieldCaption)},
		},
		Sections: SectionsConfig{Debounce: 100 * time.Millisecond},
		History:  HistoryConfig{Size: 100, Boost: true},
	}
}

// flagKeys maps command-line flag names to setting keys.
var flagKeys = map[string]string{
	"log-level":      "log.level",
	"log-file":       "log.file",
	"matcher":        "matcher.algorithm",
	"case-sensitive": "matcher.case_sensitive",
	"fields":         "matcher.fields",
	"workers":        "matcher.workers",
	"sections":       "sections.files",
	"watch":          "sections.watch",
}

// Load reads settings. path names an explicit config file; when empty the
// user config directory is searched and a missing file is not an error.
// Flags present in flags override every other layer.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "cmdpalette"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("matcher.algorithm", d.Matcher.Algorithm)
	v.SetDefault("matcher.cache_size", d.Matcher.CacheSize)
	v.SetDefault("matcher.case_sensitive", d.Matcher.CaseSensitive)
	v.SetDefault("matcher.min_score", d.Matcher.MinScore)
	v.SetDefault("matcher.fields", d.Matcher.Fields)
	v.SetDefault("matcher.workers", d.Matcher.Workers)
	v.SetDefault("sections.files", d.Sections.Files)
	v.SetDefault("sections.watch", d.Sections.Watch)
	v.SetDefault("sections.debounce", d.Sections.Debounce)
	v.SetDefault("history.size", d.History.Size)
	v.SetDefault("history.boost", d.History.Boost)
}

// Validate checks every setting and reports the first problem.
func (c Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalid, err)
	}
	switch c.Matcher.Algorithm {
	case AlgorithmBuiltin, AlgorithmSahilm:
	default:
		return fmt.Errorf("%w: matcher.algorithm must be %q or %q, got %q",
			ErrInvalid, AlgorithmBuiltin, AlgorithmSahilm, c.Matcher.Algorithm)
	}
	if c.Matcher.Algorithm == AlgorithmSahilm && c.Matcher.CaseSensitive {
		return fmt.Errorf("%w: matcher.case_sensitive is not supported by %q", ErrInvalid, AlgorithmSahilm)
	}
	if c.Matcher.CacheSize < 0 {
		return fmt.Errorf("%w: matcher.cache_size must not be negative", ErrInvalid)
	}
	if _, err := c.Matcher.ParsedFields(); err != nil {
		return err
	}
	if c.Sections.Debounce < 0 {
		return fmt.Errorf("%w: sections.debounce must not be negative", ErrInvalid)
	}
	if c.History.Size < 0 {
		return fmt.Errorf("%w: history.size must not be negative", ErrInvalid)
	}
	return nil
}

// ParsedFields converts the configured field names. An empty list yields
// palette.DefaultFields.
func (m MatcherConfig) ParsedFields() ([]palette.Field, error) {
	if len(m.Fields) == 0 {
		return palette.DefaultFields, nil
	}
	fields := make([]palette.Field, 0, len(m.Fields))
	seen := make(map[palette.Field]bool, len(m.Fields))
	for _, name := range m.Fields {
		f, ok := palette.ParseField(strings.TrimSpace(name))
		if !ok {
			return nil, fmt.Errorf("%w: matcher.fields: unknown field %q", ErrInvalid, name)
		}
		if !seen[f] {
			seen[f] = true
			fields = append(fields, f)
		}
	}
	return fields, nil
}
