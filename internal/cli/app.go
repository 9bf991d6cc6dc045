package cli

import (
	"context"
	"embed"
	"fmt"
	"io"
	"slices"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/dshills/cmdpalette/internal/command"
	"github.com/dshills/cmdpalette/internal/config"
	"github.com/dshills/cmdpalette/internal/fuzzy"
	"github.com/dshills/cmdpalette/internal/logging"
	"github.com/dshills/cmdpalette/internal/palette"
	"github.com/dshills/cmdpalette/internal/script"
	"github.com/dshills/cmdpalette/internal/sections"
)

//go:embed demo.yaml
var demoFS embed.FS

const demoFile = "demo.yaml"

// app wires the palette components for one command invocation.
type app struct {
	cfg      config.Config
	log      logr.Logger
	store    *palette.Store
	registry *command.Registry
	engine   *palette.Engine
	runtime  *script.Runtime
	watcher  *sections.Watcher
	applied  []*sections.Applied
	cleanup  func()
}

// newApp loads settings and sections. Interactive sessions log to a file or
// nowhere, never to the terminal.
func newApp(cmd *cobra.Command, opts *rootOptions, interactive bool) (*app, error) {
	cfg, err := config.Load(opts.configPath, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logOpts := logging.Options{Level: cfg.Log.Level, File: cfg.Log.File}
	if interactive && logOpts.File == "" {
		logOpts.Output = io.Discard
	}
	log, cleanup, err := logging.New(logOpts)
	if err != nil {
		return nil, err
	}

	matcher := newMatcher(cfg.Matcher)
	fields, err := cfg.Matcher.ParsedFields()
	if err != nil {
		cleanup()
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		cleanup: cleanup,
	}
	a.store = palette.NewStore(palette.WithStoreLogger(logging.Component(log, "store")))
	a.registry = command.NewRegistry(
		command.WithLogger(logging.Component(log, "registry")),
		command.WithHistorySize(cfg.History.Size),
	)
	a.runtime = script.New(script.WithLogger(logging.Component(log, "lua")))
	if cfg.History.Boost {
		matcher = a.registry.BoostRecent(matcher)
	}
	a.engine = palette.NewEngine(a.store, matcher,
		palette.WithRegistry(a.registry),
		palette.WithFields(fields...),
		palette.WithLogger(logging.Component(log, "engine")),
	)

	if err := a.loadSections(); err != nil {
		a.Close()
		return nil, err
	}
	log.V(1).Info("palette ready", "sections", a.store.Len(), "commands", a.registry.Len())
	return a, nil
}

// newMatcher builds the matcher selected by the settings.
func newMatcher(cfg config.MatcherConfig) palette.Matcher {
	if cfg.Algorithm == config.AlgorithmSahilm {
		m := fuzzy.NewSahilmMatcher()
		m.MinScore = cfg.MinScore
		return m
	}

	opts := fuzzy.DefaultOptions()
	opts.CacheSize = cfg.CacheSize
	opts.CaseSensitive = cfg.CaseSensitive
	opts.MinScore = cfg.MinScore
	m := fuzzy.NewMatcher(opts)
	if cfg.Workers != 0 {
		return fuzzy.NewAsyncMatcher(m, cfg.Workers)
	}
	return m
}

func (a *app) apply(f *sections.File) (*sections.Applied, error) {
	return sections.Apply(a.store, a.registry, f,
		sections.WithRuntime(a.runtime),
		sections.WithFallback(a.fallback),
		sections.WithApplyLogger(logging.Component(a.log, "sections")),
	)
}

// fallback runs items that have no lua action.
func (a *app) fallback(ctx context.Context, args any) error {
	logging.FromContext(ctx).Info("command has no action", "args", args)
	return nil
}

// loadSections applies the configured section files, or the built-in demo
// when there are none. With watching enabled, files are reloaded on change.
func (a *app) loadSections() error {
	files := a.cfg.Sections.Files
	if len(files) == 0 {
		f, err := sections.LoadFS(demoFS, demoFile)
		if err != nil {
			return err
		}
		applied, err := a.apply(f)
		if err != nil {
			return err
		}
		a.applied = append(a.applied, applied)
		return nil
	}

	if a.cfg.Sections.Watch {
		w, err := sections.NewWatcher(a.apply,
			sections.WithWatcherLogger(logging.Component(a.log, "watcher")),
			sections.WithDebounce(a.cfg.Sections.Debounce),
		)
		if err != nil {
			return fmt.Errorf("starting watcher: %w", err)
		}
		a.watcher = w
		for _, path := range files {
			if err := w.Add(path); err != nil {
				return err
			}
		}
		return nil
	}

	for _, path := range files {
		f, err := sections.Load(path)
		if err != nil {
			return err
		}
		applied, err := a.apply(f)
		if err != nil {
			return err
		}
		a.applied = append(a.applied, applied)
	}
	return nil
}

// execute runs id through the registry with the app logger on ctx.
func (a *app) execute(ctx context.Context, id string, args any) error {
	return a.registry.Execute(logging.WithLogger(ctx, a.log), id, args)
}

// Close releases everything newApp started, in reverse order.
func (a *app) Close() {
	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			a.log.Error(err, "closing watcher")
		}
	}
	for _, applied := range slices.Backward(a.applied) {
		applied.Dispose()
	}
	a.engine.Close()
	a.runtime.Close()
	a.cleanup()
}
