// Package cli implements the cmdpalette command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/cmdpalette/internal/config"
)

// BuildInfo identifies the binary. main fills it from ldflags.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

type rootOptions struct {
	configPath string
}

// NewRootCommand builds the cmdpalette command tree. Without a subcommand
// it starts the interactive palette.
func NewRootCommand(info BuildInfo) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "cmdpalette",
		Short: "Fuzzy-filter and run commands grouped in sections",
		Long: `cmdpalette lists commands grouped into sections, filters them with a
fuzzy query, and runs the one you pick.

Sections come from YAML or TOML files given with --sections or the
sections.files setting. Without any, a built-in demo is shown.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInteractive(cmd, opts, false)
		},
	}

	d := config.Default()
	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (yaml or toml)")
	flags.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	flags.String("log-file", d.Log.File, "write logs to this file")
	flags.String("matcher", d.Matcher.Algorithm, "matcher algorithm (builtin, sahilm)")
	flags.Bool("case-sensitive", d.Matcher.CaseSensitive, "match case exactly")
	flags.StringSlice("fields", d.Matcher.Fields, "item fields to match (title, caption, id)")
	flags.Int("workers", d.Matcher.Workers, "parallel matcher workers (0 = none, -1 = one per CPU)")
	flags.StringSlice("sections", d.Sections.Files, "section files to load")
	flags.Bool("watch", d.Sections.Watch, "reload section files when they change")

	root.AddCommand(
		newRunCommand(opts),
		newQueryCommand(opts),
		newExecCommand(opts),
		newSectionsCommand(opts),
		newVersionCommand(info),
	)
	return root
}

func newVersionCommand(info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cmdpalette %s\n", info.Version)
			fmt.Fprintf(out, "Commit: %s\n", info.Commit)
			fmt.Fprintf(out, "Built: %s\n", info.Date)
		},
	}
}
