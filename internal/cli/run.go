package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dshills/cmdpalette/internal/logging"
	"github.com/dshills/cmdpalette/internal/palette"
	"github.com/dshills/cmdpalette/internal/tui"
)

// ErrNotTerminal is returned by the interactive palette when stdin or
// stdout is not a terminal.
var ErrNotTerminal = errors.New("interactive palette needs a terminal; use query or exec instead")

// isTerminal is replaced in tests.
var isTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Open the interactive palette",
		Long: `Open the interactive palette.

Type to filter, Up/Down (or Ctrl+P/Ctrl+N) to move, Enter to run the
selected command, and Esc to quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInteractive(cmd, opts, once)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "exit after the first command runs")
	return cmd
}

func runInteractive(cmd *cobra.Command, opts *rootOptions, once bool) error {
	if !isTerminal() {
		return ErrNotTerminal
	}

	a, err := newApp(cmd, opts, true)
	if err != nil {
		return err
	}
	defer a.Close()

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("creating screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("initializing screen: %w", err)
	}
	defer screen.Fini()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	popts := []tui.Option{
		tui.WithLogger(logging.Component(a.log, "tui")),
		tui.WithExecute(func(ctx context.Context, ev palette.ExecuteEvent) error {
			return a.execute(ctx, ev.ID, ev.Args)
		}),
	}
	if once {
		popts = append(popts, tui.WithExitOnExecute())
	}

	err = tui.New(screen, a.engine, popts...).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
