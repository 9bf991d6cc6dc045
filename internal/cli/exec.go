package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/dshills/cmdpalette/internal/command"
)

func newExecCommand(opts *rootOptions) *cobra.Command {
	var argsJSON string
	cmd := &cobra.Command{
		Use:   "exec <id>",
		Short: "Run a command by id",
		Long: `Run a command by id.

Without --args the command runs with the args declared in its section file.
--args replaces them with a JSON value, for example --args '["a","b"]'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			a, err := newApp(cmd, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			item, ok := a.registry.Lookup(id)
			if !ok {
				return fmt.Errorf("%w: %s", command.ErrUnknownCommand, id)
			}
			cmdArgs := item.Args
			if cmd.Flags().Changed("args") {
				if cmdArgs, err = parseArgs(argsJSON); err != nil {
					return err
				}
			}

			if err := a.execute(cmd.Context(), id, cmdArgs); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "executed %s\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&argsJSON, "args", "", "command arguments as JSON")
	return cmd
}

// parseArgs decodes a JSON value into plain Go values: numbers become
// float64, objects map[string]any and arrays []any.
func parseArgs(s string) (any, error) {
	if !gjson.Valid(s) {
		return nil, fmt.Errorf("--args is not valid JSON: %q", s)
	}
	return gjson.Parse(s).Value(), nil
}
