package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSectionsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sections",
		Short: "List the loaded sections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			for _, sec := range a.store.Sections() {
				heading := sec.Heading
				if heading == "" {
					heading = "-"
				}
				fmt.Fprintf(out, "%s\t%s\t%d\n", sec.ID, heading, len(sec.Items))
			}
			return nil
		},
	}
}
