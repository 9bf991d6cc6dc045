package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"

	"github.com/dshills/cmdpalette/internal/palette"
)

const titleColumn = 32

func newQueryCommand(opts *rootOptions) *cobra.Command {
	var (
		asJSON bool
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "query [text...]",
		Short: "Print the commands matching a query, best first",
		Long: `Print the commands matching a query, best first.

Words are joined with single spaces. An empty query lists every command in
section order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.SetQuery(cmd.Context(), strings.Join(args, " ")); err != nil {
				return err
			}
			results := a.engine.Results()
			if limit > 0 && len(results) > limit {
				results = results[:limit]
			}
			if asJSON {
				return writeJSONResults(cmd.OutOrStdout(), results)
			}
			writeResults(cmd.OutOrStdout(), results)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON object per result")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "print at most this many results")
	return cmd
}

// writeResults prints "score  title  id" rows.
func writeResults(w io.Writer, results []palette.MatchResult) {
	for _, r := range results {
		title := runewidth.Truncate(r.Item.Title, titleColumn, "…")
		fmt.Fprintf(w, "%5d  %s  %s\n", r.Score, runewidth.FillRight(title, titleColumn), r.Item.ID)
	}
}

// writeJSONResults prints one object per line:
// {"id":..,"title":..,"caption":..,"shortcut":..,"score":..,"spans":[{"field":..,"start":..,"end":..}]}
func writeJSONResults(w io.Writer, results []palette.MatchResult) error {
	for _, r := range results {
		line, err := resultJSON(r)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// jsonLine builds a JSON object with sjson, keeping the first error.
type jsonLine struct {
	s   string
	err error
}

func (j *jsonLine) set(path string, v any) {
	if j.err == nil {
		j.s, j.err = sjson.Set(j.s, path, v)
	}
}

func resultJSON(r palette.MatchResult) (string, error) {
	j := &jsonLine{s: "{}"}
	j.set("id", r.Item.ID)
	j.set("title", r.Item.Title)
	if r.Item.Caption != "" {
		j.set("caption", r.Item.Caption)
	}
	if r.Item.Shortcut != "" {
		j.set("shortcut", r.Item.Shortcut)
	}
	j.set("score", r.Score)
	j.set("spans", []any{})
	for _, sp := range r.Spans {
		j.set("spans.-1", map[string]any{
			"field": string(sp.Field),
			"start": sp.Start,
			"end":   sp.End,
		})
	}
	if j.err != nil {
		return "", fmt.Errorf("encoding result %s: %w", r.Item.ID, j.err)
	}
	return j.s, nil
}
