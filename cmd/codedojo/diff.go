package main

import (
	"fmt"
	"os"
	"path/filepath"

	"charm.land/lipgloss/v2"
	"github.com/spf13/cobra"

	"codedojo/internal/content"
	"codedojo/internal/diff"
)

func newDiffCmd() *cobra.Command {
	var (
		stat    bool
		noColor bool
	)
	cmd := &cobra.Command{
		Use:   "diff <before> <after>",
		Short: "Print a unified patch between two solution snapshots",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			before, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			after, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			ops := diff.Text(string(before), string(after))
			out := cmd.OutOrStdout()
			if stat {
				s := diff.Count(ops)
				_, err := fmt.Fprintf(out, "+%d -%d =%d\n", s.Added, s.Removed, s.Unchanged)
				return err
			}
			patch, err := diff.UnifiedPatch(ops, "a/"+filepath.Base(args[0]), "b/"+filepath.Base(args[1]))
			if err != nil {
				return err
			}
			if len(patch) == 0 {
				_, _ = lipgloss.Fprintln(out, dimStyle.Render("no changes"))
				return nil
			}
			text := string(patch)
			if !noColor {
				text = content.Highlight(text, "diff", "")
			}
			_, err = fmt.Fprint(out, text)
			return err
		},
	}
	cmd.Flags().BoolVar(&stat, "stat", false, "print line counts only")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "plain output")
	return cmd
}
