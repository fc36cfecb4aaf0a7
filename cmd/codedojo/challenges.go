package main

import (
	"fmt"
	"strconv"
	"time"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"

	"codedojo/internal/catalog"
	"codedojo/internal/state"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func newChallengesCmd(cc *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:     "challenges",
		Aliases: []string{"ls"},
		Short:   "List challenges with your progress",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := cc.headless()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			items, err := h.catalog.List(ctx)
			if err != nil {
				return fmt.Errorf("list challenges: %w", err)
			}
			store, err := h.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			progress, err := store.GetProgressMap(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(items) == 0 {
				_, _ = lipgloss.Fprintln(out, dimStyle.Render("no challenges found"))
				return nil
			}
			now := time.Now()
			if _, err := lipgloss.Fprintln(out, challengeTable(items, progress, now).String()); err != nil {
				return err
			}
			last, err := store.GetLastRun(ctx)
			if err != nil {
				return err
			}
			if last != nil {
				_, _ = lipgloss.Fprintln(out, dimStyle.Render(lastRunLine(*last, now)))
			}
			return nil
		},
	}
}

func challengeTable(items []catalog.Challenge, progress map[string]state.ChallengeProgress, now time.Time) *table.Table {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("ID", "TITLE", "LEVEL", "CASES", "BEST", "LAST PLAYED").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, ch := range items {
		best, last := "-", "-"
		if p, ok := progress[ch.ID]; ok {
			if p.SolvedCount > 0 {
				best = humanize.Comma(int64(p.BestScore))
			}
			if !p.LastPlayedTS.IsZero() {
				last = humanize.RelTime(p.LastPlayedTS, now, "ago", "from now")
			}
		}
		t.Row(ch.ID, ch.Title, firstNonEmpty(ch.Difficulty, "-"), strconv.Itoa(len(ch.TestCases)), best, last)
	}
	return t
}

func lastRunLine(r state.LastRun, now time.Time) string {
	outcome := "in progress"
	switch {
	case r.Submitted:
		outcome = "submitted"
	case r.Retired:
		outcome = "retired"
	case r.LastPassed:
		outcome = "passing"
	}
	return fmt.Sprintf("Last session: %s (%s) %s, %s, %s",
		r.ChallengeID,
		firstNonEmpty(r.Difficulty, "-"),
		humanize.RelTime(r.StartTS, now, "ago", "from now"),
		english.Plural(r.Attempts, "run", "runs"),
		outcome,
	)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
