package main

import (
	"errors"
	"fmt"

	"charm.land/lipgloss/v2"
	"github.com/spf13/cobra"

	"codedojo/internal/backend"
	"codedojo/internal/content"
	"codedojo/internal/hints"
	"codedojo/internal/state"
)

var titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7AA2F7"))

func newHintsCmd(cc *cliContext) *cobra.Command {
	var (
		level   int
		reveal  bool
		reset   bool
		noColor bool
		width   int
	)
	cmd := &cobra.Command{
		Use:   "hints <challenge-id>",
		Short: "Show unlocked hints, unlocking more up to --level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := cc.headless()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			ch, err := h.catalog.Get(ctx, args[0])
			if err != nil {
				return fmt.Errorf("load challenge: %w", err)
			}
			store, err := h.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			kv, owned, err := state.OpenKV(h.cfg.KVBackend, h.cfg.DataDir, store)
			if err != nil {
				return err
			}
			if owned {
				defer kv.Close()
			}

			engine := hints.NewEngine(h.client, kv, hints.WithLogger(h.log), hints.WithMetrics(h.metrics))
			if err := engine.Enter(ctx, ch.ID); err != nil {
				return err
			}
			req := backend.HintRequest{Instructions: ch.Instructions, Examples: ch.Examples}
			if reset {
				err = engine.Reset(ctx, req)
			} else {
				err = engine.Load(ctx, req, hints.LoadOptions{})
			}
			if err != nil {
				return errors.New(backend.UserMessage(err))
			}

			out := cmd.OutOrStdout()
			for engine.Snapshot().UnlockedLevel < level {
				adv, err := engine.RequestMore(ctx)
				if errors.Is(err, hints.ErrExhausted) {
					break
				}
				if err != nil {
					return errors.New(backend.UserMessage(err))
				}
				if !adv.NeedsConfirm {
					continue
				}
				if !reveal {
					_ = engine.Cancel()
					_, _ = lipgloss.Fprintln(out, dimStyle.Render("The final hint stays hidden; pass --reveal to unlock it."))
					break
				}
				if _, err := engine.Confirm(ctx); err != nil {
					return errors.New(backend.UserMessage(err))
				}
			}

			snap := engine.Snapshot()
			for _, hint := range snap.Unlocked() {
				_, _ = lipgloss.Fprintln(out, titleStyle.Render(fmt.Sprintf("%d. %s", hint.Level, hints.DisplayTitle(hint))))
				_, _ = lipgloss.Fprintln(out, content.Render(content.Parse(hint.Content), content.RenderOptions{Width: width, Color: !noColor}))
				_, _ = lipgloss.Fprintln(out)
			}
			locked := len(snap.Hints) - len(snap.Unlocked())
			if locked > 0 {
				_, _ = lipgloss.Fprintln(out, dimStyle.Render(fmt.Sprintf("%d more locked", locked)))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&level, "level", 0, "unlock hints up to this level")
	f.BoolVar(&reveal, "reveal", false, "confirm unlocking the final hint")
	f.BoolVar(&reset, "reset", false, "regenerate the ladder and reset progress")
	f.BoolVar(&noColor, "no-color", false, "plain output")
	f.IntVar(&width, "width", 80, "wrap width")
	return cmd
}
