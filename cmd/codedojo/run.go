package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"charm.land/lipgloss/v2"
	"github.com/spf13/cobra"

	"codedojo/internal/backend"
	"codedojo/internal/grading"
	"codedojo/internal/stream"
)

var errTestsFailed = errors.New("not every test passed")

var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	dimStyle  = lipgloss.NewStyle().Faint(true)
)

func newRunCmd(cc *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run <challenge-id> <solution.py>",
		Short: "Run a solution file against a challenge's test cases",
		Args:  cobra.ExactArgs(2),
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
			code, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}

			body, err := h.client.RunTests(ctx, string(code), ch.TestCases)
			if err != nil {
				return errors.New(backend.UserMessage(err))
			}
			defer body.Close()

			consumer := stream.NewConsumer(stream.WithLogger(h.log), stream.WithMetrics(h.metrics))
			return reportRun(ctx, consumer, body, cmd.OutOrStdout())
		},
	}
}

// reportRun prints each result as it arrives. A run cut short by a
// transport failure or cancellation never counts as passing.
func reportRun(ctx context.Context, consumer *stream.Consumer, body io.Reader, out io.Writer) error {
	var results []grading.TestResult
	stats := consumer.Consume(ctx, body, func(r grading.TestResult) {
		results = append(results, r)
		printResult(out, r)
	})
	if stats.Err != nil {
		return errors.New(backend.UserMessage(stats.Err))
	}
	if stats.Dropped > 0 {
		_, _ = lipgloss.Fprintln(out, dimStyle.Render(fmt.Sprintf("%d malformed lines skipped", stats.Dropped)))
	}

	sum := grading.Summarize(results)
	if !grading.CanSubmit(results) {
		_, _ = lipgloss.Fprintln(out, failStyle.Render(sum.String()))
		return errTestsFailed
	}
	_, _ = lipgloss.Fprintln(out, passStyle.Render(sum.String()))
	return nil
}

func printResult(w io.Writer, r grading.TestResult) {
	label := failStyle.Render(string(r.Status))
	if r.Passed() {
		label = passStyle.Render(string(r.Status))
	}
	line := fmt.Sprintf("case %-3d %s", r.TestCase, label)
	if r.Message != "" {
		line += "  " + r.Message
	}
	_, _ = lipgloss.Fprintln(w, line)
	if !r.Passed() && len(r.Expected) > 0 {
		_, _ = lipgloss.Fprintln(w, dimStyle.Render(fmt.Sprintf("         expected %s, got %s", r.Expected, orNone(r.Actual))))
	}
}

func orNone(raw []byte) string {
	if len(raw) == 0 {
		return "nothing"
	}
	return string(raw)
}
