package main

import (
	"github.com/spf13/cobra"

	"codedojo/internal/app"
)

func newPlayCmd(cc *cliContext) *cobra.Command {
	var (
		dev   bool
		demo  string
		kv    string
		ascii bool
		style string
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Open the challenge trainer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := cc.cfg
			f := cmd.Flags()
			if f.Changed("dev") {
				cfg.Dev = dev
			}
			if f.Changed("demo") {
				cfg.DemoScenario = demo
				cfg.Dev = true
			}
			if f.Changed("kv") {
				cfg.KVBackend = kv
			}
			if f.Changed("ascii") {
				cfg.UI.ASCIIOnly = ascii
			}
			if f.Changed("style") {
				cfg.UI.StyleVariant = style
			}

			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Run(cmd.Context())
		},
	}
	f := cmd.Flags()
	f.BoolVar(&dev, "dev", false, "serve /__dev and /metrics on the dev listener")
	f.StringVar(&demo, "demo", "", "start in a demo scenario (implies --dev)")
	f.StringVar(&kv, "kv", "", "hint progress store: sqlite, badger or memory")
	f.BoolVar(&ascii, "ascii", false, "ASCII-only glyphs")
	f.StringVar(&style, "style", "", "style variant: night, paper or retro")
	return cmd
}
