package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"codedojo/internal/app"
)

func newSettingsCmd(cc *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "settings [key=value...]",
		Short: "Show or persist trainer defaults",
		Long: "Persisted settings replace built-in defaults when the trainer starts; " +
			"environment variables and flags still win. Keys: " + strings.Join(app.SettingKeys(), ", ") + ".",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := cc.cfg
			if err := cfg.Validate(); err != nil {
				return err
			}
			updates := map[string]string{}
			for _, arg := range args {
				key, value, ok := strings.Cut(arg, "=")
				if !ok {
					return fmt.Errorf("expected key=value, got %q", arg)
				}
				key = strings.TrimSpace(key)
				if err := app.ValidateSetting(key, value); err != nil {
					return err
				}
				updates[key] = strings.TrimSpace(value)
			}

			store, err := app.OpenStore(cfg.DataDir)
			if err != nil {
				return err
			}
			defer store.Close()
			ctx := cmd.Context()
			if err := store.SaveSettings(ctx, updates); err != nil {
				return fmt.Errorf("save settings: %w", err)
			}
			values, err := store.LoadSettings(ctx)
			if err != nil {
				return fmt.Errorf("load settings: %w", err)
			}
			keys := make([]string, 0, len(values))
			for k := range values {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			out := cmd.OutOrStdout()
			for _, k := range keys {
				fmt.Fprintf(out, "%s=%s\n", k, values[k])
			}
			return nil
		},
	}
}
