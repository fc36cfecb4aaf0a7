package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"codedojo/internal/app"
	"codedojo/internal/telemetry"
)

type globalFlags struct {
	envFile      string
	apiBaseURL   string
	dataDir      string
	challengeDir string
	debug        bool
}

// cliContext carries the resolved configuration to every subcommand.
type cliContext struct {
	flags globalFlags
	cfg   app.Config
}

func newRootCmd() *cobra.Command {
	cc := &cliContext{}
	root := &cobra.Command{
		Use:           "codedojo",
		Short:         "Practice Python coding challenges in the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cc.load(cmd)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&cc.flags.envFile, "env-file", ".env", "dotenv file layered under the environment")
	pf.StringVar(&cc.flags.apiBaseURL, "api", "", "challenge backend base URL")
	pf.StringVar(&cc.flags.dataDir, "data-dir", "", "directory for progress and solution files")
	pf.StringVar(&cc.flags.challengeDir, "challenges", "", "directory of challenge YAML files")
	pf.BoolVar(&cc.flags.debug, "debug", false, "debug logging")

	play := newPlayCmd(cc)
	root.RunE = play.RunE
	root.Flags().AddFlagSet(play.Flags())

	root.AddCommand(
		play,
		newRunCmd(cc),
		newHintsCmd(cc),
		newDiffCmd(),
		newServeDevCmd(cc),
		newChallengesCmd(cc),
		newSettingsCmd(cc),
	)
	return root
}

func (cc *cliContext) load(cmd *cobra.Command) error {
	cfg, err := app.LoadConfig(cc.flags.envFile)
	if err != nil {
		return err
	}
	pf := cmd.Flags()
	if pf.Changed("api") {
		cfg.APIBaseURL = cc.flags.apiBaseURL
	}
	if pf.Changed("data-dir") {
		cfg.DataDir = cc.flags.dataDir
	}
	if pf.Changed("challenges") {
		cfg.ChallengeDir = cc.flags.challengeDir
	}
	if pf.Changed("debug") {
		cfg.Debug = cc.flags.debug
	}
	cc.cfg = cfg
	return nil
}

// stderrLogger is used by the headless commands; the TUI logs to a file.
// Without --debug the headless commands stay quiet.
func (cc *cliContext) stderrLogger() *telemetry.Logger {
	if !cc.cfg.Debug {
		return telemetry.NewWriterLogger(io.Discard, false)
	}
	return telemetry.NewWriterLogger(os.Stderr, true)
}
