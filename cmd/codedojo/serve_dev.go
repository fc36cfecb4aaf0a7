package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"codedojo/internal/catalog"
	"codedojo/internal/devserver"
	"codedojo/internal/sandbox"
	"codedojo/internal/telemetry"
)

func newServeDevCmd(cc *cliContext) *cobra.Command {
	var (
		addr        string
		python      string
		caseTimeout time.Duration
		secret      string
		logPath     string
	)
	cmd := &cobra.Command{
		Use:   "serve-dev",
		Short: "Serve the challenge backend offline from local YAML files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dir := cc.cfg.ChallengeDir
			if _, err := os.Stat(dir); err != nil {
				return fmt.Errorf("challenge directory: %w", err)
			}

			log := telemetry.NewWriterLogger(os.Stderr, cc.cfg.Debug)
			if logPath != "" {
				fileLog, err := telemetry.NewLogger(logPath, cc.cfg.Debug)
				if err != nil {
					return err
				}
				defer fileLog.Close()
				log = fileLog
			}

			runner := sandbox.NewManager(sandbox.Options{Mode: python, Timeout: caseTimeout})
			engine, err := runner.Detect(ctx, "")
			if err != nil {
				return err
			}
			log.Info("devserver.python", map[string]any{"path": engine.Path, "version": engine.Version})

			srv := devserver.New(devserver.Config{
				Catalog:    catalog.NewDirCatalog(dir),
				Runner:     runner,
				Logger:     log,
				Metrics:    telemetry.NewMetrics(),
				SecretName: secret,
			})
			fmt.Fprintf(cmd.ErrOrStderr(), "serving %s on http://%s (python %s)\n", dir, addr, engine.Version)
			return srv.ListenAndServe(ctx, addr)
		},
	}
	f := cmd.Flags()
	f.StringVar(&addr, "addr", "127.0.0.1:8000", "listen address")
	f.StringVar(&python, "python", "auto", "python interpreter, or auto")
	f.DurationVar(&caseTimeout, "case-timeout", 5*time.Second, "time limit per test case")
	f.StringVar(&secret, "secret-name", "GEMINI_API_KEY", "string that halts a run when found in submitted code")
	f.StringVar(&logPath, "log", "", "write JSON logs to this file instead of stderr")
	return cmd
}
