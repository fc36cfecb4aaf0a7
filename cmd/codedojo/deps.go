package main

import (
	"os"

	"codedojo/internal/app"
	"codedojo/internal/backend"
	"codedojo/internal/catalog"
	"codedojo/internal/state"
	"codedojo/internal/telemetry"
)

// headless bundles what the non-interactive commands share.
type headless struct {
	cfg     app.Config
	log     *telemetry.Logger
	metrics *telemetry.Metrics
	client  *backend.Client
	catalog catalog.Catalog
}

func (cc *cliContext) headless() (*headless, error) {
	cfg := cc.cfg
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := cc.stderrLogger()
	metrics := telemetry.NewMetrics()
	client, err := backend.NewClient(backend.ClientConfig{
		BaseURL:       cfg.APIBaseURL,
		Timeout:       cfg.HTTPTimeout,
		RatePerSecond: cfg.RequestRate,
		Logger:        log,
		Metrics:       metrics,
	})
	if err != nil {
		return nil, err
	}
	sources := []catalog.Catalog{}
	if cfg.ChallengeDir != "" {
		if _, err := os.Stat(cfg.ChallengeDir); err == nil {
			sources = append(sources, catalog.NewDirCatalog(cfg.ChallengeDir))
		}
	}
	sources = append(sources, client)
	return &headless{
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		client:  client,
		catalog: catalog.NewMerged(sources...),
	}, nil
}

func (h *headless) openStore() (*state.SQLiteStore, error) {
	return app.OpenStore(h.cfg.DataDir)
}
