package main

import (
	"context"

	"github.com/spf13/cobra"
)

// sourceInfo is one row of the stats command's output.
type sourceInfo struct {
	Source    string  `json:"source"`
	Enabled   bool    `json:"enabled"`
	RateLimit float64 `json:"rate_limit"`
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the configured sources and cache state",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			cfg := app.cfg
			infos := []sourceInfo{
				{"crossref", cfg.Sources.Crossref.Enabled, cfg.Sources.Crossref.RateLimit},
				{"openalex", cfg.Sources.OpenAlex.Enabled, cfg.Sources.OpenAlex.RateLimit},
				{"semanticscholar", cfg.Sources.SemanticScholar.Enabled, cfg.Sources.SemanticScholar.RateLimit},
				{"opencitations", cfg.Sources.OpenCitations.Enabled, cfg.Sources.OpenCitations.RateLimit},
				{"arxiv", cfg.Sources.ArXiv.Enabled, cfg.Sources.ArXiv.RateLimit},
				{"scholarly", cfg.Sources.Scholarly.Enabled, cfg.Sources.Scholarly.RateLimit},
			}

			out := map[string]any{
				"sources": infos,
				"cache": map[string]any{
					"backend": cfg.Cache.Backend,
					"path":    cfg.Cache.Path,
					"ttl":     cfg.Cache.TTL.String(),
				},
			}

			if purger, ok := app.cache.(interface {
				Purge(ctx context.Context) (int64, error)
			}); ok {
				if purged, err := purger.Purge(cmd.Context()); err == nil {
					out["cache"].(map[string]any)["expired_purged"] = purged
				}
			}

			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}
