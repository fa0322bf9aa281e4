package main

import (
	"context"
	"encoding/json"
	"io"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/helixir/citation-resolver/internal/domain"
	"github.com/helixir/citation-resolver/internal/match"
)

// rankedCandidate is the resolve command's output record.
type rankedCandidate struct {
	*domain.MatchCandidate
	Rank int `json:"rank"`
}

func newResolveCmd() *cobra.Command {
	var (
		title   string
		authors []string
		year    int
		journal string
		doi     string
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a single citation and print ranked candidates",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			citation := domain.NewCitation(title)
			citation.Authors = authors
			citation.Year = year
			citation.Journal = journal
			citation.DOI = domain.NormalizeDOI(doi)

			results := app.registry.ResolveAll(ctx, citation)

			var candidates []*domain.MatchCandidate
			for _, result := range results {
				if result.Error != nil {
					app.logger.Warn().Err(result.Error).Str("source", result.Source).Msg("source failed")
					continue
				}
				for _, cand := range result.Candidates {
					match.ValidateMatch(citation, cand)
					candidates = append(candidates, cand)
				}
			}

			// Passing candidates first, highest score first; rejected
			// candidates trail with their reasons visible.
			sort.SliceStable(candidates, func(i, j int) bool {
				if candidates[i].PassedConstraints != candidates[j].PassedConstraints {
					return candidates[i].PassedConstraints
				}
				return candidates[i].OverallScore() > candidates[j].OverallScore()
			})

			ranked := make([]rankedCandidate, len(candidates))
			for i, cand := range candidates {
				ranked[i] = rankedCandidate{MatchCandidate: cand, Rank: i + 1}
			}
			return printJSON(cmd.OutOrStdout(), ranked)
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "citation title (required)")
	cmd.Flags().StringSliceVar(&authors, "author", nil, "author name (repeatable)")
	cmd.Flags().IntVar(&year, "year", 0, "publication year")
	cmd.Flags().StringVar(&journal, "journal", "", "journal or venue name")
	cmd.Flags().StringVar(&doi, "doi", "", "known DOI")
	_ = cmd.MarkFlagRequired("title")

	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
