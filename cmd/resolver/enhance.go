package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/helixir/citation-resolver/internal/domain"
)

func newEnhanceCmd() *cobra.Command {
	var (
		inputPath  string
		outputPath string
		batchSize  int
		showStats  bool
	)

	cmd := &cobra.Command{
		Use:   "enhance",
		Short: "Fill missing fields on a file of citations",
		Long: "enhance reads a JSON array of citation records, resolves each against\n" +
			"the enabled sources and writes the enriched records back out.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			citations, err := readCitations(inputPath)
			if err != nil {
				return err
			}
			app.logger.Info().Int("citations", len(citations)).Msg("starting enhancement")

			if err := app.enhancer.BatchEnhance(ctx, splitBatches(citations, batchSize)); err != nil {
				return fmt.Errorf("enhance: %w", err)
			}

			if err := writeCitations(outputPath, citations); err != nil {
				return err
			}

			stats := app.enhancer.Stats()
			app.logger.Info().
				Int("processed", stats.CitationsProcessed).
				Int("enhanced", stats.CitationsEnhanced).
				Msg("enhancement complete")

			if showStats {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"enhancer": stats,
					"sources":  app.registry.StatsBySource(),
				})
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "input JSON file (required)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output JSON file (default: stdout)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 50, "citations per batch")
	cmd.Flags().BoolVar(&showStats, "stats", false, "print enhancement statistics afterwards")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

// readCitations loads a JSON array of citations and assigns IDs to records
// that lack one.
func readCitations(path string) ([]*domain.Citation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	var citations []*domain.Citation
	if err := json.Unmarshal(data, &citations); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}

	for _, c := range citations {
		if c != nil && c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		if c != nil {
			c.DOI = domain.NormalizeDOI(c.DOI)
		}
	}
	return citations, nil
}

func writeCitations(path string, citations []*domain.Citation) error {
	data, err := json.MarshalIndent(citations, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// splitBatches chunks citations into batches of at most size records.
func splitBatches(citations []*domain.Citation, size int) [][]*domain.Citation {
	if size <= 0 {
		size = 50
	}
	var batches [][]*domain.Citation
	for start := 0; start < len(citations); start += size {
		end := start + size
		if end > len(citations) {
			end = len(citations)
		}
		batches = append(batches, citations[start:end])
	}
	return batches
}
