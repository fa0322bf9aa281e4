// Package main provides the citation resolver command line interface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "resolver",
		Short: "Resolve and enrich bibliographic citations",
		Long: "resolver matches structured citation records against Crossref, OpenAlex,\n" +
			"Semantic Scholar, OpenCitations, arXiv and web search, and fills missing\n" +
			"fields from the best-matching records.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newEnhanceCmd())
	root.AddCommand(newResolveCmd())
	root.AddCommand(newStatsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
