package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func runSearch(c *client, query string, k int, minScore float64, out io.Writer) error {
	if query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	payload := map[string]interface{}{
		"query":     query,
		"k":         k,
		"min_score": minScore,
	}
	return runPost(c, "/api/search", payload, out)
}

type retrieveOptions struct {
	Query     string
	Project   string
	Branch    string
	MaxEvents int
	// Weights are sent only when at least one weight flag was set.
	Weights map[string]float64
}

func runRetrieve(c *client, opts retrieveOptions, out io.Writer) error {
	if opts.Query == "" || opts.Project == "" {
		return fmt.Errorf("--query and --project required")
	}
	payload := map[string]interface{}{
		"query":   opts.Query,
		"project": opts.Project,
	}
	if opts.Branch != "" {
		payload["branch"] = opts.Branch
	}
	if opts.MaxEvents > 0 {
		payload["max_events"] = opts.MaxEvents
	}
	if len(opts.Weights) > 0 {
		payload["weights"] = opts.Weights
	}
	return runPost(c, "/api/retrieve", payload, out)
}

func init() {
	var query string
	var topK int
	var minScore float64
	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Nearest-neighbour search over indexed events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(apiClient(), query, topK, minScore, cmd.OutOrStdout())
		},
	}
	searchCmd.Flags().StringVarP(&query, "query", "q", "", "Search query text (required)")
	searchCmd.Flags().IntVarP(&topK, "topk", "k", 10, "Number of top results to return")
	searchCmd.Flags().Float64Var(&minScore, "min-score", 0, "Drop hits scoring below this")
	_ = searchCmd.MarkFlagRequired("query")
	rootCmd.AddCommand(searchCmd)

	var opts retrieveOptions
	var semantic, recency, importance float64
	retrieveCmd := &cobra.Command{
		Use:   "retrieve",
		Short: "Rank events by similarity, recency and importance",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			if f.Changed("semantic") || f.Changed("recency") || f.Changed("importance") {
				opts.Weights = map[string]float64{
					"semantic":   semantic,
					"recency":    recency,
					"importance": importance,
				}
			}
			return runRetrieve(apiClient(), opts, cmd.OutOrStdout())
		},
	}
	rf := retrieveCmd.Flags()
	rf.StringVarP(&opts.Query, "query", "q", "", "Query text (required)")
	rf.StringVarP(&opts.Project, "project", "p", "", "Project (required)")
	rf.StringVarP(&opts.Branch, "branch", "b", "", "Event branch label (default main)")
	rf.IntVarP(&opts.MaxEvents, "max-events", "n", 0, "Maximum results (server default 50)")
	rf.Float64Var(&semantic, "semantic", 1.6, "Semantic weight")
	rf.Float64Var(&recency, "recency", 1.0, "Recency weight")
	rf.Float64Var(&importance, "importance", 2.0, "Importance weight")
	rootCmd.AddCommand(retrieveCmd)
}
