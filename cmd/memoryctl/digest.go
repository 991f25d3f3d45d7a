package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	digestCmd := &cobra.Command{Use: "digest", Short: "LLM summaries with deterministic fallbacks"}

	var project, date string
	period := func(name, short string) *cobra.Command {
		cmd := &cobra.Command{
			Use:   name,
			Short: short,
			RunE: func(cmd *cobra.Command, args []string) error {
				if project == "" {
					return fmt.Errorf("--project required")
				}
				payload := map[string]interface{}{"project": project}
				if date != "" {
					payload["date"] = date
				}
				return runPost(apiClient(), "/api/summaries/"+name, payload, cmd.OutOrStdout())
			},
		}
		cmd.Flags().StringVarP(&project, "project", "p", "", "Project (required)")
		cmd.Flags().StringVarP(&date, "date", "d", "", "Day, or first day of the week, as YYYY-MM-DD")
		return cmd
	}
	digestCmd.AddCommand(period("daily", "Summarize one UTC day"))
	digestCmd.AddCommand(period("weekly", "Summarize seven days and compare with the week before"))

	var days, minOcc int
	patternsCmd := &cobra.Command{
		Use:   "patterns",
		Short: "Find and explain recurring failures",
		RunE: func(cmd *cobra.Command, args []string) error {
			if project == "" {
				return fmt.Errorf("--project required")
			}
			payload := map[string]interface{}{"project": project, "days": days, "min_occurrences": minOcc}
			return runPost(apiClient(), "/api/summaries/patterns", payload, cmd.OutOrStdout())
		},
	}
	patternsCmd.Flags().StringVarP(&project, "project", "p", "", "Project (required)")
	patternsCmd.Flags().IntVar(&days, "days", 7, "Look-back window in days")
	patternsCmd.Flags().IntVar(&minOcc, "min-occurrences", 2, "Minimum failures per pattern")
	digestCmd.AddCommand(patternsCmd)

	rootCmd.AddCommand(digestCmd)
}
