package main

import (
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

func runCommit(c *client, branch, message, author string, eventIDs, tags []string, out io.Writer) error {
	if branch == "" || message == "" || len(eventIDs) == 0 {
		return fmt.Errorf("--branch, --message and at least one --event required")
	}
	payload := map[string]interface{}{
		"event_ids": eventIDs,
		"message":   message,
	}
	if author != "" {
		payload["author"] = author
	}
	if len(tags) > 0 {
		payload["tags"] = tags
	}
	// Branch names may contain '/', which the server route accepts as is.
	return runPost(c, "/api/branches/"+branch+"/commits", payload, out)
}

func init() {
	branchCmd := &cobra.Command{Use: "branch", Short: "Memory branch operations"}

	var description string
	createCmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a branch (no-op when it exists)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]interface{}{"name": args[0], "description": description}
			return runPost(apiClient(), "/api/branches", payload, cmd.OutOrStdout())
		},
	}
	createCmd.Flags().StringVarP(&description, "description", "d", "", "Branch description")
	branchCmd.AddCommand(createCmd)

	branchCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List branches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(apiClient(), "/api/branches", nil, cmd.OutOrStdout())
		},
	})

	var logLimit int
	logCmd := &cobra.Command{
		Use:   "log NAME",
		Short: "Show the commit chain of a branch, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := url.Values{}
			if logLimit > 0 {
				v.Set("limit", strconv.Itoa(logLimit))
			}
			return runGet(apiClient(), "/api/branches/"+args[0]+"/log", v, cmd.OutOrStdout())
		},
	}
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 0, "Maximum commits")
	branchCmd.AddCommand(logCmd)
	rootCmd.AddCommand(branchCmd)

	var branch, message, author string
	var eventIDs, commitTags []string
	commitCmd := &cobra.Command{
		Use:   "commit",
		Short: "Snapshot events onto a branch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommit(apiClient(), branch, message, author, eventIDs, commitTags, cmd.OutOrStdout())
		},
	}
	commitCmd.Flags().StringVarP(&branch, "branch", "b", "main", "Branch")
	commitCmd.Flags().StringVarP(&message, "message", "m", "", "Commit message (required)")
	commitCmd.Flags().StringVar(&author, "author", "", "Author (default system)")
	commitCmd.Flags().StringSliceVarP(&eventIDs, "event", "e", nil, "Event ID (repeatable)")
	commitCmd.Flags().StringSliceVar(&commitTags, "tag", nil, "Commit label (repeatable)")
	rootCmd.AddCommand(commitCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "show COMMIT_ID",
		Short: "Show a commit and its events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := url.PathEscape(args[0])
			if err := runGet(apiClient(), "/api/commits/"+id, nil, cmd.OutOrStdout()); err != nil {
				return err
			}
			return runGet(apiClient(), "/api/commits/"+id+"/events", nil, cmd.OutOrStdout())
		},
	})

	tagCmd := &cobra.Command{Use: "tag", Short: "Commit tag operations"}
	var tagMessage string
	tagCreate := &cobra.Command{
		Use:   "create NAME COMMIT_ID",
		Short: "Tag a commit (no-op when the tag exists)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]interface{}{"tag_name": args[0], "commit_id": args[1], "message": tagMessage}
			return runPost(apiClient(), "/api/tags", payload, cmd.OutOrStdout())
		},
	}
	tagCreate.Flags().StringVarP(&tagMessage, "message", "m", "", "Tag message")
	tagCmd.AddCommand(tagCreate)
	tagCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tags",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(apiClient(), "/api/tags", nil, cmd.OutOrStdout())
		},
	})
	rootCmd.AddCommand(tagCmd)
}
