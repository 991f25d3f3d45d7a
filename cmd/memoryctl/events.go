package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// ingestOptions mirror the event fields accepted by POST /api/events.
type ingestOptions struct {
	File       string
	ID         string
	Type       string
	Project    string
	Source     string
	Branch     string
	Timestamp  string
	Importance float64
	Tags       []string
	Message    string
	Data       string
}

func (o ingestOptions) payload(stdin io.Reader) (map[string]interface{}, error) {
	if o.File != "" {
		var r io.Reader = stdin
		if o.File != "-" {
			f, err := os.Open(o.File)
			if err != nil {
				return nil, err
			}
			defer f.Close()
			r = f
		}
		var ev map[string]interface{}
		if err := json.NewDecoder(r).Decode(&ev); err != nil {
			return nil, fmt.Errorf("event file must hold a JSON object: %w", err)
		}
		return ev, nil
	}

	if o.Type == "" || o.Project == "" || o.Source == "" {
		return nil, fmt.Errorf("--type, --project and --source required (or --file)")
	}
	data := map[string]interface{}{}
	if o.Data != "" {
		if err := json.Unmarshal([]byte(o.Data), &data); err != nil {
			return nil, fmt.Errorf("--data must be a JSON object: %w", err)
		}
	}
	if o.Message != "" {
		data["message"] = o.Message
	}
	ev := map[string]interface{}{
		"type":       o.Type,
		"project":    o.Project,
		"source":     o.Source,
		"importance": o.Importance,
		"data":       data,
	}
	if o.ID != "" {
		ev["id"] = o.ID
	}
	if o.Branch != "" {
		ev["branch"] = o.Branch
	}
	if o.Timestamp != "" {
		ev["timestamp"] = o.Timestamp
	}
	if len(o.Tags) > 0 {
		ev["tags"] = o.Tags
	}
	return ev, nil
}

func runIngest(c *client, opts ingestOptions, stdin io.Reader, out io.Writer) error {
	ev, err := opts.payload(stdin)
	if err != nil {
		return err
	}
	data, err := c.post("/api/events", ev)
	if err != nil {
		return err
	}
	return printJSON(out, data)
}

// queryOptions map to the GET /api/events query string.
type queryOptions struct {
	Project       string
	Branch        string
	AllBranches   bool
	Types         []string
	MinImportance float64
	Tags          []string
	ExcludeTags   []string
	Since         string
	Until         string
	Limit         int
	Offset        int
}

func (o queryOptions) values() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("project", o.Project)
	set("branch", o.Branch)
	set("since", o.Since)
	set("until", o.Until)
	if o.AllBranches {
		v.Set("all_branches", "true")
	}
	if len(o.Types) > 0 {
		v.Set("type", strings.Join(o.Types, ","))
	}
	if len(o.Tags) > 0 {
		v.Set("tag", strings.Join(o.Tags, ","))
	}
	if len(o.ExcludeTags) > 0 {
		v.Set("exclude_tag", strings.Join(o.ExcludeTags, ","))
	}
	if o.MinImportance > 0 {
		v.Set("min_importance", strconv.FormatFloat(o.MinImportance, 'f', -1, 64))
	}
	if o.Limit > 0 {
		v.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset > 0 {
		v.Set("offset", strconv.Itoa(o.Offset))
	}
	return v
}

func runQuery(c *client, opts queryOptions, out io.Writer) error {
	data, err := c.get("/api/events", opts.values())
	if err != nil {
		return err
	}
	return printJSON(out, data)
}

func runGet(c *client, path string, query url.Values, out io.Writer) error {
	data, err := c.get(path, query)
	if err != nil {
		return err
	}
	return printJSON(out, data)
}

func init() {
	var in ingestOptions
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Record an event",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(apiClient(), in, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	f := ingestCmd.Flags()
	f.StringVarP(&in.File, "file", "f", "", "Read the event JSON from a file ('-' for stdin)")
	f.StringVar(&in.ID, "id", "", "Event ID (generated by the server when empty)")
	f.StringVarP(&in.Type, "type", "t", "", "Event type, e.g. test-failure")
	f.StringVarP(&in.Project, "project", "p", "", "Project")
	f.StringVarP(&in.Source, "source", "s", "", "Producer of the event")
	f.StringVarP(&in.Branch, "branch", "b", "", "Event branch label (default main)")
	f.StringVar(&in.Timestamp, "timestamp", "", "RFC 3339 timestamp (default now)")
	f.Float64VarP(&in.Importance, "importance", "i", 0, "Importance in [0, 5]")
	f.StringSliceVar(&in.Tags, "tag", nil, "Tag (repeatable)")
	f.StringVarP(&in.Message, "message", "m", "", "Shorthand for data.message")
	f.StringVar(&in.Data, "data", "", "Event data as a JSON object")
	rootCmd.AddCommand(ingestCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "get EVENT_ID",
		Short: "Get an event by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(apiClient(), "/api/events/"+url.PathEscape(args[0]), nil, cmd.OutOrStdout())
		},
	})

	var q queryOptions
	queryCmd := &cobra.Command{
		Use:   "query",
		Short: "Filter stored events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(apiClient(), q, cmd.OutOrStdout())
		},
	}
	qf := queryCmd.Flags()
	qf.StringVarP(&q.Project, "project", "p", "", "Project")
	qf.StringVarP(&q.Branch, "branch", "b", "", "Event branch label (default main)")
	qf.BoolVar(&q.AllBranches, "all-branches", false, "Match every branch label")
	qf.StringSliceVarP(&q.Types, "type", "t", nil, "Event type (repeatable)")
	qf.Float64Var(&q.MinImportance, "min-importance", 0, "Minimum importance")
	qf.StringSliceVar(&q.Tags, "tag", nil, "Required tag (repeatable)")
	qf.StringSliceVar(&q.ExcludeTags, "exclude-tag", nil, "Excluded tag (repeatable)")
	qf.StringVar(&q.Since, "since", "", "RFC 3339 lower bound")
	qf.StringVar(&q.Until, "until", "", "RFC 3339 upper bound")
	qf.IntVarP(&q.Limit, "limit", "n", 0, "Maximum events")
	qf.IntVar(&q.Offset, "offset", 0, "Events to skip")
	rootCmd.AddCommand(queryCmd)

	var recentProject string
	var recentHours, recentLimit int
	recentCmd := &cobra.Command{
		Use:   "recent",
		Short: "List events from the last hours",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := url.Values{}
			if recentProject != "" {
				v.Set("project", recentProject)
			}
			v.Set("hours", strconv.Itoa(recentHours))
			v.Set("limit", strconv.Itoa(recentLimit))
			return runGet(apiClient(), "/api/events/recent", v, cmd.OutOrStdout())
		},
	}
	recentCmd.Flags().StringVarP(&recentProject, "project", "p", "", "Project (all when empty)")
	recentCmd.Flags().IntVar(&recentHours, "hours", 24, "Window in hours")
	recentCmd.Flags().IntVarP(&recentLimit, "limit", "n", 100, "Maximum events")
	rootCmd.AddCommand(recentCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show store and index statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(apiClient(), "/api/stats", nil, cmd.OutOrStdout())
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Show service health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(apiClient(), "/api/health", nil, cmd.OutOrStdout())
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "rebuild",
		Short: "Re-embed every stored event into a fresh vector index",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPost(apiClient(), "/api/index/rebuild", nil, cmd.OutOrStdout())
		},
	})
}

func runPost(c *client, path string, body any, out io.Writer) error {
	data, err := c.post(path, body)
	if err != nil {
		return err
	}
	return printJSON(out, data)
}
