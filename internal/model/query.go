package model

import "time"

const DefaultQueryLimit = 100

// EventQuery filters QueryEvents. Project, branch, types, importance and the
// time window are evaluated by the database; tag filters are applied to the
// fetched page afterwards.
type EventQuery struct {
	Project string
	Branch  string
	// AllBranches ignores Branch and matches every event branch label.
	AllBranches   bool
	Types         []EventType
	MinImportance float64
	TagsInclude   []string
	TagsExclude   []string
	Since         *time.Time
	Until         *time.Time
	Limit         int
	Offset        int
}

// WithDefaults fills Branch and Limit when unset.
func (q EventQuery) WithDefaults() EventQuery {
	if q.Branch == "" {
		q.Branch = DefaultBranch
	}
	if q.Limit <= 0 {
		q.Limit = DefaultQueryLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

// MatchesTags applies the in-process phase of the query.
func (q EventQuery) MatchesTags(e *Event) bool {
	for _, t := range q.TagsInclude {
		if !e.HasTag(t) {
			return false
		}
	}
	for _, t := range q.TagsExclude {
		if e.HasTag(t) {
			return false
		}
	}
	return true
}

// StoreStats is the read-only aggregate returned by Stats.
type StoreStats struct {
	TotalEvents         int            `json:"total_events"`
	HighImportanceCount int            `json:"high_importance_count"`
	ByType              map[string]int `json:"by_type"`
	ByProject           map[string]int `json:"by_project"`
	ByBranch            map[string]int `json:"by_branch"`
	Branches            int            `json:"branches"`
	Commits             int            `json:"commits"`
	Tags                int            `json:"tags"`
}
