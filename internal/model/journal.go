package model

import "time"

// Branch is a named line of memory commits. It is unrelated to Event.Branch.
type Branch struct {
	Name        string    `json:"name"`
	HeadCommit  *string   `json:"head_commit,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Commit snapshots a list of event ids on a branch. Commits form a singly
// linked chain through ParentCommit and are never modified.
type Commit struct {
	CommitID     string    `json:"commit_id"`
	Branch       string    `json:"branch"`
	Message      string    `json:"message"`
	Author       string    `json:"author"`
	Timestamp    time.Time `json:"timestamp"`
	EventIDs     []string  `json:"event_ids"`
	ParentCommit *string   `json:"parent_commit,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
}

// Tag names a commit.
type Tag struct {
	Name      string    `json:"tag_name"`
	CommitID  string    `json:"commit_id"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CommitRequest carries the inputs of a journal commit.
type CommitRequest struct {
	Branch   string   `json:"branch"`
	EventIDs []string `json:"event_ids"`
	Message  string   `json:"message"`
	Author   string   `json:"author,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

const DefaultAuthor = "system"
