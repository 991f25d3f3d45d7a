package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/qaintel/eventmemory/internal/model"
)

const commitColumns = `commit_id, branch, message, author, timestamp, event_ids_json, parent_commit, tags_json`

// maxLogDepth bounds chain walks when the caller passes no limit.
const maxLogDepth = 10000

// CreateBranch returns false when the name is taken.
func (s *Store) CreateBranch(ctx context.Context, name, description string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, fmt.Errorf("%w: branch name is required", model.ErrValidation)
	}
	res, err := s.db.ExecContext(ctx, s.q(`INSERT INTO memory_branches (name, head_commit, created_at, description)
		VALUES (?, NULL, ?, ?) ON CONFLICT (name) DO NOTHING`), name, s.ts(s.now()), description)
	if err != nil {
		return false, fmt.Errorf("create branch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create branch: %w", err)
	}
	return n == 1, nil
}

func (s *Store) ListBranches(ctx context.Context) ([]model.Branch, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, head_commit, created_at, description FROM memory_branches ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	defer rows.Close()
	out := []model.Branch{}
	for rows.Next() {
		var b model.Branch
		var head sql.NullString
		var created sqlTime
		if err := rows.Scan(&b.Name, &head, &created, &b.Description); err != nil {
			return nil, err
		}
		if head.Valid {
			h := head.String
			b.HeadCommit = &h
		}
		b.CreatedAt = created.Time
		out = append(out, b)
	}
	return out, rows.Err()
}

// CommitEvents appends a commit to the branch chain and advances the head in
// one transaction.
func (s *Store) CommitEvents(ctx context.Context, req model.CommitRequest) (string, error) {
	if req.Branch == "" {
		req.Branch = model.DefaultBranch
	}
	if req.Author == "" {
		req.Author = model.DefaultAuthor
	}
	eventIDs, _ := marshalJSON(req.EventIDs, "[]")
	tags, _ := marshalJSON(req.Tags, "[]")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("commit events: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var head sql.NullString
	err = tx.QueryRowContext(ctx, s.q(`SELECT head_commit FROM memory_branches WHERE name = ?`+s.dialect.LockSuffix()), req.Branch).Scan(&head)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: branch %q", model.ErrNotFound, req.Branch)
	}
	if err != nil {
		return "", fmt.Errorf("commit events: %w", err)
	}

	commitID := uuid.New().String()
	if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO memory_commits (`+commitColumns+`) VALUES (?,?,?,?,?,?,?,?)`),
		commitID, req.Branch, req.Message, req.Author, s.ts(s.now()), eventIDs, head, tags); err != nil {
		return "", fmt.Errorf("insert commit: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.q(`UPDATE memory_branches SET head_commit = ? WHERE name = ?`), commitID, req.Branch); err != nil {
		return "", fmt.Errorf("advance branch head: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit events: %w", err)
	}
	return commitID, nil
}

// GetCommit returns nil, nil for an unknown id.
func (s *Store) GetCommit(ctx context.Context, commitID string) (*model.Commit, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+commitColumns+` FROM memory_commits WHERE commit_id = ?`), commitID)
	c, err := scanCommit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// Log walks the branch chain from its head, newest first.
func (s *Store) Log(ctx context.Context, branch string, limit int) ([]model.Commit, error) {
	if limit <= 0 || limit > maxLogDepth {
		limit = maxLogDepth
	}
	var head sql.NullString
	err := s.db.QueryRowContext(ctx, s.q(`SELECT head_commit FROM memory_branches WHERE name = ?`), branch).Scan(&head)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: branch %q", model.ErrNotFound, branch)
	}
	if err != nil {
		return nil, fmt.Errorf("log: %w", err)
	}

	out := []model.Commit{}
	next := head
	for next.Valid && len(out) < limit {
		c, err := s.GetCommit(ctx, next.String)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, fmt.Errorf("log: commit %s referenced by %q is missing", next.String, branch)
		}
		out = append(out, *c)
		next = sql.NullString{}
		if c.ParentCommit != nil {
			next = sql.NullString{String: *c.ParentCommit, Valid: true}
		}
	}
	return out, nil
}

// CreateTag returns false when the tag name is taken.
func (s *Store) CreateTag(ctx context.Context, name, commitID, message string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, fmt.Errorf("%w: tag name is required", model.ErrValidation)
	}
	c, err := s.GetCommit(ctx, commitID)
	if err != nil {
		return false, err
	}
	if c == nil {
		return false, fmt.Errorf("%w: commit %q", model.ErrNotFound, commitID)
	}
	res, err := s.db.ExecContext(ctx, s.q(`INSERT INTO memory_tags (tag_name, commit_id, message, created_at)
		VALUES (?,?,?,?) ON CONFLICT (tag_name) DO NOTHING`), name, commitID, message, s.ts(s.now()))
	if err != nil {
		return false, fmt.Errorf("create tag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create tag: %w", err)
	}
	return n == 1, nil
}

func (s *Store) ListTags(ctx context.Context) ([]model.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tag_name, commit_id, message, created_at FROM memory_tags ORDER BY tag_name`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()
	out := []model.Tag{}
	for rows.Next() {
		var t model.Tag
		var created sqlTime
		if err := rows.Scan(&t.Name, &t.CommitID, &t.Message, &created); err != nil {
			return nil, err
		}
		t.CreatedAt = created.Time
		out = append(out, t)
	}
	return out, rows.Err()
}

// SnapshotEvents resolves a commit's event ids in commit order. Ids missing
// from the log are skipped.
func (s *Store) SnapshotEvents(ctx context.Context, commitID string) ([]model.Event, error) {
	c, err := s.GetCommit(ctx, commitID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: commit %q", model.ErrNotFound, commitID)
	}
	out := make([]model.Event, 0, len(c.EventIDs))
	for _, id := range c.EventIDs {
		ev, err := s.GetEvent(ctx, id)
		if err != nil {
			return nil, err
		}
		if ev != nil {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func scanCommit(row scanner) (*model.Commit, error) {
	var (
		c        model.Commit
		ts       sqlTime
		idsJSON  string
		parent   sql.NullString
		tagsJSON string
	)
	if err := row.Scan(&c.CommitID, &c.Branch, &c.Message, &c.Author, &ts, &idsJSON, &parent, &tagsJSON); err != nil {
		return nil, err
	}
	c.Timestamp = ts.Time
	if err := json.Unmarshal([]byte(idsJSON), &c.EventIDs); err != nil {
		return nil, fmt.Errorf("decode event ids of %s: %w", c.CommitID, err)
	}
	if err := json.Unmarshal([]byte(tagsJSON), &c.Tags); err != nil {
		return nil, fmt.Errorf("decode tags of %s: %w", c.CommitID, err)
	}
	if parent.Valid {
		p := parent.String
		c.ParentCommit = &p
	}
	return &c, nil
}
