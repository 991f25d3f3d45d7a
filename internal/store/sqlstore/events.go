package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qaintel/eventmemory/internal/model"
)

const eventColumns = `id, type, timestamp, project, branch, data_json, importance, tags_json, source, parent_id, related_ids_json`

// Ingest stores ev unless an event with the same checksum already exists.
func (s *Store) Ingest(ctx context.Context, ev *model.Event) (bool, error) {
	e := *ev
	e.Normalize()
	if err := e.Validate(); err != nil {
		return false, err
	}
	checksum, err := model.Checksum(&e)
	if err != nil {
		return false, err
	}
	dataJSON, err := marshalJSON(e.Data, "{}")
	if err != nil {
		return false, fmt.Errorf("%w: data: %v", model.ErrValidation, err)
	}
	tagsJSON, _ := marshalJSON(e.Tags, "[]")
	relatedJSON, _ := marshalJSON(e.RelatedIDs, "[]")
	var parent sql.NullString
	if e.ParentID != nil && *e.ParentID != "" {
		parent = sql.NullString{String: *e.ParentID, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, s.q(`INSERT INTO events (
		id, checksum, type, timestamp, project, branch, data_json, importance, tags_json, source, parent_id, related_ids_json, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (checksum) DO NOTHING`),
		e.ID, checksum, string(e.Type), s.ts(e.Timestamp), e.Project, e.Branch, dataJSON, e.Importance,
		tagsJSON, e.Source, parent, relatedJSON, s.ts(s.now()))
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			// The checksum arbiter did not fire, so the id is taken by different content.
			return false, fmt.Errorf("%w: event %s already stored with different content", model.ErrConflict, e.ID)
		}
		return false, fmt.Errorf("insert event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert event: %w", err)
	}
	if n == 0 {
		s.log.Debug().Str("event_id", e.ID).Str("checksum", checksum).Msg("duplicate event skipped")
		return false, nil
	}
	return true, nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+eventColumns+` FROM events WHERE id = ?`), id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// QueryEvents filters in the database first, then prunes the fetched page by tags.
// Because the limit applies before tag pruning, a page can be shorter than Limit.
func (s *Store) QueryEvents(ctx context.Context, q model.EventQuery) ([]model.Event, error) {
	q = q.WithDefaults()

	var where []string
	var args []any
	if q.Project != "" {
		where = append(where, "project = ?")
		args = append(args, q.Project)
	}
	if !q.AllBranches {
		where = append(where, "branch = ?")
		args = append(args, q.Branch)
	}
	if len(q.Types) > 0 {
		marks := make([]string, len(q.Types))
		for i, t := range q.Types {
			marks[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, "type IN ("+strings.Join(marks, ",")+")")
	}
	if q.MinImportance > 0 {
		where = append(where, "importance >= ?")
		args = append(args, q.MinImportance)
	}
	if q.Since != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, s.ts(*q.Since))
	}
	if q.Until != nil {
		where = append(where, "timestamp < ?")
		args = append(args, s.ts(*q.Until))
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY timestamp DESC, id LIMIT ? OFFSET ?`
	args = append(args, q.Limit, q.Offset)

	page, err := s.queryEvents(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(q.TagsInclude) == 0 && len(q.TagsExclude) == 0 {
		return page, nil
	}
	out := page[:0]
	for i := range page {
		if q.MatchesTags(&page[i]) {
			out = append(out, page[i])
		}
	}
	return out, nil
}

// RecentEvents returns events newer than window, newest first, across every
// event branch. An empty project matches all projects.
func (s *Store) RecentEvents(ctx context.Context, project string, window time.Duration, limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = model.DefaultQueryLimit
	}
	since := s.now().Add(-window)
	query := `SELECT ` + eventColumns + ` FROM events WHERE timestamp >= ?`
	args := []any{s.ts(since)}
	if project != "" {
		query += ` AND project = ?`
		args = append(args, project)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)
	return s.queryEvents(ctx, query, args...)
}

func (s *Store) Stats(ctx context.Context) (*model.StoreStats, error) {
	st := &model.StoreStats{}
	var err error
	if st.ByType, err = s.countBy(ctx, "type"); err != nil {
		return nil, err
	}
	if st.ByProject, err = s.countBy(ctx, "project"); err != nil {
		return nil, err
	}
	if st.ByBranch, err = s.countBy(ctx, "branch"); err != nil {
		return nil, err
	}
	for _, n := range st.ByType {
		st.TotalEvents += n
	}
	counts := []struct {
		dst   *int
		query string
		args  []any
	}{
		{&st.HighImportanceCount, `SELECT COUNT(*) FROM events WHERE importance >= ?`, []any{model.HighImportance}},
		{&st.Branches, `SELECT COUNT(*) FROM memory_branches`, nil},
		{&st.Commits, `SELECT COUNT(*) FROM memory_commits`, nil},
		{&st.Tags, `SELECT COUNT(*) FROM memory_tags`, nil},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, s.q(c.query), c.args...).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("stats: %w", err)
		}
	}
	return st, nil
}

// countBy groups events by a fixed column name (never user input).
func (s *Store) countBy(ctx context.Context, column string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+column+`, COUNT(*) FROM events GROUP BY `+column)
	if err != nil {
		return nil, fmt.Errorf("stats by %s: %w", column, err)
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[key] = n
	}
	return out, rows.Err()
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	out := []model.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*model.Event, error) {
	var (
		ev          model.Event
		typ         string
		ts          sqlTime
		dataJSON    string
		tagsJSON    string
		parent      sql.NullString
		relatedJSON string
	)
	if err := row.Scan(&ev.ID, &typ, &ts, &ev.Project, &ev.Branch, &dataJSON, &ev.Importance,
		&tagsJSON, &ev.Source, &parent, &relatedJSON); err != nil {
		return nil, err
	}
	ev.Type = model.EventType(typ)
	ev.Timestamp = ts.Time
	if err := decodeData(dataJSON, &ev.Data); err != nil {
		return nil, fmt.Errorf("decode data of %s: %w", ev.ID, err)
	}
	if err := json.Unmarshal([]byte(tagsJSON), &ev.Tags); err != nil {
		return nil, fmt.Errorf("decode tags of %s: %w", ev.ID, err)
	}
	if err := json.Unmarshal([]byte(relatedJSON), &ev.RelatedIDs); err != nil {
		return nil, fmt.Errorf("decode related ids of %s: %w", ev.ID, err)
	}
	if parent.Valid {
		p := parent.String
		ev.ParentID = &p
	}
	return &ev, nil
}

// decodeData keeps numbers as json.Number so integers beyond 2^53 come back
// unchanged and the stored event re-hashes to the same checksum.
func decodeData(raw string, out *map[string]any) error {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(out)
}

// marshalJSON encodes v, using empty for nil maps and slices.
func marshalJSON(v any, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}
