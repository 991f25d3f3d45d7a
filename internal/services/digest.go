package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/qaintel/eventmemory/internal/insights"
	"github.com/qaintel/eventmemory/internal/llm"
	"github.com/qaintel/eventmemory/internal/model"
	"github.com/qaintel/eventmemory/internal/store"
)

const (
	// digestEventLimit caps how many events one digest window reads.
	digestEventLimit = 5000

	// maxPatternSummaries bounds LLM calls per pattern digest.
	maxPatternSummaries = 5

	DefaultMinOccurrences = 2
)

// Digest is a summarized window of events.
type Digest struct {
	Project string    `json:"project"`
	Period  string    `json:"period"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Summary string    `json:"summary"`
	Stats   any       `json:"stats"`
}

// PatternDigest is one recurring failure and its analysis.
type PatternDigest struct {
	Pattern insights.FailurePattern `json:"pattern"`
	Summary string                  `json:"summary"`
}

// DigestService composes the event log, insights and a summarizer.
type DigestService struct {
	events     store.EventStore
	summarizer llm.Summarizer
	log        zerolog.Logger
}

func NewDigestService(events store.EventStore, summarizer llm.Summarizer, log zerolog.Logger) *DigestService {
	return &DigestService{events: events, summarizer: summarizer, log: log}
}

// window returns every event of project in [start, end), oldest first, on
// every event branch.
func (s *DigestService) window(ctx context.Context, project string, start, end time.Time) ([]model.Event, error) {
	evs, err := s.events.QueryEvents(ctx, model.EventQuery{
		Project:     project,
		AllBranches: true,
		Since:       &start,
		Until:       &end,
		Limit:       digestEventLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("read events %s..%s: %w", start.Format(time.RFC3339), end.Format(time.RFC3339), err)
	}
	if len(evs) == digestEventLimit {
		s.log.Warn().Str("project", project).Int("limit", digestEventLimit).Msg("digest window truncated")
	}
	for i, j := 0, len(evs)-1; i < j; i, j = i+1, j-1 {
		evs[i], evs[j] = evs[j], evs[i]
	}
	return evs, nil
}

// Daily summarizes the UTC calendar day containing date.
func (s *DigestService) Daily(ctx context.Context, project string, date time.Time) (*Digest, error) {
	start := truncateDay(date)
	end := start.AddDate(0, 0, 1)
	evs, err := s.window(ctx, project, start, end)
	if err != nil {
		return nil, err
	}
	stats := insights.Daily(evs)
	return &Digest{
		Project: project,
		Period:  "daily",
		Start:   start,
		End:     end,
		Summary: s.summarizer.SummarizeDailyEvents(ctx, evs, stats, project, start),
		Stats:   stats,
	}, nil
}

// Weekly summarizes the seven days from weekStart and compares them with
// the seven days before.
func (s *DigestService) Weekly(ctx context.Context, project string, weekStart time.Time) (*Digest, error) {
	start := truncateDay(weekStart)
	end := start.AddDate(0, 0, 7)
	current, err := s.window(ctx, project, start, end)
	if err != nil {
		return nil, err
	}
	previous, err := s.window(ctx, project, start.AddDate(0, 0, -7), start)
	if err != nil {
		return nil, err
	}
	stats := insights.Weekly(current)
	trends := insights.CompareWeeks(stats, insights.Weekly(previous))
	return &Digest{
		Project: project,
		Period:  "weekly",
		Start:   start,
		End:     end,
		Summary: s.summarizer.SummarizeWeeklyEvents(ctx, current, stats, trends, project, start),
		Stats: struct {
			insights.WeeklyStats
			Trends insights.Trends `json:"trends"`
		}{stats, trends},
	}, nil
}

// Patterns finds recurring failures since the given time and summarizes the
// largest ones.
func (s *DigestService) Patterns(ctx context.Context, project string, since time.Time, minOccurrences int) ([]PatternDigest, error) {
	if minOccurrences <= 0 {
		minOccurrences = DefaultMinOccurrences
	}
	evs, err := s.window(ctx, project, since.UTC(), time.Now().UTC().Add(time.Second))
	if err != nil {
		return nil, err
	}
	patterns := insights.FailurePatterns(evs, minOccurrences)
	out := make([]PatternDigest, 0, len(patterns))
	for i, p := range patterns {
		d := PatternDigest{Pattern: p}
		if i < maxPatternSummaries {
			d.Summary = s.summarizer.SummarizeFailurePattern(ctx, p.Events, p.Signature)
		} else {
			d.Summary = llm.PatternFallback(p.Events, p.Signature)
		}
		out = append(out, d)
	}
	return out, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
