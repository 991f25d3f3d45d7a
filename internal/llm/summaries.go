package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/qaintel/eventmemory/internal/insights"
	"github.com/qaintel/eventmemory/internal/model"
)

const (
	narrativeTemperature  = 0.4
	analyticalTemperature = 0.2

	// maxContextEvents bounds how many events are listed in a prompt.
	maxContextEvents = 10
)

// Summarizer is what digest consumers depend on. Implementations never fail;
// they return a deterministic fallback when no model answers.
type Summarizer interface {
	SummarizeDailyEvents(ctx context.Context, events []model.Event, stats insights.DailyStats, project string, date time.Time) string
	SummarizeWeeklyEvents(ctx context.Context, events []model.Event, stats insights.WeeklyStats, trends insights.Trends, project string, weekStart time.Time) string
	SummarizeFailurePattern(ctx context.Context, failures []model.Event, patternType string) string
}

var _ Summarizer = (*Service)(nil)

const dailySystemPrompt = `You are a QA intelligence analyst. Write a concise daily summary (3 to 5 sentences) of the test and system events below.
Lead with what needs attention, mention notable failures by test or source, and end with one recommendation. Do not invent facts.`

const weeklySystemPrompt = `You are a QA intelligence analyst. Write a weekly report (one short paragraph plus up to 5 bullet points) from the statistics and trends below.
Compare against the previous week, call out recurring issues and new event types, and suggest priorities for next week. Do not invent facts.`

const patternSystemPrompt = `You are a QA reliability engineer. Analyse the related failures below, identify the most likely root cause, say whether this looks like a flaky test, an environment problem or a product defect, and propose concrete next steps.
Be precise and brief.`

func (s *Service) SummarizeDailyEvents(ctx context.Context, events []model.Event, stats insights.DailyStats, project string, date time.Time) string {
	prompt := DailyContext(events, stats, project, date)
	out := s.GenerateCompletion(ctx, []Message{
		{Role: "system", Content: dailySystemPrompt},
		{Role: "user", Content: prompt},
	}, narrativeTemperature, DefaultMaxTokens)
	if out == "" {
		s.log.Info().Str("project", project).Msg("daily summary uses fallback")
		return DailyFallback(stats, project)
	}
	return out
}

func (s *Service) SummarizeWeeklyEvents(ctx context.Context, events []model.Event, stats insights.WeeklyStats, trends insights.Trends, project string, weekStart time.Time) string {
	prompt := WeeklyContext(events, stats, trends, project, weekStart)
	out := s.GenerateCompletion(ctx, []Message{
		{Role: "system", Content: weeklySystemPrompt},
		{Role: "user", Content: prompt},
	}, narrativeTemperature, DefaultMaxTokens)
	if out == "" {
		s.log.Info().Str("project", project).Msg("weekly summary uses fallback")
		return WeeklyFallback(stats, trends, project, weekStart)
	}
	return out
}

func (s *Service) SummarizeFailurePattern(ctx context.Context, failures []model.Event, patternType string) string {
	prompt := PatternContext(failures, patternType)
	out := s.GenerateCompletion(ctx, []Message{
		{Role: "system", Content: patternSystemPrompt},
		{Role: "user", Content: prompt},
	}, analyticalTemperature, DefaultMaxTokens)
	if out == "" {
		s.log.Info().Str("pattern", patternType).Msg("pattern summary uses fallback")
		return PatternFallback(failures, patternType)
	}
	return out
}

// DailyContext renders the Markdown block sent with the daily prompt.
func DailyContext(events []model.Event, stats insights.DailyStats, project string, date time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Daily events for %s on %s\n\n", project, date.UTC().Format("2006-01-02"))
	fmt.Fprintf(&b, "- Total events: %d\n- High-importance events: %d\n\n", stats.TotalEvents, stats.HighImportanceCount)
	writeCounts(&b, "Events by type", stats.ByType)
	writeCounts(&b, "Events by tag", stats.ByTag)
	writeEvents(&b, "Top events by importance", stats.TopEvents)
	if len(stats.TopEvents) == 0 {
		writeEvents(&b, "Events", firstN(events, maxContextEvents))
	}
	return b.String()
}

// WeeklyContext renders the Markdown block sent with the weekly prompt.
func WeeklyContext(events []model.Event, stats insights.WeeklyStats, trends insights.Trends, project string, weekStart time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Weekly events for %s, week of %s\n\n", project, weekStart.UTC().Format("2006-01-02"))
	fmt.Fprintf(&b, "- Total events: %d (%+d vs previous week)\n", stats.TotalEvents, trends.EventDelta)
	fmt.Fprintf(&b, "- High-importance events: %d\n", stats.HighImportanceCount)
	fmt.Fprintf(&b, "- Failures: %d (%+d), passes: %d\n", stats.FailureCount, trends.FailureDelta, stats.PassCount)
	fmt.Fprintf(&b, "- Failure rate: %.1f%% (previous week %.1f%%)\n\n", trends.FailureRate*100, trends.PreviousFailureRate*100)
	writeCounts(&b, "Events by type", stats.ByType)
	writeCounts(&b, "Events by day", stats.ByDay)
	writeList(&b, "Recurring issues", trends.RecurringIssues)
	writeList(&b, "New event types", trends.NewTypes)
	writeEvents(&b, "Top events by importance", stats.TopEvents)
	if len(stats.TopEvents) == 0 {
		writeEvents(&b, "Events", firstN(events, maxContextEvents))
	}
	return b.String()
}

// PatternContext renders the Markdown block sent with the pattern prompt.
func PatternContext(failures []model.Event, patternType string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Failure pattern: %s\n\n", patternType)
	fmt.Fprintf(&b, "- Occurrences: %d\n", len(failures))
	if first, last, ok := timeSpan(failures); ok {
		fmt.Fprintf(&b, "- First seen: %s\n- Last seen: %s\n", first.Format(time.RFC3339), last.Format(time.RFC3339))
	}
	b.WriteString("\n")
	writeList(&b, "Tests", distinct(failures, func(ev *model.Event) string { return ev.DataString("test_id") }))
	writeList(&b, "Sources", distinct(failures, func(ev *model.Event) string { return ev.Source }))
	writeEvents(&b, "Failures", firstN(failures, maxContextEvents))
	return b.String()
}

// DailyFallback is the deterministic daily summary.
func DailyFallback(stats insights.DailyStats, project string) string {
	if stats.TotalEvents == 0 {
		return fmt.Sprintf("No events recorded today for project %s.", project)
	}
	msg := fmt.Sprintf("Recorded %d events today for project %s. %d were high-importance.",
		stats.TotalEvents, project, stats.HighImportanceCount)
	if typ, n, ok := insights.TopCount(stats.ByType); ok {
		msg += fmt.Sprintf(" Most common event type: %s (%d).", typ, n)
	}
	return msg
}

// WeeklyFallback is the deterministic weekly summary.
func WeeklyFallback(stats insights.WeeklyStats, trends insights.Trends, project string, weekStart time.Time) string {
	week := weekStart.UTC().Format("2006-01-02")
	if stats.TotalEvents == 0 {
		return fmt.Sprintf("No events recorded for project %s in the week of %s.", project, week)
	}
	msg := fmt.Sprintf("Recorded %d events for project %s in the week of %s (%+d vs previous week). %d were high-importance.",
		stats.TotalEvents, project, week, trends.EventDelta, stats.HighImportanceCount)
	msg += fmt.Sprintf(" Failures: %d, passes: %d, failure rate %.1f%% (previous week %.1f%%).",
		stats.FailureCount, stats.PassCount, trends.FailureRate*100, trends.PreviousFailureRate*100)
	if typ, n, ok := insights.TopCount(stats.ByType); ok {
		msg += fmt.Sprintf(" Most common event type: %s (%d).", typ, n)
	}
	if len(trends.RecurringIssues) > 0 {
		msg += " Recurring issues: " + strings.Join(trends.RecurringIssues, ", ") + "."
	}
	return msg
}

// PatternFallback is the deterministic failure pattern summary.
func PatternFallback(failures []model.Event, patternType string) string {
	if len(failures) == 0 {
		return fmt.Sprintf("No failures recorded for pattern %s.", patternType)
	}
	tests := distinct(failures, func(ev *model.Event) string { return ev.DataString("test_id") })
	msg := fmt.Sprintf("Pattern %s occurred %d times across %d tests.", patternType, len(failures), len(tests))
	if first, last, ok := timeSpan(failures); ok {
		msg += fmt.Sprintf(" First seen %s, last seen %s.", first.Format(time.RFC3339), last.Format(time.RFC3339))
	}
	return msg
}

func writeCounts(b *strings.Builder, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	// Highest count first, then by key for a stable prompt.
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	fmt.Fprintf(b, "## %s\n", title)
	for _, k := range keys {
		fmt.Fprintf(b, "- %s: %d\n", k, counts[k])
	}
	b.WriteString("\n")
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
	b.WriteString("\n")
}

func writeEvents(b *strings.Builder, title string, events []model.Event) {
	if len(events) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n", title)
	for i := range events {
		ev := &events[i]
		fmt.Fprintf(b, "- [%s] %s from %s (importance %.1f)", ev.Timestamp.UTC().Format(time.RFC3339), ev.Type, ev.Source, ev.Importance)
		for _, key := range []string{"test_id", "error", "message"} {
			if v := ev.DataString(key); v != "" {
				fmt.Fprintf(b, " %s=%q", key, truncate(v, 160))
			}
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func firstN(events []model.Event, n int) []model.Event {
	if len(events) > n {
		return events[:n]
	}
	return events
}

func distinct(events []model.Event, key func(*model.Event) string) []string {
	seen := map[string]bool{}
	var out []string
	for i := range events {
		v := key(&events[i])
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func timeSpan(events []model.Event) (first, last time.Time, ok bool) {
	for i := range events {
		ts := events[i].Timestamp.UTC()
		if !ok || ts.Before(first) {
			first = ts
		}
		if !ok || ts.After(last) {
			last = ts
		}
		ok = true
	}
	return first, last, ok
}
