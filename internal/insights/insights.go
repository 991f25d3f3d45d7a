// Package insights turns event slices into the aggregates that summaries
// and digests are built from. Everything here is pure.
package insights

import (
	"sort"

	"github.com/qaintel/eventmemory/internal/model"
)

// TopEventCount is how many events the daily and weekly aggregates keep.
const TopEventCount = 5

// DailyStats aggregates one day of events.
type DailyStats struct {
	TotalEvents         int            `json:"total_events"`
	HighImportanceCount int            `json:"high_importance_count"`
	ByType              map[string]int `json:"by_type"`
	ByTag               map[string]int `json:"by_tag"`
	ByHour              map[int]int    `json:"by_hour"`
	TopEvents           []model.Event  `json:"top_events"`
}

// WeeklyStats aggregates one week of events.
type WeeklyStats struct {
	TotalEvents         int            `json:"total_events"`
	HighImportanceCount int            `json:"high_importance_count"`
	ByType              map[string]int `json:"by_type"`
	ByTag               map[string]int `json:"by_tag"`
	ByDay               map[string]int `json:"by_day"`
	TopEvents           []model.Event  `json:"top_events"`
	FailureCount        int            `json:"failure_count"`
	PassCount           int            `json:"pass_count"`
}

func Daily(events []model.Event) DailyStats {
	st := DailyStats{
		ByType: map[string]int{},
		ByTag:  map[string]int{},
		ByHour: map[int]int{},
	}
	for i := range events {
		ev := &events[i]
		st.TotalEvents++
		if ev.Importance >= model.HighImportance {
			st.HighImportanceCount++
		}
		st.ByType[string(ev.Type)]++
		for _, tag := range ev.Tags {
			st.ByTag[tag]++
		}
		st.ByHour[ev.Timestamp.UTC().Hour()]++
	}
	st.TopEvents = topByImportance(events, TopEventCount)
	return st
}

func Weekly(events []model.Event) WeeklyStats {
	st := WeeklyStats{
		ByType: map[string]int{},
		ByTag:  map[string]int{},
		ByDay:  map[string]int{},
	}
	for i := range events {
		ev := &events[i]
		st.TotalEvents++
		if ev.Importance >= model.HighImportance {
			st.HighImportanceCount++
		}
		st.ByType[string(ev.Type)]++
		for _, tag := range ev.Tags {
			st.ByTag[tag]++
		}
		st.ByDay[ev.Timestamp.UTC().Format("2006-01-02")]++
		switch {
		case ev.Type.IsFailure():
			st.FailureCount++
		case ev.Type == model.EventTestPass:
			st.PassCount++
		}
	}
	st.TopEvents = topByImportance(events, TopEventCount)
	return st
}

// FailureRate is failures over failures plus passes, or 0 with no test outcomes.
func (w WeeklyStats) FailureRate() float64 {
	outcomes := w.FailureCount + w.PassCount
	if outcomes == 0 {
		return 0
	}
	return float64(w.FailureCount) / float64(outcomes)
}

// Trends compares two consecutive weeks.
type Trends struct {
	EventDelta          int      `json:"event_delta"`
	FailureDelta        int      `json:"failure_delta"`
	FailureRate         float64  `json:"failure_rate"`
	PreviousFailureRate float64  `json:"previous_failure_rate"`
	NewTypes            []string `json:"new_types"`
	// RecurringIssues are failure types present in both weeks.
	RecurringIssues []string `json:"recurring_issues"`
}

func CompareWeeks(current, previous WeeklyStats) Trends {
	tr := Trends{
		EventDelta:          current.TotalEvents - previous.TotalEvents,
		FailureDelta:        current.FailureCount - previous.FailureCount,
		FailureRate:         current.FailureRate(),
		PreviousFailureRate: previous.FailureRate(),
		NewTypes:            []string{},
		RecurringIssues:     []string{},
	}
	for typ := range current.ByType {
		if previous.ByType[typ] == 0 {
			tr.NewTypes = append(tr.NewTypes, typ)
			continue
		}
		if model.EventType(typ).IsFailure() {
			tr.RecurringIssues = append(tr.RecurringIssues, typ)
		}
	}
	sort.Strings(tr.NewTypes)
	sort.Strings(tr.RecurringIssues)
	return tr
}

// topByImportance returns up to n events, most important first. Ties go to
// the newer event, then to input order.
func topByImportance(events []model.Event, n int) []model.Event {
	out := append([]model.Event(nil), events...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Importance != out[j].Importance {
			return out[i].Importance > out[j].Importance
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > n {
		out = out[:n]
	}
	if out == nil {
		out = []model.Event{}
	}
	return out
}

// TopCount returns the most frequent key and its count. Ties resolve to the
// lexically smallest key. ok is false for an empty map.
func TopCount(counts map[string]int) (key string, n int, ok bool) {
	for k, v := range counts {
		if !ok || v > n || (v == n && k < key) {
			key, n, ok = k, v, true
		}
	}
	return key, n, ok
}
