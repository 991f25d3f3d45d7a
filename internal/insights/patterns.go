package insights

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/qaintel/eventmemory/internal/model"
)

const maxSignatureLen = 120

var (
	uuidPattern   = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	hexPattern    = regexp.MustCompile(`\b0x[0-9a-fA-F]+\b|\b[0-9a-fA-F]{8,}\b`)
	numberPattern = regexp.MustCompile(`\d+`)
	spacePattern  = regexp.MustCompile(`\s+`)
)

// FailurePattern groups failure-like events sharing one error signature.
type FailurePattern struct {
	Signature string        `json:"signature"`
	Count     int           `json:"count"`
	TestIDs   []string      `json:"test_ids"`
	Sources   []string      `json:"sources"`
	FirstSeen time.Time     `json:"first_seen"`
	LastSeen  time.Time     `json:"last_seen"`
	Events    []model.Event `json:"events"`
}

// Signature normalizes an error message so recurrences of the same failure
// compare equal: ids and numbers collapse to placeholders, case and spacing
// are folded and the result is capped at 120 characters.
func Signature(msg string) string {
	s := strings.ToLower(msg)
	s = uuidPattern.ReplaceAllString(s, "<id>")
	s = hexPattern.ReplaceAllString(s, "<hex>")
	s = numberPattern.ReplaceAllString(s, "<n>")
	s = strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
	if len(s) > maxSignatureLen {
		cut := maxSignatureLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}

// failureText picks the most descriptive text of a failure event.
func failureText(ev *model.Event) string {
	for _, key := range []string{"error", "message", "description"} {
		if v := ev.DataString(key); v != "" {
			return v
		}
	}
	return string(ev.Type)
}

// FailurePatterns groups failure-like events by Signature and returns groups
// with at least minOccurrences members, largest first.
func FailurePatterns(events []model.Event, minOccurrences int) []FailurePattern {
	if minOccurrences < 1 {
		minOccurrences = 1
	}
	groups := map[string]*FailurePattern{}
	var order []string
	for i := range events {
		ev := events[i]
		if !ev.Type.IsFailure() {
			continue
		}
		sig := Signature(failureText(&ev))
		p, ok := groups[sig]
		if !ok {
			p = &FailurePattern{Signature: sig, FirstSeen: ev.Timestamp, LastSeen: ev.Timestamp}
			groups[sig] = p
			order = append(order, sig)
		}
		p.Count++
		p.Events = append(p.Events, ev)
		if ev.Timestamp.Before(p.FirstSeen) {
			p.FirstSeen = ev.Timestamp
		}
		if ev.Timestamp.After(p.LastSeen) {
			p.LastSeen = ev.Timestamp
		}
		p.TestIDs = appendUnique(p.TestIDs, ev.DataString("test_id"))
		p.Sources = appendUnique(p.Sources, ev.Source)
	}

	out := []FailurePattern{}
	for _, sig := range order {
		if p := groups[sig]; p.Count >= minOccurrences {
			out = append(out, *p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
