package vectorindex

import (
	"strings"

	"github.com/qaintel/eventmemory/internal/model"
)

// textDataKeys are the data fields that carry searchable prose, in output order.
var textDataKeys = []string{"error", "test_id", "message", "description"}

// EventText is the deterministic projection of an event that gets embedded.
func EventText(ev *model.Event) string {
	lines := []string{
		"type: " + string(ev.Type),
		"source: " + ev.Source,
		"project: " + ev.Project,
	}
	if len(ev.Tags) > 0 {
		lines = append(lines, "tags: "+strings.Join(ev.Tags, ", "))
	}
	for _, key := range textDataKeys {
		if v := ev.DataString(key); v != "" {
			lines = append(lines, key+": "+v)
		}
	}
	return strings.Join(lines, "\n")
}
