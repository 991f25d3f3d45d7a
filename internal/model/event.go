package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// EventType is the closed set of occurrences the store accepts.
type EventType string

const (
	EventTestFailure           EventType = "test-failure"
	EventTestPass              EventType = "test-pass"
	EventTestSkip              EventType = "test-skip"
	EventTestFlaky             EventType = "test-flaky"
	EventDocumentUpload        EventType = "document-upload"
	EventSigningAttempt        EventType = "signing-attempt"
	EventHealingAction         EventType = "healing-action"
	EventAPIError              EventType = "api-error"
	EventPerformanceRegression EventType = "performance-regression"
	EventDeployment            EventType = "deployment"
	EventUserFeedback          EventType = "user-feedback"
	EventSystemAlert           EventType = "system-alert"
)

var knownEventTypes = map[EventType]bool{
	EventTestFailure:           true,
	EventTestPass:              true,
	EventTestSkip:              true,
	EventTestFlaky:             true,
	EventDocumentUpload:        true,
	EventSigningAttempt:        true,
	EventHealingAction:         true,
	EventAPIError:              true,
	EventPerformanceRegression: true,
	EventDeployment:            true,
	EventUserFeedback:          true,
	EventSystemAlert:           true,
}

// Valid reports whether t belongs to the enumeration.
func (t EventType) Valid() bool { return knownEventTypes[t] }

// IsFailure reports whether the type describes something that went wrong.
func (t EventType) IsFailure() bool {
	switch t {
	case EventTestFailure, EventTestFlaky, EventAPIError, EventPerformanceRegression, EventSystemAlert:
		return true
	}
	return false
}

const (
	// DefaultBranch is both the default event branch label and the journal branch created at init.
	DefaultBranch = "main"

	MaxImportance = 5.0

	// HighImportance is the threshold used by stats and digests.
	HighImportance = 4.0
)

// Event is one recorded occurrence. It is never mutated after ingestion.
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	Project    string         `json:"project"`
	Branch     string         `json:"branch"`
	Data       map[string]any `json:"data,omitempty"`
	Importance float64        `json:"importance"`
	Tags       []string       `json:"tags,omitempty"`
	Source     string         `json:"source"`
	ParentID   *string        `json:"parent_id,omitempty"`
	RelatedIDs []string       `json:"related_ids,omitempty"`
}

// TimestampPrecision is the finest timestamp resolution every store driver
// keeps. Timestamps are truncated to it before hashing.
const TimestampPrecision = time.Microsecond

// Normalize applies ingestion defaults: UTC timestamps at TimestampPrecision
// and the default branch label.
func (e *Event) Normalize() {
	if e.Branch == "" {
		e.Branch = DefaultBranch
	}
	e.Timestamp = e.Timestamp.UTC().Truncate(TimestampPrecision)
}

// Validate checks the producer-supplied fields. Errors wrap ErrValidation.
func (e *Event) Validate() error {
	switch {
	case e.ID == "":
		return fmt.Errorf("%w: id is required", ErrValidation)
	case !e.Type.Valid():
		return fmt.Errorf("%w: unknown event type %q", ErrValidation, e.Type)
	case e.Timestamp.IsZero():
		return fmt.Errorf("%w: timestamp is required", ErrValidation)
	case e.Project == "":
		return fmt.Errorf("%w: project is required", ErrValidation)
	case e.Source == "":
		return fmt.Errorf("%w: source is required", ErrValidation)
	case math.IsNaN(e.Importance) || e.Importance < 0 || e.Importance > MaxImportance:
		return fmt.Errorf("%w: importance must be within [0, %.1f]", ErrValidation, MaxImportance)
	}
	return nil
}

// HasTag reports whether tag is among the event's labels.
func (e *Event) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy. Data is copied through nested JSON maps and
// slices; other values are shared.
func (e *Event) Clone() *Event {
	c := *e
	if e.Data != nil {
		c.Data = cloneValue(e.Data).(map[string]any)
	}
	if e.Tags != nil {
		c.Tags = append([]string(nil), e.Tags...)
	}
	if e.RelatedIDs != nil {
		c.RelatedIDs = append([]string(nil), e.RelatedIDs...)
	}
	if e.ParentID != nil {
		p := *e.ParentID
		c.ParentID = &p
	}
	return &c
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = cloneValue(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = cloneValue(val)
		}
		return s
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// DataString returns a data value rendered as text, or "" when absent.
func (e *Event) DataString(key string) string {
	v, ok := e.Data[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

type checksumInput struct {
	Timestamp string         `json:"timestamp"`
	Type      EventType      `json:"type"`
	Project   string         `json:"project"`
	Source    string         `json:"source"`
	Data      map[string]any `json:"data"`
}

// Checksum hashes the content identity of an event: timestamp, type, project,
// source and data. id, importance and tags do not participate, so two events
// with different ids but the same core content collide.
func Checksum(e *Event) (string, error) {
	data := e.Data
	if data == nil {
		data = map[string]any{}
	}
	canonical, err := json.Marshal(checksumInput{
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		Type:      e.Type,
		Project:   e.Project,
		Source:    e.Source,
		Data:      data,
	})
	if err != nil {
		return "", fmt.Errorf("%w: data is not serializable: %v", ErrValidation, err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
