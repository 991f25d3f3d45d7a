package validate

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// nameRx covers branch and tag names: letters, digits, dot, slash, hyphen, underscore.
var nameRx = regexp.MustCompile(`^[A-Za-z0-9._/\-]{1,100}$`)

const (
	MaxLimit     = 1000
	MaxQueryLen  = 2000
	MaxEventsCap = 500
)

func NonEmpty(field, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

// Name validates a branch or tag name.
func Name(field, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", field)
	}
	if !nameRx.MatchString(v) {
		return fmt.Errorf("%s contains invalid characters; allowed letters, digits, '.', '/', '-', '_'", field)
	}
	return nil
}

// Query validates a free-text search query.
func Query(v string) error {
	if v == "" {
		return fmt.Errorf("query is required")
	}
	if len(v) > MaxQueryLen {
		return fmt.Errorf("query exceeds %d characters", MaxQueryLen)
	}
	return nil
}

// IntParam parses an optional non-negative integer query parameter bounded by max.
// An empty value returns def.
func IntParam(field, raw string, def, max int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", field)
	}
	if max > 0 && n > max {
		return 0, fmt.Errorf("%s must be at most %d", field, max)
	}
	return n, nil
}

// FloatParam parses an optional float query parameter; empty returns def.
func FloatParam(field, raw string, def float64) (float64, error) {
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s must be a number", field)
	}
	return f, nil
}

// Weights rejects negative or non-finite score weights.
func Weights(semantic, recency, importance float64) error {
	for _, w := range []struct {
		name string
		v    float64
	}{{"semantic", semantic}, {"recency", recency}, {"importance", importance}} {
		if math.IsNaN(w.v) || math.IsInf(w.v, 0) || w.v < 0 {
			return fmt.Errorf("weight %s must be a non-negative number", w.name)
		}
	}
	return nil
}

// CommitRequest validates the body of a commit call.
func CommitRequest(branch string, eventIDs []string, message string) error {
	if err := Name("branch", branch); err != nil {
		return err
	}
	if len(eventIDs) == 0 {
		return fmt.Errorf("event_ids must not be empty")
	}
	for _, id := range eventIDs {
		if id == "" {
			return fmt.Errorf("event_ids must not contain empty ids")
		}
	}
	if message == "" {
		return fmt.Errorf("message is required")
	}
	return nil
}
