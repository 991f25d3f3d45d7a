package validate

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName(t *testing.T) {
	tests := []struct {
		name        string
		value       string
		expectError bool
	}{
		{name: "simple", value: "main"},
		{name: "nested", value: "release/v1.2"},
		{name: "underscore and hyphen", value: "fix_login-flow"},
		{name: "empty", value: "", expectError: true},
		{name: "spaces", value: "my branch", expectError: true},
		{name: "too long", value: strings.Repeat("a", 101), expectError: true},
		{name: "special characters", value: "tag@1!", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Name("branch", tt.value)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestQuery(t *testing.T) {
	assert.NoError(t, Query("login timeout"))
	assert.Error(t, Query(""))
	assert.Error(t, Query(strings.Repeat("q", MaxQueryLen+1)))
}

func TestIntParam(t *testing.T) {
	n, err := IntParam("limit", "", 100, MaxLimit)
	require.NoError(t, err)
	assert.Equal(t, 100, n)

	n, err = IntParam("limit", "25", 100, MaxLimit)
	require.NoError(t, err)
	assert.Equal(t, 25, n)

	_, err = IntParam("limit", "-1", 100, MaxLimit)
	assert.Error(t, err)
	_, err = IntParam("limit", "abc", 100, MaxLimit)
	assert.Error(t, err)
	_, err = IntParam("limit", "5000", 100, MaxLimit)
	assert.Error(t, err)
}

func TestFloatParam(t *testing.T) {
	f, err := FloatParam("min_importance", "", 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, f)

	f, err = FloatParam("min_importance", "3.5", 0)
	require.NoError(t, err)
	assert.Equal(t, 3.5, f)

	_, err = FloatParam("min_importance", "NaN", 0)
	assert.Error(t, err)
	_, err = FloatParam("min_importance", "high", 0)
	assert.Error(t, err)
}

func TestWeights(t *testing.T) {
	assert.NoError(t, Weights(1.6, 1.0, 2.0))
	assert.NoError(t, Weights(0, 0, 0))
	assert.Error(t, Weights(-1, 1, 1))
	assert.Error(t, Weights(1, math.Inf(1), 1))
}

func TestCommitRequest(t *testing.T) {
	assert.NoError(t, CommitRequest("main", []string{"e1"}, "snapshot"))
	assert.Error(t, CommitRequest("", []string{"e1"}, "snapshot"))
	assert.Error(t, CommitRequest("main", nil, "snapshot"))
	assert.Error(t, CommitRequest("main", []string{""}, "snapshot"))
	assert.Error(t, CommitRequest("main", []string{"e1"}, ""))
}
