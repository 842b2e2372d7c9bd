package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalJQ(t *testing.T) {
	input := map[string]any{
		"score": 67,
		"rows": []map[string]string{
			{"hash": "a..."},
			{"hash": "b..."},
		},
	}

	tests := []struct {
		name    string
		filters []string
		want    []any
	}{
		{"single value", []string{".score"}, []any{float64(67)}},
		{"iterator", []string{".rows[].hash"}, []any{"a...", "b..."}},
		{"several filters in order", []string{".score >= 80", ".rows | length"}, []any{false, 2}},
		{"no results", []string{"empty"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codes, err := compileJQ(tt.filters)
			require.NoError(t, err)

			got, err := evalJQ(input, codes)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalJQ_RuntimeError(t *testing.T) {
	codes, err := compileJQ([]string{".score | keys"})
	require.NoError(t, err)

	_, err = evalJQ(map[string]any{"score": 1}, codes)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `jq filter ".score | keys" failed`)
}

func TestRunJQ_Formatting(t *testing.T) {
	codes, err := compileJQ([]string{".name", ".tags"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, runJQ(&buf, map[string]any{"name": "zs1", "tags": []string{"a"}}, codes))
	assert.Equal(t, "zs1\n[\"a\"]\n", buf.String())
}

func TestOutputJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, outputJSON(&buf, map[string]int{"score": 100}))
	assert.Equal(t, "{\n  \"score\": 100\n}\n", buf.String())
}
