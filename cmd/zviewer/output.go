package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/itchyny/gojq"
)

// Helper function to output JSON
func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type jqCode struct {
	filter string
	code   *gojq.Code
}

// compileJQ parses and compiles jq filters.
func compileJQ(filters []string) ([]*jqCode, error) {
	codes := make([]*jqCode, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		code, err := gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
		codes[i] = &jqCode{filter: filter, code: code}
	}
	return codes, nil
}

// evalJQ runs every filter against v and returns all results in order.
// v is passed through JSON first since gojq only accepts plain JSON values.
func evalJQ(v any, codes []*jqCode) ([]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal input: %w", err)
	}
	var input any
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("failed to unmarshal input: %w", err)
	}

	var results []any
	for _, c := range codes {
		iter := c.code.Run(input)
		for {
			out, ok := iter.Next()
			if !ok {
				break
			}
			if err, isErr := out.(error); isErr {
				return nil, fmt.Errorf("jq filter %q failed: %w", c.filter, err)
			}
			results = append(results, out)
		}
	}
	return results, nil
}

// runJQ prints each jq result on its own line, strings unquoted like jq -r.
func runJQ(w io.Writer, v any, codes []*jqCode) error {
	results, err := evalJQ(v, codes)
	if err != nil {
		return err
	}
	for _, r := range results {
		if s, ok := r.(string); ok {
			fmt.Fprintln(w, s)
			continue
		}
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal jq result: %w", err)
		}
		fmt.Fprintln(w, string(data))
	}
	return nil
}
