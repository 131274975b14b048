// Package filter applies jq expressions to response bodies.
package filter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"
)

// NormalizeExpression fixes shell-escaped operators in jq expressions.
// Zsh escapes ! to \! even in single quotes, breaking operators like !=.
func NormalizeExpression(expr string) string {
	return strings.ReplaceAll(strings.TrimSpace(expr), `\!`, `!`)
}

// Compile parses expression once so it can be run against many bodies.
func Compile(expression string) (*gojq.Code, error) {
	query, err := gojq.Parse(NormalizeExpression(expression))
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}
	return code, nil
}

// Apply runs expression against data. A single result is returned as is;
// several results are returned as a slice.
func Apply(data any, expression string) (any, error) {
	if strings.TrimSpace(expression) == "" {
		return data, nil
	}
	code, err := Compile(expression)
	if err != nil {
		return nil, err
	}
	return Run(code, data)
}

// Run executes compiled code against data.
func Run(code *gojq.Code, data any) (any, error) {
	iter := code.Run(data)

	var results []any
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return nil, fmt.Errorf("filter error: %w", err)
		}
		results = append(results, v)
	}
	if len(results) == 1 {
		return results[0], nil
	}
	return results, nil
}

// ApplyToJSON filters a raw JSON body and returns indented JSON.
func ApplyToJSON(raw json.RawMessage, expression string) ([]byte, error) {
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	result, err := Apply(data, expression)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(result, "", "  ")
}
