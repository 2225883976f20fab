package utils

import (
	"fmt"
	"strings"
	"time"
)

// ParseCSV splits a comma-separated string and returns trimmed non-empty values.
// Returns nil for empty/whitespace-only input.
func ParseCSV(s string) []string {
	if s == "" {
		return nil
	}

	var result []string
	for _, v := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return nil
	}

	return result
}

// ParseTickers upper-cases and de-duplicates tickers, keeping first-seen order.
// Each element may itself be a comma-separated list.
func ParseTickers(values ...string) []string {
	seen := make(map[string]bool)
	var result []string
	for _, v := range values {
		for _, t := range ParseCSV(v) {
			t = strings.ToUpper(t)
			if !seen[t] {
				seen[t] = true
				result = append(result, t)
			}
		}
	}
	return result
}

// ParseDate parses an optional YYYY-MM-DD date. Empty input returns nil.
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return &t, nil
}
