package domain

import "fmt"

// ReadResult is the materialized outcome of one bounded read.
type ReadResult struct {
	Success       bool             `json:"success"`
	Rows          []map[string]any `json:"rows"`
	Truncated     bool             `json:"truncated"`
	TotalObserved int              `json:"total_observed"`
	Message       string           `json:"message,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// FailedRead builds an unsuccessful result carrying a caller-safe message.
func FailedRead(msg string) ReadResult {
	return ReadResult{Error: msg}
}

// TruncationMessage reports how many rows were kept out of how many were observed.
func TruncationMessage(returned, observed int) string {
	return fmt.Sprintf("results truncated: returned %d of %d rows; add a WHERE clause or aggregate to narrow the result", returned, observed)
}
