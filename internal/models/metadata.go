package models

import "time"

// Fetch run statuses recorded in FetchMetadata.
const (
	FetchStatusOK    = "ok"
	FetchStatusError = "error"
)

// FetchMetadata is a singleton record describing the most recent job
// run. It is overwritten on every run.
type FetchMetadata struct {
	RunAt        time.Time `json:"run_at"`
	ProductCount int       `json:"product_count"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
}
