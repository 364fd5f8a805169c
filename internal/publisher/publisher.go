// Package publisher emits crawl lifecycle events for downstream
// consumers.
package publisher

import "context"

// Publisher delivers a payload to a named topic and returns the
// message ID assigned by the transport.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// TargetCompleted is published when one target reaches its terminal
// state.
type TargetCompleted struct {
	RunID     string `json:"run_id"`
	URL       string `json:"url"`
	Group     string `json:"group"`
	Collected int    `json:"collected"`
}

// RunFinished is published once per sweep.
type RunFinished struct {
	RunID       string `json:"run_id"`
	Targets     int    `json:"targets"`
	Rows        int    `json:"rows"`
	WorkbookURI string `json:"workbook_uri,omitempty"`
}
