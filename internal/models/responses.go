package models

import json "github.com/goccy/go-json"

// RawEventsRequest defers decoding of each item so one malformed event
// does not reject the batch. Events is nil when the field is absent.
type RawEventsRequest struct {
	Events []json.RawMessage `json:"events"`
}

// IngestResponse reports how a batch was handled.
type IngestResponse struct {
	Success   bool `json:"success"`
	Processed int  `json:"processed"`
	Skipped   int  `json:"skipped"`
	Invalid   int  `json:"invalid"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type PingConnection struct {
	Authenticated bool   `json:"authenticated"`
	KeyName       string `json:"keyName,omitempty"`
	Workspace     string `json:"workspace,omitempty"`
	Domain        string `json:"domain,omitempty"`
}

// PingResult is the answer to GET|POST /ping. Status is "ok" or "error".
type PingResult struct {
	Status     string          `json:"status"`
	Connection *PingConnection `json:"connection,omitempty"`
	Error      string          `json:"error,omitempty"`
}

const (
	PingStatusOK    = "ok"
	PingStatusError = "error"
)
