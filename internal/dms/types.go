package dms

import "encoding/json"

// HeartbeatRequest is the body POSTed to {base}/tasks/{id}/heartbeat.
type HeartbeatRequest struct {
	Progress any   `json:"progress,omitempty"`
	Events   []any `json:"events,omitempty"`
}

// CompleteTaskRequest is the body POSTed to {base}/tasks/{id}/complete.
type CompleteTaskRequest struct {
	OutputsIndex map[string]string `json:"outputs_index"`
	Result       json.RawMessage   `json:"result,omitempty"`
}

// FailTaskRequest is the body POSTed to {base}/tasks/{id}/fail.
type FailTaskRequest struct {
	Reason  string         `json:"reason"`
	Details map[string]any `json:"details,omitempty"`
}
