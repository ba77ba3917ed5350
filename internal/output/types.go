// Package output renders scan findings to JSON and text.
package output

import "time"

// ScanStatus is the terminal state of a scan.
type ScanStatus string

// Terminal states.
const (
	StatusCompleted ScanStatus = "completed"
	StatusAborted   ScanStatus = "aborted"
	StatusCancelled ScanStatus = "cancelled"
)

// Finding is one confirmed injection point.
type Finding struct {
	Method     string `json:"method"`
	Path       string `json:"path"`
	Parameter  string `json:"parameter"`
	Location   string `json:"location"`
	Technique  string `json:"technique"`
	Confidence string `json:"confidence"`
	DBMS       string `json:"dbms,omitempty"`
	Payload    string `json:"payload"`
	Evidence   string `json:"evidence,omitempty"`
	Detail     string `json:"detail,omitempty"`

	StatusCode int           `json:"status_code,omitempty"`
	Latency    time.Duration `json:"latency,omitempty"`
	FoundAt    time.Time     `json:"found_at"`
}

// Key identifies the injection point a finding belongs to.
func (f Finding) Key() string {
	return f.Method + " " + f.Path + " " + f.Location + ":" + f.Parameter
}

// ProbeError is a transport failure recorded as data.
type ProbeError struct {
	Method   string `json:"method"`
	URL      string `json:"url"`
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	Attempts int    `json:"attempts,omitempty"`
}

// Statistics summarizes the scan volume.
type Statistics struct {
	Endpoints       int `json:"endpoints"`
	ParametersTried int `json:"parameters_tried"`
	ProbesSent      int `json:"probes_sent"`
	TransportErrors int `json:"transport_errors"`
	FindingCount    int `json:"finding_count"`
}

// Report is the complete result of one scan.
type Report struct {
	Target    string     `json:"target"`
	SpecURL   string     `json:"spec_url,omitempty"`
	Status    ScanStatus `json:"status"`
	StartTime time.Time  `json:"start_time"`
	EndTime   time.Time  `json:"end_time"`
	Duration  string     `json:"duration"`

	Findings []Finding    `json:"findings"`
	Errors   []ProbeError `json:"errors,omitempty"`
	Stats    Statistics   `json:"statistics"`
}

// StreamEvent wraps an object for streaming output.
type StreamEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}
