package scanner

import (
	"time"

	"github.com/PentesterFlow/OpenSQLi/internal/output"
)

// Status re-exports the terminal scan states.
type Status = output.ScanStatus

// Terminal states.
const (
	StatusCompleted = output.StatusCompleted
	StatusAborted   = output.StatusAborted
	StatusCancelled = output.StatusCancelled
)

// Result is the outcome of one scan.
type Result struct {
	Target      string
	Spec        string
	Status      Status
	StartedAt   time.Time
	CompletedAt time.Time

	Findings []output.Finding
	Errors   []output.ProbeError
	Stats    output.Statistics
}

// Report converts the result to the output report shape.
func (r *Result) Report() *output.Report {
	return &output.Report{
		Target:    r.Target,
		SpecURL:   r.Spec,
		Status:    r.Status,
		StartTime: r.StartedAt,
		EndTime:   r.CompletedAt,
		Duration:  r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
		Findings:  r.Findings,
		Errors:    r.Errors,
		Stats:     r.Stats,
	}
}
