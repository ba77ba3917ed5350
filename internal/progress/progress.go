// Package progress provides a terminal progress display for scans.
package progress

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Display manages the progress bar during a scan.
type Display struct {
	mu      sync.Mutex
	started bool
	stopped bool

	// Stats
	probesTotal     atomic.Int64
	probesSent      atomic.Int64
	findings        atomic.Int64
	transportErrors atomic.Int64

	// Timing
	startTime time.Time
	target    string

	// Display
	lastLine string
}

// New creates a new progress display.
func New() *Display {
	return &Display{}
}

// Start begins the progress display.
func (d *Display) Start(target string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return
	}

	d.started = true
	d.startTime = time.Now()
	d.target = target
}

// Update refreshes the progress display with current stats.
func (d *Display) Update(probesTotal, probesSent, findings, transportErrors int) {
	d.probesTotal.Store(int64(probesTotal))
	d.probesSent.Store(int64(probesSent))
	d.findings.Store(int64(findings))
	d.transportErrors.Store(int64(transportErrors))

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started || d.stopped {
		return
	}

	total := probesTotal
	if total == 0 {
		total = 1
	}

	progress := int((float64(probesSent) / float64(total)) * 100)
	if progress > 100 {
		progress = 100
	}

	elapsed := time.Since(d.startTime)
	speed := float64(0)
	if elapsed.Seconds() > 0 {
		speed = float64(probesSent) / elapsed.Seconds()
	}

	barWidth := 30
	filled := int(float64(progress) / 100 * float64(barWidth))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	line := fmt.Sprintf("\r[%s] %3d%% | Probes: %d/%d | Findings: %d | Errors: %d | %.1f r/s | %s",
		bar, progress, probesSent, probesTotal, findings, transportErrors, speed, formatDuration(elapsed))

	if len(line) < len(d.lastLine) {
		fmt.Fprint(os.Stderr, "\r"+strings.Repeat(" ", len(d.lastLine)))
	}
	fmt.Fprint(os.Stderr, line)
	d.lastLine = line
}

// Stop stops the progress display.
func (d *Display) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || !d.started {
		return
	}

	d.stopped = true

	fmt.Fprintln(os.Stderr)
}

// PrintSummary prints a final summary after the scan.
func (d *Display) PrintSummary(status string) {
	duration := time.Since(d.startTime)

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                        Scan Complete                         ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Target:           %s\n", truncate(d.target, 50))
	fmt.Printf("  Status:           %s\n", status)
	fmt.Printf("  Duration:         %s\n", formatDuration(duration))
	fmt.Printf("  Probes Sent:      %d\n", d.probesSent.Load())
	fmt.Printf("  Findings:         %d\n", d.findings.Load())
	fmt.Printf("  Transport Errors: %d\n", d.transportErrors.Load())
	fmt.Println()

	if duration.Seconds() > 0 {
		fmt.Printf("  Average Speed:    %.1f probes/sec\n", float64(d.probesSent.Load())/duration.Seconds())
		fmt.Println()
	}
}

// Stats returns current counters.
func (d *Display) Stats() (probesTotal, probesSent, findings, transportErrors int64) {
	return d.probesTotal.Load(),
		d.probesSent.Load(),
		d.findings.Load(),
		d.transportErrors.Load()
}

// truncate shortens a string to maxLen characters.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
