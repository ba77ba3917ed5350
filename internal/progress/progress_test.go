package progress

import (
	"testing"
	"time"
)

// =============================================================================
// Display Tests
// =============================================================================

func TestDisplay_Stats(t *testing.T) {
	d := New()
	d.Start("https://api.example.com")
	d.Update(100, 40, 2, 1)

	total, sent, findings, errs := d.Stats()
	if total != 100 || sent != 40 || findings != 2 || errs != 1 {
		t.Errorf("Stats() = %d %d %d %d", total, sent, findings, errs)
	}
}

func TestDisplay_StartIsIdempotent(t *testing.T) {
	d := New()
	d.Start("target")
	first := d.startTime
	time.Sleep(time.Millisecond)
	d.Start("other")

	if d.startTime != first {
		t.Error("second Start must not reset the clock")
	}
	if d.target != "target" {
		t.Errorf("target = %q, want the first one", d.target)
	}
}

func TestDisplay_UpdateBeforeStart(t *testing.T) {
	d := New()
	// Must not render, but counters still record.
	d.Update(10, 5, 0, 0)

	if _, sent, _, _ := d.Stats(); sent != 5 {
		t.Errorf("sent = %d, want 5", sent)
	}
}

func TestDisplay_StopIsIdempotent(t *testing.T) {
	d := New()
	d.Start("target")
	d.Stop()
	d.Stop() // second call is a no-op

	d.Update(10, 10, 0, 0) // must not render after Stop
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
	got := truncate("a very long target url that will not fit", 10)
	if len(got) != 10 {
		t.Errorf("len = %d, want 10", len(got))
	}
	if got[7:] != "..." {
		t.Errorf("truncate() = %q, want ellipsis suffix", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{42 * time.Second, "42s"},
		{90 * time.Second, "1m30s"},
		{3725 * time.Second, "1h02m05s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
