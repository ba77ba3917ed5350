package detect

import (
	"strings"
	"testing"
	"time"

	scanerrors "github.com/PentesterFlow/OpenSQLi/internal/errors"
	"github.com/PentesterFlow/OpenSQLi/internal/executor"
	"github.com/PentesterFlow/OpenSQLi/internal/mutation"
	"github.com/PentesterFlow/OpenSQLi/internal/payloads"
)

func probeResult(technique payloads.Technique, status int, body string) *executor.ProbeResult {
	return &executor.ProbeResult{
		Request: &mutation.ProbeRequest{
			Method: "GET",
			URL:    "https://api.example.com/x",
			Payload: payloads.Payload{
				Value:     "'",
				Technique: technique,
			},
			Leg: mutation.LegProbe,
		},
		StatusCode:  status,
		ContentType: "text/html",
		BodyExcerpt: body,
		BodyLength:  int64(len(body)),
		Latency:     20 * time.Millisecond,
	}
}

func controlResult(status int, body string) *executor.ProbeResult {
	r := probeResult("", status, body)
	r.Request.Leg = mutation.LegControl
	return r
}

func failedResult(technique payloads.Technique) *executor.ProbeResult {
	r := probeResult(technique, 0, "")
	r.TransportError = scanerrors.NewNetworkError("https://api.example.com/x", "probe", nil)
	return r
}

// =============================================================================
// Error-Based Classification Tests
// =============================================================================

func TestClassify_ErrorSignature(t *testing.T) {
	d := New(Config{})
	result := probeResult(payloads.TechniqueError, 500,
		`<html>You have an error in your SQL syntax; check the manual</html>`)
	control := controlResult(200, `<html>ok</html>`)

	v := d.Classify(result, control)
	if !v.Vulnerable {
		t.Fatal("MySQL error signature should be vulnerable")
	}
	if v.Confidence != ConfidenceHigh {
		t.Errorf("Confidence = %v, want high", v.Confidence)
	}
	if v.DBMS != "mysql" {
		t.Errorf("DBMS = %q, want mysql", v.DBMS)
	}
	if !strings.Contains(v.Evidence, "SQL syntax") {
		t.Errorf("Evidence = %q, should contain the matched signature", v.Evidence)
	}
}

func TestClassify_DBMSIdentification(t *testing.T) {
	tests := []struct {
		body string
		dbms string
	}{
		{"ERROR: syntax error at or near \"'\"", "postgresql"},
		{"Unclosed quotation mark after the character string", "mssql"},
		{"ORA-01756: quoted string not properly terminated", "oracle"},
		{"SQLite3::query error near token", "sqlite"},
		{"java.sql.SQLException: bad grammar", "generic"},
	}
	d := New(Config{})
	for _, tt := range tests {
		t.Run(tt.dbms, func(t *testing.T) {
			v := d.Classify(probeResult(payloads.TechniqueError, 500, tt.body), nil)
			if !v.Vulnerable {
				t.Fatalf("body %q should be vulnerable", tt.body)
			}
			if v.DBMS != tt.dbms {
				t.Errorf("DBMS = %q, want %q", v.DBMS, tt.dbms)
			}
		})
	}
}

func TestClassify_ControlSuppression(t *testing.T) {
	d := New(Config{})
	body := "SQL error: something is permanently broken here"
	result := probeResult(payloads.TechniqueError, 500, body)
	control := controlResult(500, body)

	if v := d.Classify(result, control); v.Vulnerable {
		t.Error("signature also present in the control must suppress the verdict")
	}
}

func TestClassify_TransportFailureNeverVulnerable(t *testing.T) {
	d := New(Config{})
	if v := d.Classify(failedResult(payloads.TechniqueError), nil); v.Vulnerable {
		t.Error("a probe without an HTTP response can never be vulnerable")
	}
	if v := d.Classify(nil, nil); v.Vulnerable {
		t.Error("nil result can never be vulnerable")
	}
}

func TestClassify_CleanResponse(t *testing.T) {
	d := New(Config{})
	result := probeResult(payloads.TechniqueError, 200, `{"items": []}`)
	if v := d.Classify(result, nil); v.Vulnerable {
		t.Error("clean response should not be vulnerable")
	}
}

// =============================================================================
// Union-Based Classification Tests
// =============================================================================

func TestClassify_UnionArityMismatch(t *testing.T) {
	d := New(Config{})
	result := probeResult(payloads.TechniqueUnion, 500,
		"The used SELECT statements have a different number of columns")

	v := d.Classify(result, controlResult(200, "ok"))
	if !v.Vulnerable {
		t.Fatal("arity mismatch should be vulnerable")
	}
	if v.Technique != payloads.TechniqueUnion {
		t.Errorf("Technique = %q, want union", v.Technique)
	}
	if v.Confidence != ConfidenceHigh {
		t.Errorf("Confidence = %v, want high", v.Confidence)
	}
}

func TestClassify_UnionFallsBackToErrorSignature(t *testing.T) {
	d := New(Config{})
	result := probeResult(payloads.TechniqueUnion, 500,
		"You have an error in your SQL syntax near UNION")

	v := d.Classify(result, controlResult(200, "ok"))
	if !v.Vulnerable {
		t.Fatal("a UNION probe provoking a plain DB error is still a finding")
	}
	if v.Technique != payloads.TechniqueUnion {
		t.Errorf("Technique = %q, want union", v.Technique)
	}
	if v.DBMS != "mysql" {
		t.Errorf("DBMS = %q, want mysql", v.DBMS)
	}
}

// =============================================================================
// Boolean Pair Classification Tests
// =============================================================================

func TestClassifyPair_Flip(t *testing.T) {
	d := New(Config{})
	trueLeg := probeResult(payloads.TechniqueBoolean, 200, strings.Repeat("row ", 100))
	falseLeg := probeResult(payloads.TechniqueBoolean, 200, "empty")
	control := controlResult(200, strings.Repeat("row ", 100))

	v := d.ClassifyPair(trueLeg, falseLeg, control)
	if !v.Vulnerable {
		t.Fatal("diverging legs with a control matching the true leg should be vulnerable")
	}
	if v.Confidence != ConfidenceMedium {
		t.Errorf("Confidence = %v, want medium", v.Confidence)
	}
}

func TestClassifyPair_StatusFlip(t *testing.T) {
	d := New(Config{})
	trueLeg := probeResult(payloads.TechniqueBoolean, 200, "ok")
	falseLeg := probeResult(payloads.TechniqueBoolean, 404, "ok")
	control := controlResult(200, "ok")

	if v := d.ClassifyPair(trueLeg, falseLeg, control); !v.Vulnerable {
		t.Error("status code flip should be vulnerable")
	}
}

func TestClassifyPair_LegsAgree(t *testing.T) {
	d := New(Config{})
	leg := probeResult(payloads.TechniqueBoolean, 200, "same")
	control := controlResult(200, "same")

	if v := d.ClassifyPair(leg, leg, control); v.Vulnerable {
		t.Error("identical legs should not be vulnerable")
	}
}

func TestClassifyPair_UnstableEndpoint(t *testing.T) {
	d := New(Config{})
	trueLeg := probeResult(payloads.TechniqueBoolean, 200, strings.Repeat("a", 1000))
	falseLeg := probeResult(payloads.TechniqueBoolean, 200, "b")
	// Control disagrees with the true leg too: the endpoint varies on its
	// own, the pair difference proves nothing.
	control := controlResult(500, "oops")

	if v := d.ClassifyPair(trueLeg, falseLeg, control); v.Vulnerable {
		t.Error("pair difference without a stable baseline should not be vulnerable")
	}
}

func TestClassifyPair_NoControl(t *testing.T) {
	d := New(Config{})
	trueLeg := probeResult(payloads.TechniqueBoolean, 200, strings.Repeat("a", 1000))
	falseLeg := probeResult(payloads.TechniqueBoolean, 404, "b")

	if v := d.ClassifyPair(trueLeg, falseLeg, nil); v.Vulnerable {
		t.Error("no baseline, no verdict")
	}
	if v := d.ClassifyPair(trueLeg, falseLeg, failedResult(payloads.TechniqueBoolean)); v.Vulnerable {
		t.Error("failed baseline, no verdict")
	}
}

func TestClassifyPair_SmallDeltaBelowThreshold(t *testing.T) {
	d := New(Config{BooleanDelta: 0.10})
	trueLeg := probeResult(payloads.TechniqueBoolean, 200, strings.Repeat("a", 100))
	falseLeg := probeResult(payloads.TechniqueBoolean, 200, strings.Repeat("a", 95))
	control := controlResult(200, strings.Repeat("a", 100))

	if v := d.ClassifyPair(trueLeg, falseLeg, control); v.Vulnerable {
		t.Error("5% body delta is below the 10% threshold")
	}
}

// =============================================================================
// Time-Based Classification Tests
// =============================================================================

func timedResult(latency, expected time.Duration) *executor.ProbeResult {
	r := probeResult(payloads.TechniqueTime, 200, "ok")
	r.Latency = latency
	r.Request.Payload.ExpectedDelay = expected
	return r
}

func TestClassifyTime(t *testing.T) {
	d := New(Config{TimeTolerance: time.Second})

	tests := []struct {
		name     string
		latency  time.Duration
		baseline time.Duration
		want     bool
	}{
		{"stall observed", 5200 * time.Millisecond, 100 * time.Millisecond, true},
		{"fast response", 150 * time.Millisecond, 100 * time.Millisecond, false},
		{"just under threshold", 4 * time.Second, 100 * time.Millisecond, false},
		{"slow baseline absorbed", 6 * time.Second, 2 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := d.ClassifyTime(timedResult(tt.latency, 5*time.Second), tt.baseline)
			if v.Vulnerable != tt.want {
				t.Errorf("Vulnerable = %v, want %v", v.Vulnerable, tt.want)
			}
			if tt.want && v.Confidence != ConfidenceMedium {
				t.Errorf("Confidence = %v, want medium", v.Confidence)
			}
		})
	}
}

func TestClassifyTime_NoExpectedDelay(t *testing.T) {
	d := New(Config{})
	if v := d.ClassifyTime(timedResult(10*time.Second, 0), 0); v.Vulnerable {
		t.Error("a payload without an expected delay cannot produce a time verdict")
	}
}

func TestClassifyTime_TransportFailure(t *testing.T) {
	d := New(Config{})
	if v := d.ClassifyTime(failedResult(payloads.TechniqueTime), 0); v.Vulnerable {
		t.Error("transport failure is not a stall")
	}
}

// =============================================================================
// Confidence Tests
// =============================================================================

func TestConfidence(t *testing.T) {
	if ConfidenceHigh.Rank() <= ConfidenceMedium.Rank() {
		t.Error("high must outrank medium")
	}
	if ConfidenceMedium.Rank() <= ConfidenceNone.Rank() {
		t.Error("medium must outrank none")
	}
	if ConfidenceHigh.String() != "high" || ConfidenceNone.String() != "none" {
		t.Error("String() mapping broken")
	}
}

// =============================================================================
// Signature Tests
// =============================================================================

func TestMatchError_NoKeywords(t *testing.T) {
	if _, _, ok := matchError("hello world, nothing to see"); ok {
		t.Error("body without SQL keywords should not match")
	}
}

func TestExcerptAround(t *testing.T) {
	body := strings.Repeat("x", 200) + "MATCH" + strings.Repeat("y", 200)
	got := excerptAround(body, []int{200, 205})
	if len(got) != 5+2*contextRadius {
		t.Errorf("excerpt length = %d, want %d", len(got), 5+2*contextRadius)
	}
	if !strings.Contains(got, "MATCH") {
		t.Error("excerpt should contain the match")
	}
}

// =============================================================================
// Evidence Enrichment Tests
// =============================================================================

func TestEnrichEvidence_HTMLTitle(t *testing.T) {
	r := probeResult(payloads.TechniqueError, 500,
		"<html><head><title>Database Error</title></head><body>SQL error near '</body></html>")
	got := enrichEvidence("SQL error near '", r)
	if !strings.Contains(got, "Database Error") {
		t.Errorf("evidence = %q, should carry the page title", got)
	}
}

func TestEnrichEvidence_JSONErrorField(t *testing.T) {
	r := probeResult(payloads.TechniqueError, 500,
		`{"error": "unterminated quoted string", "code": 500}`)
	r.ContentType = "application/json"
	got := enrichEvidence("syntax error", r)
	if !strings.Contains(got, "unterminated quoted string") {
		t.Errorf("evidence = %q, should carry the JSON error field", got)
	}
}

func TestEnrichEvidence_MalformedJSON(t *testing.T) {
	r := probeResult(payloads.TechniqueError, 500, `{"error": `)
	r.ContentType = "application/json"
	// Must not panic, must fall back to the raw context.
	got := enrichEvidence("syntax error", r)
	if got == "" {
		t.Error("evidence should fall back to the matched context")
	}
}
