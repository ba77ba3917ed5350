// Package detect classifies probe responses into injection verdicts.
package detect

import (
	"fmt"
	"time"

	"github.com/PentesterFlow/OpenSQLi/internal/executor"
	"github.com/PentesterFlow/OpenSQLi/internal/payloads"
)

// Confidence grades how certain a verdict is.
type Confidence int

// Confidence levels.
const (
	ConfidenceNone Confidence = iota
	ConfidenceLow
	ConfidenceMedium
	ConfidenceHigh
)

// String returns the string representation.
func (c Confidence) String() string {
	switch c {
	case ConfidenceLow:
		return "low"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceHigh:
		return "high"
	default:
		return "none"
	}
}

// Rank orders confidences; higher is stronger.
func (c Confidence) Rank() int { return int(c) }

// Verdict is the detector's conclusion about one probe (or probe pair).
type Verdict struct {
	Vulnerable bool
	Technique  payloads.Technique
	Confidence Confidence
	DBMS       string
	Evidence   string
	Detail     string
}

// notVulnerable is the zero verdict.
var notVulnerable = Verdict{}

// Config tunes detection thresholds.
type Config struct {
	// BooleanDelta is the relative body length difference between the
	// true and false legs that counts as "different".
	BooleanDelta float64
	// TimeTolerance absorbs network jitter in time-based checks.
	TimeTolerance time.Duration
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		BooleanDelta:  0.10,
		TimeTolerance: time.Second,
	}
}

// Detector classifies probe results against their baselines.
type Detector struct {
	cfg Config
}

// New creates a detector. Zero thresholds fall back to defaults.
func New(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.BooleanDelta <= 0 {
		cfg.BooleanDelta = def.BooleanDelta
	}
	if cfg.TimeTolerance <= 0 {
		cfg.TimeTolerance = def.TimeTolerance
	}
	return &Detector{cfg: cfg}
}

// Classify handles the single-request techniques: error-based and
// union-based. control may be nil when the baseline itself failed.
func (d *Detector) Classify(result, control *executor.ProbeResult) Verdict {
	if result == nil || result.Failed() {
		// No HTTP response is never evidence of injection.
		return notVulnerable
	}

	switch result.Request.Payload.Technique {
	case payloads.TechniqueError:
		return d.classifyError(result, control)
	case payloads.TechniqueUnion:
		return d.classifyUnion(result, control)
	default:
		return notVulnerable
	}
}

// classifyError looks for DBMS error signatures the control does not show.
func (d *Detector) classifyError(result, control *executor.ProbeResult) Verdict {
	dbms, context, ok := matchError(result.BodyExcerpt)
	if !ok {
		return notVulnerable
	}

	// A backend that always serves the same error page is broken, not
	// injectable.
	if control != nil && !control.Failed() {
		if _, _, alsoInControl := matchError(control.BodyExcerpt); alsoInControl {
			return notVulnerable
		}
	}

	return Verdict{
		Vulnerable: true,
		Technique:  payloads.TechniqueError,
		Confidence: ConfidenceHigh,
		DBMS:       dbms,
		Evidence:   enrichEvidence(context, result),
		Detail:     fmt.Sprintf("database error signature in %d response", result.StatusCode),
	}
}

// classifyUnion looks for UNION arity-mismatch signatures.
func (d *Detector) classifyUnion(result, control *executor.ProbeResult) Verdict {
	context, ok := matchUnion(result.BodyExcerpt)
	if !ok {
		// A broken UNION often degrades into a plain syntax error; that
		// still proves the payload reached the query.
		var dbms string
		dbms, context, ok = matchError(result.BodyExcerpt)
		if !ok {
			return notVulnerable
		}
		if control != nil && !control.Failed() {
			if _, _, alsoInControl := matchError(control.BodyExcerpt); alsoInControl {
				return notVulnerable
			}
		}
		return Verdict{
			Vulnerable: true,
			Technique:  payloads.TechniqueUnion,
			Confidence: ConfidenceHigh,
			DBMS:       dbms,
			Evidence:   enrichEvidence(context, result),
			Detail:     "UNION probe provoked a database error",
		}
	}

	if control != nil && !control.Failed() {
		if _, alsoInControl := matchUnion(control.BodyExcerpt); alsoInControl {
			return notVulnerable
		}
	}

	return Verdict{
		Vulnerable: true,
		Technique:  payloads.TechniqueUnion,
		Confidence: ConfidenceHigh,
		Evidence:   enrichEvidence(context, result),
		Detail:     "UNION column count mismatch error",
	}
}

// ClassifyPair handles boolean-based pairs. The pair is injectable when the
// true and false legs disagree while the control agrees with the true leg,
// meaning the injected condition alone flipped the response.
func (d *Detector) ClassifyPair(trueLeg, falseLeg, control *executor.ProbeResult) Verdict {
	if trueLeg == nil || falseLeg == nil || trueLeg.Failed() || falseLeg.Failed() {
		return notVulnerable
	}
	if control == nil || control.Failed() {
		// Without a stable baseline the pair difference proves nothing.
		return notVulnerable
	}

	if !d.differs(trueLeg, falseLeg) {
		return notVulnerable
	}
	if d.differs(trueLeg, control) {
		// Unstable endpoint: the true leg already deviates from the
		// untouched baseline.
		return notVulnerable
	}

	return Verdict{
		Vulnerable: true,
		Technique:  payloads.TechniqueBoolean,
		Confidence: ConfidenceMedium,
		Evidence: fmt.Sprintf("true leg: status %d, %d bytes; false leg: status %d, %d bytes",
			trueLeg.StatusCode, trueLeg.BodyLength, falseLeg.StatusCode, falseLeg.BodyLength),
		Detail: "response flips with the injected condition",
	}
}

// ClassifyTime handles time-based probes against the baseline latency of
// the control request.
func (d *Detector) ClassifyTime(result *executor.ProbeResult, baseline time.Duration) Verdict {
	if result == nil || result.Failed() {
		return notVulnerable
	}

	expected := result.Request.Payload.ExpectedDelay
	if expected <= 0 {
		return notVulnerable
	}

	threshold := baseline + expected - d.cfg.TimeTolerance
	if result.Latency < threshold {
		return notVulnerable
	}

	return Verdict{
		Vulnerable: true,
		Technique:  payloads.TechniqueTime,
		Confidence: ConfidenceMedium,
		Evidence: fmt.Sprintf("response took %v against a %v baseline (payload requests %v stall)",
			result.Latency.Round(time.Millisecond), baseline.Round(time.Millisecond), expected),
		Detail: "latency tracks the injected delay",
	}
}

// differs compares two responses: status code first, then relative body
// length.
func (d *Detector) differs(a, b *executor.ProbeResult) bool {
	if a.StatusCode != b.StatusCode {
		return true
	}

	la, lb := float64(a.BodyLength), float64(b.BodyLength)
	max := la
	if lb > max {
		max = lb
	}
	if max == 0 {
		return false
	}

	delta := la - lb
	if delta < 0 {
		delta = -delta
	}
	return delta/max > d.cfg.BooleanDelta
}
