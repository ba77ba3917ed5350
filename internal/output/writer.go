package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// Writer receives findings as they are confirmed and the report at the end.
type Writer interface {
	// WriteFinding emits one finding in streaming mode.
	WriteFinding(f *Finding) error
	// WriteError emits one transport error in streaming mode.
	WriteError(e *ProbeError) error
	// WriteReport emits the final aggregated report.
	WriteReport(r *Report) error
	// Flush flushes buffered output.
	Flush() error
	// Close releases the underlying sink.
	Close() error
}

// TextWriter renders a human-readable report.
type TextWriter struct {
	mu     sync.Mutex
	writer io.Writer
	stream bool
}

// NewTextWriter creates a text writer. When stream is true each finding is
// printed as it arrives.
func NewTextWriter(w io.Writer, stream bool) *TextWriter {
	return &TextWriter{writer: w, stream: stream}
}

// WriteFinding prints a finding line in streaming mode.
func (t *TextWriter) WriteFinding(f *Finding) error {
	if !t.stream {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	_, err := fmt.Fprintf(t.writer, "[%s] %s %s param=%s (%s) technique=%s payload=%q\n",
		strings.ToUpper(f.Confidence), f.Method, f.Path, f.Parameter, f.Location, f.Technique, f.Payload)
	return err
}

// WriteError is a no-op for text output; errors show up in the summary.
func (t *TextWriter) WriteError(e *ProbeError) error {
	return nil
}

// WriteReport prints the final summary.
func (t *TextWriter) WriteReport(r *Report) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	w := t.writer
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Target:    %s\n", r.Target)
	fmt.Fprintf(w, "Status:    %s\n", r.Status)
	fmt.Fprintf(w, "Duration:  %s\n", r.Duration)
	fmt.Fprintf(w, "Endpoints: %d, parameters: %d, probes: %d, transport errors: %d\n",
		r.Stats.Endpoints, r.Stats.ParametersTried, r.Stats.ProbesSent, r.Stats.TransportErrors)
	fmt.Fprintln(w)

	if len(r.Findings) == 0 {
		_, err := fmt.Fprintln(w, "No injection points found.")
		return err
	}

	findings := append([]Finding(nil), r.Findings...)
	sort.Slice(findings, func(i, j int) bool {
		return findings[i].Key() < findings[j].Key()
	})

	fmt.Fprintf(w, "Findings (%d):\n", len(findings))
	for _, f := range findings {
		fmt.Fprintf(w, "  [%s] %s %s\n", strings.ToUpper(f.Confidence), f.Method, f.Path)
		fmt.Fprintf(w, "        parameter: %s (%s), technique: %s", f.Parameter, f.Location, f.Technique)
		if f.DBMS != "" {
			fmt.Fprintf(w, ", dbms: %s", f.DBMS)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "        payload:   %q\n", f.Payload)
		if f.Evidence != "" {
			fmt.Fprintf(w, "        evidence:  %s\n", f.Evidence)
		}
	}
	return nil
}

// Flush implements Writer.
func (t *TextWriter) Flush() error {
	if flusher, ok := t.writer.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

// Close implements Writer.
func (t *TextWriter) Close() error {
	if closer, ok := t.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// MultiWriter fans findings out to several writers.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a writer that duplicates calls to all writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// WriteFinding implements Writer.
func (m *MultiWriter) WriteFinding(f *Finding) error {
	for _, w := range m.writers {
		if err := w.WriteFinding(f); err != nil {
			return err
		}
	}
	return nil
}

// WriteError implements Writer.
func (m *MultiWriter) WriteError(e *ProbeError) error {
	for _, w := range m.writers {
		if err := w.WriteError(e); err != nil {
			return err
		}
	}
	return nil
}

// WriteReport implements Writer.
func (m *MultiWriter) WriteReport(r *Report) error {
	for _, w := range m.writers {
		if err := w.WriteReport(r); err != nil {
			return err
		}
	}
	return nil
}

// Flush implements Writer.
func (m *MultiWriter) Flush() error {
	for _, w := range m.writers {
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// Close implements Writer.
func (m *MultiWriter) Close() error {
	var first error
	for _, w := range m.writers {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
