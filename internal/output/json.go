package output

import (
	"encoding/json"
	"io"
	"sync"
)

// JSONWriter writes output in JSON format.
type JSONWriter struct {
	mu     sync.Mutex
	writer io.Writer
	pretty bool
	stream bool
	closed bool
}

// NewJSONWriter creates a new JSON writer.
func NewJSONWriter(w io.Writer, pretty, stream bool) *JSONWriter {
	return &JSONWriter{
		writer: w,
		pretty: pretty,
		stream: stream,
	}
}

// WriteFinding writes a single finding in streaming mode.
func (j *JSONWriter) WriteFinding(f *Finding) error {
	if !j.stream {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}

	return j.writeStreamEvent(StreamEvent{Type: "finding", Data: f})
}

// WriteError writes a transport error in streaming mode.
func (j *JSONWriter) WriteError(e *ProbeError) error {
	if !j.stream {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}

	return j.writeStreamEvent(StreamEvent{Type: "error", Data: e})
}

// WriteReport writes the complete scan report.
func (j *JSONWriter) WriteReport(r *Report) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}

	var data []byte
	var err error

	if j.pretty {
		data, err = json.MarshalIndent(r, "", "  ")
	} else {
		data, err = json.Marshal(r)
	}

	if err != nil {
		return err
	}

	_, err = j.writer.Write(data)
	if err != nil {
		return err
	}

	_, err = j.writer.Write([]byte("\n"))
	return err
}

// writeStreamEvent writes one stream event.
func (j *JSONWriter) writeStreamEvent(event StreamEvent) error {
	var data []byte
	var err error

	if j.pretty {
		data, err = json.MarshalIndent(event, "", "  ")
	} else {
		data, err = json.Marshal(event)
	}

	if err != nil {
		return err
	}

	_, err = j.writer.Write(data)
	if err != nil {
		return err
	}

	_, err = j.writer.Write([]byte("\n"))
	return err
}

// Flush flushes the writer.
func (j *JSONWriter) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if flusher, ok := j.writer.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

// Close closes the writer.
func (j *JSONWriter) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.closed = true

	if closer, ok := j.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
