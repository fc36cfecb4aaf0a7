// Package stream decodes the line-framed test result protocol:
// each event is one line "data: <json>" and events arrive in chunks that may
// split lines (and multi-byte runes) anywhere.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"codedojo/internal/grading"
	"codedojo/internal/telemetry"
)

const (
	DefaultMarker    = "data:"
	defaultChunkSize = 4096
)

// Sink receives each result exactly once, in arrival order.
type Sink func(grading.TestResult)

type Stats struct {
	Events  int
	Dropped int
	// Err is the transport error that ended the stream early, if any.
	Err error
}

type Consumer struct {
	marker    []byte
	chunkSize int
	logger    *telemetry.Logger
	metrics   *telemetry.Metrics
}

type Option func(*Consumer)

func WithMarker(marker string) Option {
	return func(c *Consumer) { c.marker = []byte(marker) }
}

func WithChunkSize(n int) Option {
	return func(c *Consumer) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

func WithLogger(l *telemetry.Logger) Option {
	return func(c *Consumer) { c.logger = l }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Consumer) { c.metrics = m }
}

func NewConsumer(opts ...Option) *Consumer {
	c := &Consumer{marker: []byte(DefaultMarker), chunkSize: defaultChunkSize}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Consume reads body until EOF, emitting one result per complete event line.
// A nil body yields a single synthetic error result. A read error, or ctx
// ending before EOF, yields one synthetic error result after whatever was
// already emitted and is reported in Stats.Err.
func (c *Consumer) Consume(ctx context.Context, body io.Reader, sink Sink) Stats {
	d := c.NewDecoder(sink)
	if body == nil {
		d.emit(grading.TestResult{
			TestCase: 1,
			Status:   grading.StatusError,
			Message:  "テストランナーに接続できませんでした。",
		})
		return d.Stats()
	}

	chunk := make([]byte, c.chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			d.fail(err)
			return d.Stats()
		}
		n, err := body.Read(chunk)
		if n > 0 {
			_, _ = d.Write(chunk[:n])
		}
		if err == nil {
			continue
		}
		if cerr := ctx.Err(); cerr != nil {
			d.fail(cerr)
			return d.Stats()
		}
		if errors.Is(err, io.EOF) {
			d.Close()
			return d.Stats()
		}
		d.fail(err)
		return d.Stats()
	}
}

// Decoder is the incremental half of Consumer. It is an io.Writer: every
// Write appends to the rolling buffer and processes all complete lines.
type Decoder struct {
	c    *Consumer
	sink Sink
	buf  []byte

	events  int
	dropped int
	err     error
}

func (c *Consumer) NewDecoder(sink Sink) *Decoder {
	return &Decoder{c: c, sink: sink}
}

func (d *Decoder) Write(p []byte) (int, error) {
	d.buf = append(d.buf, p...)
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			break
		}
		line := d.buf[:idx]
		d.processLine(line)
		d.buf = d.buf[idx+1:]
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return len(p), nil
}

// Close discards any trailing partial line; the stream ended mid-event.
func (d *Decoder) Close() {
	if len(bytes.TrimSpace(d.buf)) > 0 {
		d.c.logger.Debug("stream.partial_line_discarded", map[string]any{"bytes": len(d.buf)})
	}
	d.buf = nil
}

// fail records err as the end of the stream and appends the synthetic error
// result. Only the first failure is reported.
func (d *Decoder) fail(err error) {
	if d.err != nil {
		return
	}
	d.c.logger.Warn("stream.read_failed", map[string]any{"error": err, "events": d.events})
	d.err = err
	d.buf = nil
	d.emit(grading.TestResult{
		TestCase: d.events + 1,
		Status:   grading.StatusError,
		Message:  fmt.Sprintf("テストランナーとの接続が切れました: %v", err),
	})
}

func (d *Decoder) Stats() Stats {
	return Stats{Events: d.events, Dropped: d.dropped, Err: d.err}
}

type wirePayload struct {
	TestCase       *int            `json:"testCase"`
	TestCaseNumber *int            `json:"testCaseNumber"`
	Status         string          `json:"status"`
	Message        string          `json:"message"`
	Input          json.RawMessage `json:"input"`
	Expected       json.RawMessage `json:"expected"`
	Actual         json.RawMessage `json:"actual"`
}

func (d *Decoder) processLine(line []byte) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !bytes.HasPrefix(line, d.c.marker) {
		return
	}
	payload := bytes.TrimSpace(line[len(d.c.marker):])
	if len(payload) == 0 {
		return
	}

	var wire wirePayload
	if err := json.Unmarshal(payload, &wire); err != nil {
		d.drop(payload, err)
		return
	}
	if wire.Status == "" {
		d.drop(payload, errors.New("missing status"))
		return
	}

	ordinal := d.events + 1
	switch {
	case wire.TestCase != nil:
		ordinal = *wire.TestCase
	case wire.TestCaseNumber != nil:
		ordinal = *wire.TestCaseNumber
	}
	d.emit(grading.TestResult{
		TestCase: ordinal,
		Status:   grading.Status(wire.Status),
		Message:  wire.Message,
		Input:    nullToEmpty(wire.Input),
		Expected: nullToEmpty(wire.Expected),
		Actual:   nullToEmpty(wire.Actual),
	})
}

func (d *Decoder) drop(payload []byte, err error) {
	d.dropped++
	d.c.metrics.StreamDropped()
	preview := string(payload)
	if len(preview) > 120 {
		preview = preview[:120]
	}
	d.c.logger.Warn("stream.line_dropped", map[string]any{"error": err, "payload": preview})
}

func (d *Decoder) emit(r grading.TestResult) {
	d.events++
	d.c.metrics.StreamEvent(string(r.Status))
	if d.sink != nil {
		d.sink(r)
	}
}

func nullToEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
