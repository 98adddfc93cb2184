package sched

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// CSVTrace writes status events as CSV rows.
type CSVTrace struct {
	w *csv.Writer
}

// NewCSVTrace writes the header row and returns the trace.
func NewCSVTrace(w io.Writer) (*CSVTrace, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "session", "event", "task_id", "state", "priority", "runner"}); err != nil {
		return nil, fmt.Errorf("write trace header: %w", err)
	}
	cw.Flush()
	return &CSVTrace{w: cw}, cw.Error()
}

// Write appends one event.
func (c *CSVTrace) Write(ev StatusEvent) error {
	rec := []string{
		ev.Time.Format(time.RFC3339Nano),
		ev.Session.String(),
		ev.Kind.String(),
		strconv.FormatUint(uint64(ev.TaskID), 10),
		ev.State.String(),
		strconv.FormatFloat(ev.Priority, 'f', 4, 64),
		ev.Runner,
	}
	return c.w.Write(rec)
}

// Consume writes every event until ch is closed, flushing as it goes.
func (c *CSVTrace) Consume(ch <-chan StatusEvent) error {
	for ev := range ch {
		if err := c.Write(ev); err != nil {
			return fmt.Errorf("write trace: %w", err)
		}
		if len(ch) == 0 {
			c.w.Flush()
		}
	}
	c.w.Flush()
	return c.w.Error()
}
