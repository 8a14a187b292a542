package aggregate

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// ExportHeader is the CSV header row.
var ExportHeader = []string{"id", "device_id", "start", "end", "app", "title", "pid", "duration_secs", "is_idle", "category"}

// ExportRange returns the persisted events in [start, end) with categories.
// The open segment is never included.
func (e *Engine) ExportRange(ctx context.Context, start, end time.Time) ([]EnrichedEvent, error) {
	events, err := e.src.EventsInRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("query export range: %w", err)
	}
	cats, err := e.src.Categories(ctx)
	if err != nil {
		e.logger.Warn("load categories failed, using uncategorized", "error", err)
	}
	out := make([]EnrichedEvent, 0, len(events))
	for _, ev := range events {
		c := e.matcher.Match(ev.App, ev.Title, cats)
		out = append(out, EnrichedEvent{Event: ev, Category: c.Name, Color: c.Color})
	}
	return out, nil
}

// Export writes the events in [start, end) to w as CSV or JSON lines and
// returns the number of events written.
func (e *Engine) Export(ctx context.Context, w io.Writer, start, end time.Time, format string) (int, error) {
	defer e.observe("export", time.Now())

	if format != FormatCSV && format != FormatJSON {
		return 0, fmt.Errorf("unsupported export format %q", format)
	}
	events, err := e.ExportRange(ctx, start, end)
	if err != nil {
		return 0, err
	}

	if format == FormatJSON {
		enc := json.NewEncoder(w)
		for _, ev := range events {
			if err := enc.Encode(ev); err != nil {
				return 0, fmt.Errorf("encode event: %w", err)
			}
		}
		return len(events), nil
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}
	for _, ev := range events {
		rec := []string{
			ev.ID,
			ev.DeviceID,
			ev.Start.Format(time.RFC3339),
			ev.End.Format(time.RFC3339),
			ev.App,
			ev.Title,
			strconv.Itoa(ev.PID),
			strconv.FormatFloat(ev.DurationSecs, 'f', 1, 64),
			strconv.FormatBool(ev.IsIdle),
			ev.Category,
		}
		if err := cw.Write(rec); err != nil {
			return 0, fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("flush csv: %w", err)
	}
	return len(events), nil
}
