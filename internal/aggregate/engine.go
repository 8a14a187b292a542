// Package aggregate computes the read-side views over persisted events:
// summaries, timelines, daily totals, focus and category totals.
//
// Views whose range contains the present blend in the open segment published
// by the segmentation machine, so "today" is current without waiting for a
// flush. Historical views (daily totals, export) use persisted events only.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"atracker/internal/activity"
	"atracker/internal/classify"
	"atracker/internal/filter"
	"atracker/internal/metrics"
	"atracker/internal/pattern"
	"atracker/internal/timefmt"
)

// Source is the storage the engine reads from.
type Source interface {
	EventsInRange(ctx context.Context, start, end time.Time) ([]activity.Event, error)
	SummaryRows(ctx context.Context, start, end time.Time) ([]activity.SummaryRow, error)
	DailyTotals(ctx context.Context, start, end time.Time) ([]activity.DayTotal, error)
	Categories(ctx context.Context) ([]activity.Category, error)
	FilterRules(ctx context.Context) ([]activity.FilterRule, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the time zone that defines calendar days.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.loc = loc }
}

// WithMetrics attaches query latency collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger replaces the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithPatternCache shares compiled patterns with other components.
func WithPatternCache(c *pattern.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// Engine answers aggregation queries. It holds no per-query state and is
// safe for concurrent use.
type Engine struct {
	src     Source
	current *activity.Current
	cache   *pattern.Cache
	matcher *classify.Matcher
	metrics *metrics.Metrics
	logger  *slog.Logger
	loc     *time.Location
	now     func() time.Time
}

// New creates an engine reading persisted events from src and the open
// segment from current. current may be nil for a purely historical engine.
func New(src Source, current *activity.Current, opts ...Option) *Engine {
	e := &Engine{
		src:     src,
		current: current,
		loc:     time.Local,
		now:     func() time.Time { return time.Now().Round(0) },
		logger:  slog.Default().With("component", "aggregate"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache == nil {
		e.cache = pattern.NewCache()
	}
	e.matcher = classify.NewMatcher(e.cache)
	return e
}

// Location returns the zone used for calendar days.
func (e *Engine) Location() *time.Location { return e.loc }

// Now returns the engine clock.
func (e *Engine) Now() time.Time { return e.now() }

// Classify returns the category for app and title against cats.
func (e *Engine) Classify(app, title string, cats []activity.Category) activity.Category {
	return e.matcher.Match(app, title, cats)
}

// snapshot is the per-query view of collaborators: the category list, the
// filter set and the open segment as of one instant.
type snapshot struct {
	now  time.Time
	cats []activity.Category
	live *activity.OpenSegment
}

// load reads categories and, when [start, end) contains now, the open segment
// after filter rules. A failure to read categories or rules degrades to
// Uncategorized and an unfiltered view instead of failing the query.
func (e *Engine) load(ctx context.Context, start, end time.Time) snapshot {
	s := snapshot{now: e.now()}

	cats, err := e.src.Categories(ctx)
	if err != nil {
		e.logger.Warn("load categories failed, using uncategorized", "error", err)
	}
	s.cats = cats

	if !timefmt.Contains(start, end, s.now) {
		return s
	}
	seg := e.current.Load()
	if seg == nil || seg.Identity().Empty() {
		return s
	}
	if !seg.IsSentinel() {
		rules, err := e.src.FilterRules(ctx)
		if err != nil {
			e.logger.Warn("load filter rules failed", "error", err)
		}
		d := filter.New(rules, e.cache).Evaluate(seg.App, seg.Title)
		switch d.Outcome {
		case filter.Ignore:
			return s
		case filter.Redact:
			seg.Title = activity.RedactedTitle
		}
	}
	s.live = seg
	return s
}

func (e *Engine) dayRange(day time.Time) (time.Time, time.Time) {
	return timefmt.DayBounds(day, e.loc)
}

func (e *Engine) observe(view string, started time.Time) {
	e.metrics.ObserveQuery(view, time.Since(started))
}

// EnrichedEvent is a persisted event with its category.
type EnrichedEvent struct {
	activity.Event
	Category string `json:"category"`
	Color    string `json:"color"`
}

// Events returns the persisted events of day in start order.
func (e *Engine) Events(ctx context.Context, day time.Time) ([]EnrichedEvent, error) {
	defer e.observe("events", time.Now())

	start, end := e.dayRange(day)
	events, err := e.src.EventsInRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
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
