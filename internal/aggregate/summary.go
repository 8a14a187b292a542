package aggregate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"atracker/internal/activity"
	"atracker/internal/timefmt"
)

// Group is one row of a summary view.
type Group struct {
	App            string    `json:"app"`
	Title          string    `json:"title,omitempty"`
	TotalSecs      float64   `json:"total_secs"`
	TotalFormatted string    `json:"total_formatted"`
	Count          int       `json:"event_count"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
	Category       string    `json:"category"`
	Color          string    `json:"color"`
	Live           bool      `json:"live,omitempty"`
}

// Blend merges the open segment into groups. Idle, paused and empty
// segments are not blended. When byApp is set groups are keyed by app only,
// otherwise by (app, title). The elapsed time is added to the matching group
// or appended as a new one, and the result is re-sorted by total descending.
func Blend(groups []Group, seg *activity.OpenSegment, now time.Time, byApp bool) []Group {
	if seg != nil && !seg.IsIdle && !seg.Identity().Empty() && !seg.IsSentinel() {
		elapsed := seg.Elapsed(now)
		found := false
		for i := range groups {
			g := &groups[i]
			if g.App != seg.App || (!byApp && g.Title != seg.Title) {
				continue
			}
			g.TotalSecs += elapsed
			g.Count++
			if now.After(g.LastSeen) {
				g.LastSeen = now
			}
			if g.FirstSeen.IsZero() || seg.Start.Before(g.FirstSeen) {
				g.FirstSeen = seg.Start
			}
			g.Live = true
			found = true
			break
		}
		if !found {
			g := Group{
				App:       seg.App,
				TotalSecs: elapsed,
				Count:     1,
				FirstSeen: seg.Start,
				LastSeen:  now,
				Live:      true,
			}
			if !byApp {
				g.Title = seg.Title
			}
			groups = append(groups, g)
		}
	}
	sortGroups(groups)
	return groups
}

// sortGroups orders by total descending; ties keep a stable app, title order.
func sortGroups(groups []Group) {
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.TotalSecs != b.TotalSecs {
			return a.TotalSecs > b.TotalSecs
		}
		if a.App != b.App {
			return a.App < b.App
		}
		return a.Title < b.Title
	})
}

func groupsFromRows(rows []activity.SummaryRow, byApp bool) []Group {
	groups := make([]Group, 0, len(rows))
	index := make(map[string]int, len(rows))
	for _, r := range rows {
		if r.App == "" || activity.IsSentinel(r.App) {
			continue
		}
		key := r.App
		if !byApp {
			key = r.App + "\x00" + r.Title
		}
		i, ok := index[key]
		if !ok {
			g := Group{App: r.App, FirstSeen: r.FirstSeen, LastSeen: r.LastSeen}
			if !byApp {
				g.Title = r.Title
			}
			index[key] = len(groups)
			groups = append(groups, g)
			i = len(groups) - 1
		}
		g := &groups[i]
		g.TotalSecs += r.TotalSecs
		g.Count += r.Count
		if r.FirstSeen.Before(g.FirstSeen) {
			g.FirstSeen = r.FirstSeen
		}
		if r.LastSeen.After(g.LastSeen) {
			g.LastSeen = r.LastSeen
		}
	}
	return groups
}

// Summary returns per (app, title) totals for day, excluding idle and
// paused time, with the open segment blended in when day is today.
func (e *Engine) Summary(ctx context.Context, day time.Time) ([]Group, error) {
	defer e.observe("summary", time.Now())
	return e.summary(ctx, day, false)
}

// AppSummary is Summary grouped by app only.
func (e *Engine) AppSummary(ctx context.Context, day time.Time) ([]Group, error) {
	defer e.observe("app_summary", time.Now())
	return e.summary(ctx, day, true)
}

func (e *Engine) summary(ctx context.Context, day time.Time, byApp bool) ([]Group, error) {
	start, end := e.dayRange(day)
	rows, err := e.src.SummaryRows(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	snap := e.load(ctx, start, end)

	groups := Blend(groupsFromRows(rows, byApp), snap.live, snap.now, byApp)
	for i := range groups {
		g := &groups[i]
		c := e.matcher.Match(g.App, g.Title, snap.cats)
		g.Category = c.Name
		g.Color = c.Color
		g.TotalSecs = activity.RoundSecs(g.TotalSecs)
		g.TotalFormatted = timefmt.FormatDuration(g.TotalSecs)
	}
	return groups, nil
}
