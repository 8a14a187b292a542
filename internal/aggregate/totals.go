package aggregate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"atracker/internal/activity"
	"atracker/internal/timefmt"
)

// CategoryTotal is the time spent in one category on a day, with goal and
// limit status.
type CategoryTotal struct {
	Name           string  `json:"name"`
	Color          string  `json:"color"`
	TotalSecs      float64 `json:"total_secs"`
	TotalFormatted string  `json:"total_formatted"`
	DailyGoalSecs  int64   `json:"daily_goal_secs,omitempty"`
	DailyLimitSecs int64   `json:"daily_limit_secs,omitempty"`
	GoalMet        bool    `json:"goal_met"`
	OverLimit      bool    `json:"over_limit"`

	position int
}

// CategoryTotals returns per-category totals for day. Every configured
// category is listed, even at zero, followed by Uncategorized when it has
// time. The open segment is blended in as for Summary.
func (e *Engine) CategoryTotals(ctx context.Context, day time.Time) ([]CategoryTotal, error) {
	defer e.observe("category_totals", time.Now())

	start, end := e.dayRange(day)
	rows, err := e.src.SummaryRows(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("query category totals: %w", err)
	}
	snap := e.load(ctx, start, end)
	groups := Blend(groupsFromRows(rows, false), snap.live, snap.now, false)

	byName := make(map[string]*CategoryTotal, len(snap.cats)+1)
	out := make([]*CategoryTotal, 0, len(snap.cats)+1)
	for i, c := range snap.cats {
		if _, dup := byName[c.Name]; dup {
			continue
		}
		t := &CategoryTotal{
			Name:           c.Name,
			Color:          c.Color,
			DailyGoalSecs:  c.DailyGoalSecs,
			DailyLimitSecs: c.DailyLimitSecs,
			position:       i,
		}
		byName[c.Name] = t
		out = append(out, t)
	}

	for _, g := range groups {
		c := e.matcher.Match(g.App, g.Title, snap.cats)
		t, ok := byName[c.Name]
		if !ok {
			t = &CategoryTotal{Name: c.Name, Color: c.Color, position: len(snap.cats)}
			byName[c.Name] = t
			out = append(out, t)
		}
		t.TotalSecs += g.TotalSecs
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TotalSecs != out[j].TotalSecs {
			return out[i].TotalSecs > out[j].TotalSecs
		}
		return out[i].position < out[j].position
	})

	res := make([]CategoryTotal, 0, len(out))
	for _, t := range out {
		t.TotalSecs = activity.RoundSecs(t.TotalSecs)
		t.TotalFormatted = timefmt.FormatDuration(t.TotalSecs)
		t.GoalMet = t.DailyGoalSecs > 0 && t.TotalSecs >= float64(t.DailyGoalSecs)
		t.OverLimit = t.DailyLimitSecs > 0 && t.TotalSecs > float64(t.DailyLimitSecs)
		res = append(res, *t)
	}
	return res, nil
}

// DayHistory is one day of History.
type DayHistory struct {
	activity.DayTotal
	ActiveFormatted string `json:"active_formatted"`
	IdleFormatted   string `json:"idle_formatted"`
}

// History returns the persisted totals for the last days calendar days,
// today included, newest first. Days without events are reported as zero.
// The open segment is not included.
func (e *Engine) History(ctx context.Context, days int) ([]DayHistory, error) {
	defer e.observe("history", time.Now())

	if days < 1 {
		days = 1
	}
	todayStart, end := e.dayRange(e.now())
	start := todayStart.AddDate(0, 0, -(days - 1))

	totals, err := e.src.DailyTotals(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("query daily totals: %w", err)
	}
	byDay := make(map[string]activity.DayTotal, len(totals))
	for _, t := range totals {
		byDay[t.Day] = t
	}

	out := make([]DayHistory, 0, days)
	for d := todayStart; !d.Before(start); d = d.AddDate(0, 0, -1) {
		key := timefmt.DayKey(d, e.loc)
		t, ok := byDay[key]
		if !ok {
			t = activity.DayTotal{Day: key}
		}
		t.ActiveSecs = activity.RoundSecs(t.ActiveSecs)
		t.IdleSecs = activity.RoundSecs(t.IdleSecs)
		t.PausedSecs = activity.RoundSecs(t.PausedSecs)
		out = append(out, DayHistory{
			DayTotal:        t,
			ActiveFormatted: timefmt.FormatDuration(t.ActiveSecs),
			IdleFormatted:   timefmt.FormatDuration(t.IdleSecs),
		})
	}
	return out, nil
}
