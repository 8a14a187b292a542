package aggregate

import (
	"context"
	"fmt"
	"time"

	"atracker/internal/activity"
)

// Block is one segment on a timeline.
type Block struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	App          string    `json:"app"`
	Title        string    `json:"title"`
	DurationSecs float64   `json:"duration_secs"`
	IsIdle       bool      `json:"is_idle"`
	Category     string    `json:"category"`
	Color        string    `json:"color"`
	Live         bool      `json:"live,omitempty"`
}

// Timeline returns the blocks of day in time order. When day is today the
// open segment is appended as a final block ending now.
func (e *Engine) Timeline(ctx context.Context, day time.Time) ([]Block, error) {
	defer e.observe("timeline", time.Now())
	return e.timeline(ctx, day)
}

func (e *Engine) timeline(ctx context.Context, day time.Time) ([]Block, error) {
	start, end := e.dayRange(day)
	events, err := e.src.EventsInRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("query timeline: %w", err)
	}
	snap := e.load(ctx, start, end)

	blocks := make([]Block, 0, len(events)+1)
	for _, ev := range events {
		c := e.matcher.Match(ev.App, ev.Title, snap.cats)
		blocks = append(blocks, Block{
			Start:        ev.Start,
			End:          ev.End,
			App:          ev.App,
			Title:        ev.Title,
			DurationSecs: ev.DurationSecs,
			IsIdle:       ev.IsIdle,
			Category:     c.Name,
			Color:        c.Color,
		})
	}
	if seg := snap.live; seg != nil {
		c := e.matcher.Match(seg.App, seg.Title, snap.cats)
		blocks = append(blocks, Block{
			Start:        seg.Start,
			End:          snap.now,
			App:          seg.App,
			Title:        seg.Title,
			DurationSecs: activity.RoundSecs(seg.Elapsed(snap.now)),
			IsIdle:       seg.IsIdle,
			Category:     c.Name,
			Color:        c.Color,
			Live:         true,
		})
	}
	return blocks, nil
}

// FocusReport summarizes how fragmented a day was.
type FocusReport struct {
	Switches          int     `json:"switches"`
	Score             int     `json:"score"`
	LongestStreakSecs float64 `json:"longest_streak_secs"`
	LongestStreakApp  string  `json:"longest_streak_app"`
}

// SwitchPenalty is the score lost per context switch.
const SwitchPenalty = 2

// FocusScore maps a switch count to 0..100.
func FocusScore(switches int) int {
	return max(0, 100-SwitchPenalty*switches)
}

// ComputeFocus counts app switches over blocks in time order. Idle and
// paused blocks reset the previous app, so returning from a break is not a
// switch. A streak is a run of consecutive blocks of the same app.
func ComputeFocus(blocks []Block) FocusReport {
	var (
		r         FocusReport
		prev      string
		streak    float64
		streakApp string
	)
	for _, b := range blocks {
		if b.IsIdle || activity.IsSentinel(b.App) || b.App == "" {
			prev, streak, streakApp = "", 0, ""
			continue
		}
		if prev != "" && b.App != prev {
			r.Switches++
		}
		if b.App == streakApp {
			streak += b.DurationSecs
		} else {
			streak, streakApp = b.DurationSecs, b.App
		}
		if streak > r.LongestStreakSecs {
			r.LongestStreakSecs = streak
			r.LongestStreakApp = streakApp
		}
		prev = b.App
	}
	r.LongestStreakSecs = activity.RoundSecs(r.LongestStreakSecs)
	r.Score = FocusScore(r.Switches)
	return r
}

// Focus computes the focus report over the (live) timeline of day.
func (e *Engine) Focus(ctx context.Context, day time.Time) (FocusReport, error) {
	defer e.observe("focus", time.Now())

	blocks, err := e.timeline(ctx, day)
	if err != nil {
		return FocusReport{}, err
	}
	return ComputeFocus(blocks), nil
}
