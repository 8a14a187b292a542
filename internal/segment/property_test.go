package segment

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"atracker/internal/activity"
)

var propertyApps = []string{"", "firefox", "kitty", "code"}

// replay decodes each step word into one tick: the low byte picks the time
// advance in tenths of a second, the next bits the window, idle, probe
// failure and pause inputs, and the top bits an occasional backwards clock
// step.
func replay(steps []uint32) []activity.Event {
	clock := &fakeClock{now: t0}
	probe := &fakeProbe{}
	store := &fakeStore{settings: map[string]string{}}
	pause := &fakePause{}

	m := New(DefaultConfig(), probe, store, nil, WithClock(clock.Now),
		WithPause(pause),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	var at time.Duration
	for _, w := range steps {
		at += time.Duration(w&0xff) * 100 * time.Millisecond
		if (w>>21)&15 == 0 {
			at -= 30 * time.Second
		}
		app := propertyApps[(w>>8)&3]
		idle := int64(0)
		if (w>>10)&7 == 0 {
			idle = 300000
		}
		probe.set(app, app+" window", idle)
		if (w>>13)&15 == 0 {
			probe.fail(context.DeadlineExceeded)
		}
		pause.set((w>>17)&15 == 0)

		clock.Set(at)
		_ = m.Tick(context.Background())
	}
	clock.Set(at + 3*time.Second)
	_ = m.Close(context.Background())

	return store.Events()
}

func TestSegmentationProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("persisted events never overlap", prop.ForAll(
		func(steps []uint32) bool {
			events := replay(steps)
			sort.Slice(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
			for i := 1; i < len(events); i++ {
				if events[i-1].End.After(events[i].Start) {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(60, gen.UInt32()),
	))

	properties.Property("no persisted event is shorter than a second", prop.ForAll(
		func(steps []uint32) bool {
			for _, ev := range replay(steps) {
				if ev.End.Sub(ev.Start) < time.Second || ev.DurationSecs < 1 {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(60, gen.UInt32()),
	))

	properties.Property("no persisted event has an empty identity", prop.ForAll(
		func(steps []uint32) bool {
			for _, ev := range replay(steps) {
				if ev.App == "" {
					return false
				}
				if ev.IsIdle != (ev.App == activity.IdleApp) {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(60, gen.UInt32()),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
