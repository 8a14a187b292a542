// Package activity defines the records shared by the tracker: finished
// events, the open segment, categories, filter rules and runtime settings.
package activity

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Reserved identities. These never reach filter rules or category patterns.
const (
	IdleApp     = "__idle__"
	IdleTitle   = "Idle"
	PausedApp   = "__paused__"
	PausedTitle = "Paused"

	// RedactedTitle replaces the title of segments matched by a redact rule.
	RedactedTitle = "[redacted]"
)

// Identity is what the probe reports for the foreground window.
type Identity struct {
	App   string `json:"app"`
	Title string `json:"title"`
	PID   int    `json:"pid"`
}

// Idle returns the idle sentinel identity.
func Idle() Identity { return Identity{App: IdleApp, Title: IdleTitle} }

// Paused returns the paused sentinel identity.
func Paused() Identity { return Identity{App: PausedApp, Title: PausedTitle} }

// IsSentinel reports whether app is one of the reserved identities.
func IsSentinel(app string) bool {
	return app == IdleApp || app == PausedApp
}

// Empty reports whether the identity denotes "no window".
func (i Identity) Empty() bool { return i.App == "" }

// SameWindow compares the (app, title) pair. The PID is not part of the key.
func (i Identity) SameWindow(o Identity) bool {
	return i.App == o.App && i.Title == o.Title
}

// Event is a closed, persisted segment. Events are immutable once written.
type Event struct {
	ID           string    `json:"id"`
	DeviceID     string    `json:"device_id"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	App          string    `json:"app"`
	Title        string    `json:"title"`
	PID          int       `json:"pid"`
	DurationSecs float64   `json:"duration_secs"`
	IsIdle       bool      `json:"is_idle"`
}

// IsSentinel reports whether the event belongs to the idle or paused identity.
func (e *Event) IsSentinel() bool { return IsSentinel(e.App) }

// OpenSegment is the in-progress segment owned by the segmentation machine.
type OpenSegment struct {
	DeviceID string    `json:"device_id"`
	Start    time.Time `json:"start"`
	App      string    `json:"app"`
	Title    string    `json:"title"`
	PID      int       `json:"pid"`
	IsIdle   bool      `json:"is_idle"`
}

// NewSegment opens a segment for id starting at start.
func NewSegment(deviceID string, id Identity, start time.Time) OpenSegment {
	return OpenSegment{
		DeviceID: deviceID,
		Start:    start,
		App:      id.App,
		Title:    id.Title,
		PID:      id.PID,
		IsIdle:   id.App == IdleApp,
	}
}

// Identity returns the identity the segment tracks.
func (s OpenSegment) Identity() Identity {
	return Identity{App: s.App, Title: s.Title, PID: s.PID}
}

// IsSentinel reports whether the segment tracks idle or paused time.
func (s OpenSegment) IsSentinel() bool { return IsSentinel(s.App) }

// Elapsed returns the seconds between the segment start and now, never negative.
func (s OpenSegment) Elapsed(now time.Time) float64 {
	d := now.Sub(s.Start).Seconds()
	if d < 0 {
		return 0
	}
	return d
}

// Close turns the segment into an event ending at end with a fresh id.
func (s OpenSegment) Close(end time.Time) Event {
	return Event{
		ID:           uuid.NewString(),
		DeviceID:     s.DeviceID,
		Start:        s.Start,
		End:          end,
		App:          s.App,
		Title:        s.Title,
		PID:          s.PID,
		DurationSecs: RoundSecs(end.Sub(s.Start).Seconds()),
		IsIdle:       s.IsIdle,
	}
}

// RoundSecs rounds a duration in seconds to one decimal place.
func RoundSecs(secs float64) float64 {
	return math.Round(secs*10) / 10
}
