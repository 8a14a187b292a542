package activity

import (
	"context"
	"fmt"
	"time"
)

// PauseIndefinite is stored in paused_until when no expiry was given.
const PauseIndefinite = "indefinite"

// SettingStore is the slice of storage the pause controller needs.
type SettingStore interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

// PauseState describes whether tracking is paused.
type PauseState struct {
	Paused     bool      `json:"paused"`
	Indefinite bool      `json:"indefinite"`
	Until      time.Time `json:"until,omitempty"`
}

// ParsePause interprets a stored paused_until value at now. expired is true
// when the value names a time that has already passed.
func ParsePause(value string, now time.Time) (state PauseState, expired bool, err error) {
	switch value {
	case "":
		return PauseState{}, false, nil
	case PauseIndefinite:
		return PauseState{Paused: true, Indefinite: true}, false, nil
	}
	until, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return PauseState{}, false, fmt.Errorf("parse %s: %w", SettingPausedUntil, err)
	}
	if !now.Before(until) {
		return PauseState{}, true, nil
	}
	return PauseState{Paused: true, Until: until}, false, nil
}

// Pauser reads and writes the global pause flag kept in settings.
type Pauser struct {
	store SettingStore
	now   func() time.Time
}

// NewPauser creates a pause controller. A nil now uses time.Now.
func NewPauser(store SettingStore, now func() time.Time) *Pauser {
	if now == nil {
		now = time.Now
	}
	return &Pauser{store: store, now: now}
}

// Pause stops tracking for d. A non-positive d pauses until Resume.
func (p *Pauser) Pause(ctx context.Context, d time.Duration) (PauseState, error) {
	value := PauseIndefinite
	state := PauseState{Paused: true, Indefinite: true}
	if d > 0 {
		until := p.now().Add(d).Truncate(time.Second)
		value = until.Format(time.RFC3339)
		state = PauseState{Paused: true, Until: until}
	}
	if err := p.store.SetSetting(ctx, SettingPausedUntil, value); err != nil {
		return PauseState{}, fmt.Errorf("set pause: %w", err)
	}
	return state, nil
}

// Resume clears the pause flag.
func (p *Pauser) Resume(ctx context.Context) error {
	if err := p.store.DeleteSetting(ctx, SettingPausedUntil); err != nil {
		return fmt.Errorf("clear pause: %w", err)
	}
	return nil
}

// State returns the current pause state, clearing an expired timed pause.
func (p *Pauser) State(ctx context.Context) (PauseState, error) {
	value, _, err := p.store.GetSetting(ctx, SettingPausedUntil)
	if err != nil {
		return PauseState{}, fmt.Errorf("get pause: %w", err)
	}
	state, expired, err := ParsePause(value, p.now())
	if err != nil {
		return PauseState{}, err
	}
	if expired {
		if err := p.store.DeleteSetting(ctx, SettingPausedUntil); err != nil {
			return PauseState{}, fmt.Errorf("clear expired pause: %w", err)
		}
	}
	return state, nil
}

// Paused reports only the flag.
func (p *Pauser) Paused(ctx context.Context) (bool, error) {
	state, err := p.State(ctx)
	if err != nil {
		return false, err
	}
	return state.Paused, nil
}
