package activity

import (
	"fmt"
	"strconv"
	"time"
)

// Settings keys.
const (
	SettingPollInterval  = "poll_interval_secs"
	SettingIdleThreshold = "idle_threshold_secs"
	SettingPausedUntil   = "paused_until"
)

// Settings are the runtime knobs the segmentation machine reloads.
type Settings struct {
	PollInterval  time.Duration
	IdleThreshold time.Duration
}

// DefaultSettings returns a 5s poll interval and a 120s idle threshold.
func DefaultSettings() Settings {
	return Settings{
		PollInterval:  5 * time.Second,
		IdleThreshold: 120 * time.Second,
	}
}

// ParseSettings overlays the values found in kv onto base. Missing keys keep
// the base value; malformed ones fail the whole parse.
func ParseSettings(kv map[string]string, base Settings) (Settings, error) {
	s := base
	if v, ok := kv[SettingPollInterval]; ok && v != "" {
		d, err := parseSecs(v)
		if err != nil || d < time.Second {
			return base, fmt.Errorf("parse %s %q: invalid duration", SettingPollInterval, v)
		}
		s.PollInterval = d
	}
	if v, ok := kv[SettingIdleThreshold]; ok && v != "" {
		d, err := parseSecs(v)
		if err != nil || d <= 0 {
			return base, fmt.Errorf("parse %s %q: invalid duration", SettingIdleThreshold, v)
		}
		s.IdleThreshold = d
	}
	return s, nil
}

// Map renders the settings as stored key/value strings.
func (s Settings) Map() map[string]string {
	return map[string]string{
		SettingPollInterval:  strconv.FormatFloat(s.PollInterval.Seconds(), 'f', -1, 64),
		SettingIdleThreshold: strconv.FormatFloat(s.IdleThreshold.Seconds(), 'f', -1, 64),
	}
}

func parseSecs(v string) (time.Duration, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(f * float64(time.Second)), nil
}
