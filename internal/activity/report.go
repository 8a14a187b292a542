package activity

import "time"

// SummaryRow is one persisted (app, title) group in a time range.
type SummaryRow struct {
	App       string    `json:"app"`
	Title     string    `json:"title"`
	TotalSecs float64   `json:"total_secs"`
	Count     int       `json:"event_count"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// DayTotal is the persisted activity of one calendar day.
type DayTotal struct {
	Day        string  `json:"day"`
	ActiveSecs float64 `json:"active_secs"`
	IdleSecs   float64 `json:"idle_secs"`
	PausedSecs float64 `json:"paused_secs"`
	EventCount int     `json:"event_count"`
}
