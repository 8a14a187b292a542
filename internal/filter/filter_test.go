package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"atracker/internal/activity"
)

func event(app, title string) *activity.Event {
	now := time.Now()
	return &activity.Event{ID: "e", App: app, Title: title, Start: now, End: now.Add(time.Minute)}
}

func TestFirstMatchWins(t *testing.T) {
	set := New([]activity.FilterRule{
		{ID: "r1", Type: activity.RuleIgnore, AppPattern: "X"},
		{ID: "r2", Type: activity.RuleRedact, TitlePattern: ".*"},
	}, nil)

	ev := event("X", "secret doc")
	d := set.Apply(ev)
	assert.Equal(t, Ignore, d.Outcome)
	assert.Equal(t, "r1", d.RuleID)

	// Reversed order: redact now wins.
	set = New([]activity.FilterRule{
		{ID: "r2", Type: activity.RuleRedact, TitlePattern: ".*"},
		{ID: "r1", Type: activity.RuleIgnore, AppPattern: "X"},
	}, nil)
	ev = event("X", "secret doc")
	d = set.Apply(ev)
	assert.Equal(t, Redact, d.Outcome)
	assert.Equal(t, activity.RedactedTitle, ev.Title)
}

func TestBothPatternsMustMatch(t *testing.T) {
	set := New([]activity.FilterRule{
		{ID: "r1", Type: activity.RuleIgnore, AppPattern: "firefox", TitlePattern: "bank"},
	}, nil)

	assert.Equal(t, Keep, set.Evaluate("firefox", "news").Outcome)
	assert.Equal(t, Keep, set.Evaluate("chromium", "My Bank").Outcome)
	assert.Equal(t, Ignore, set.Evaluate("firefox", "My BANK login").Outcome)
}

func TestSearchIsCaseInsensitive(t *testing.T) {
	set := New([]activity.FilterRule{
		{ID: "r1", Type: activity.RuleRedact, TitlePattern: "private"},
	}, nil)
	assert.Equal(t, Redact, set.Evaluate("app", "A PRIVATE window - Firefox").Outcome)
}

func TestBadPatternSkipped(t *testing.T) {
	set := New([]activity.FilterRule{
		{ID: "bad", Type: activity.RuleIgnore, AppPattern: "(("},
		{ID: "good", Type: activity.RuleRedact, AppPattern: "slack"},
	}, nil)

	d := set.Evaluate("slack", "general")
	assert.Equal(t, Redact, d.Outcome)
	assert.Equal(t, "good", d.RuleID)
}

func TestEmptyRuleNeverApplies(t *testing.T) {
	set := New([]activity.FilterRule{{ID: "empty", Type: activity.RuleIgnore}}, nil)
	assert.Equal(t, Keep, set.Evaluate("anything", "at all").Outcome)
}

func TestSentinelsBypassRules(t *testing.T) {
	set := New([]activity.FilterRule{
		{ID: "all", Type: activity.RuleIgnore, AppPattern: ".*"},
	}, nil)

	idle := event(activity.IdleApp, activity.IdleTitle)
	assert.Equal(t, Keep, set.Apply(idle).Outcome)

	paused := event(activity.PausedApp, activity.PausedTitle)
	assert.Equal(t, Keep, set.Apply(paused).Outcome)
	assert.Equal(t, activity.PausedTitle, paused.Title)
}

func TestNilSetKeeps(t *testing.T) {
	var set *Set
	assert.Equal(t, Keep, set.Evaluate("a", "b").Outcome)
	assert.Equal(t, 0, set.Len())
}
