// Package filter applies ignore and redact rules to segments before they are
// persisted.
package filter

import (
	"log/slog"

	"atracker/internal/activity"
	"atracker/internal/pattern"
)

// Outcome is the effect of the rule set on one segment.
type Outcome int

const (
	// Keep persists the segment unchanged.
	Keep Outcome = iota
	// Ignore drops the segment.
	Ignore
	// Redact persists the segment with its title replaced.
	Redact
)

func (o Outcome) String() string {
	switch o {
	case Ignore:
		return "ignore"
	case Redact:
		return "redact"
	default:
		return "keep"
	}
}

// Decision records the outcome and the rule that produced it.
type Decision struct {
	Outcome Outcome
	RuleID  string
}

// Set is an ordered, immutable list of filter rules. It is safe for
// concurrent use.
type Set struct {
	rules  []activity.FilterRule
	cache  *pattern.Cache
	logger *slog.Logger
}

// New builds a rule set. A nil cache gets a private one.
func New(rules []activity.FilterRule, cache *pattern.Cache) *Set {
	if cache == nil {
		cache = pattern.NewCache()
	}
	return &Set{
		rules:  append([]activity.FilterRule(nil), rules...),
		cache:  cache,
		logger: slog.Default().With("component", "filter"),
	}
}

// Len returns the number of rules.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Evaluate returns the decision of the first rule matching app and title.
// Matching is a case-insensitive search; an empty pattern matches anything,
// but a rule with both patterns empty is never applied. Rules whose patterns
// fail to compile are skipped.
func (s *Set) Evaluate(app, title string) Decision {
	if s == nil {
		return Decision{Outcome: Keep}
	}
	for _, r := range s.rules {
		// A rule without patterns matches nothing; the store refuses to write one.
		if r.AppPattern == "" && r.TitlePattern == "" {
			continue
		}
		matched, ok := s.matches(r, app, title)
		if !ok || !matched {
			continue
		}
		switch r.Type {
		case activity.RuleIgnore:
			return Decision{Outcome: Ignore, RuleID: r.ID}
		case activity.RuleRedact:
			return Decision{Outcome: Redact, RuleID: r.ID}
		}
	}
	return Decision{Outcome: Keep}
}

func (s *Set) matches(r activity.FilterRule, app, title string) (matched, ok bool) {
	if r.AppPattern != "" {
		m, err := s.cache.Match(r.ID, "app", r.AppPattern, false, app)
		if err != nil {
			s.logger.Warn("skipping filter rule", "rule_id", r.ID, "error", err)
			return false, false
		}
		if !m {
			return false, true
		}
	}
	if r.TitlePattern != "" {
		m, err := s.cache.Match(r.ID, "title", r.TitlePattern, false, title)
		if err != nil {
			s.logger.Warn("skipping filter rule", "rule_id", r.ID, "error", err)
			return false, false
		}
		if !m {
			return false, true
		}
	}
	return true, true
}

// Apply evaluates ev and rewrites its title on Redact. Sentinel segments
// bypass the rules and are always kept.
func (s *Set) Apply(ev *activity.Event) Decision {
	if ev.IsSentinel() {
		return Decision{Outcome: Keep}
	}
	d := s.Evaluate(ev.App, ev.Title)
	if d.Outcome == Redact {
		ev.Title = activity.RedactedTitle
	}
	return d
}
