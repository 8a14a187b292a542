// Package classify assigns categories to windows.
package classify

import (
	"log/slog"

	"atracker/internal/activity"
	"atracker/internal/pattern"
)

// Matcher resolves (app, title) pairs to categories. It is safe for
// concurrent use; compiled patterns are shared through the cache.
type Matcher struct {
	cache  *pattern.Cache
	logger *slog.Logger
}

// NewMatcher creates a matcher. A nil cache gets a private one.
func NewMatcher(cache *pattern.Cache) *Matcher {
	if cache == nil {
		cache = pattern.NewCache()
	}
	return &Matcher{
		cache:  cache,
		logger: slog.Default().With("component", "classify"),
	}
}

// Match returns the category for app and title. Title patterns are tried
// first across all categories, then app patterns, each pass in list order.
// Sentinel identities get their fixed labels. Categories with a broken
// pattern are skipped; when nothing matches the result is Uncategorized.
func (m *Matcher) Match(app, title string, cats []activity.Category) activity.Category {
	if c, ok := activity.SentinelCategory(app); ok {
		return c
	}
	for _, c := range cats {
		if c.TitlePattern == "" {
			continue
		}
		if m.try(c, "title", c.TitlePattern, title) {
			return c
		}
	}
	for _, c := range cats {
		if c.AppPattern == "" {
			continue
		}
		if m.try(c, "app", c.AppPattern, app) {
			return c
		}
	}
	return activity.Uncategorized()
}

func (m *Matcher) try(c activity.Category, field, expr, s string) bool {
	owner := c.ID
	if owner == "" {
		owner = "name:" + c.Name
	}
	ok, err := m.cache.Match(owner, field, expr, c.CaseSensitive, s)
	if err != nil {
		m.logger.Debug("skipping category", "category", c.Name, "field", field, "error", err)
		return false
	}
	return ok
}
