// Package pattern compiles and caches the regular expressions stored on
// categories and filter rules.
package pattern

import (
	"errors"
	"fmt"
	"regexp"
	"sync"
)

// ErrInvalidPattern is returned when a stored pattern does not compile.
var ErrInvalidPattern = errors.New("invalid pattern")

// Validate checks that expr compiles. An empty expression is valid and
// means "match anything" to callers.
func Validate(expr string) error {
	if expr == "" {
		return nil
	}
	if _, err := regexp.Compile(expr); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidPattern, expr, err)
	}
	return nil
}

type cacheKey struct {
	owner string
	field string
	fold  bool
}

type entry struct {
	expr string
	re   *regexp.Regexp
	err  error
}

// Cache holds one compiled matcher per (owner, field, case mode). Replacing
// the expression of an owner recompiles in place, so the cache never grows
// past the number of live rules.
type Cache struct {
	mu      sync.RWMutex
	entries map[cacheKey]*entry
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]*entry)}
}

// Match reports whether expr finds a match anywhere in s. owner identifies
// the rule or category the expression belongs to; field distinguishes its
// app and title patterns. A compile failure is returned on every call so
// the caller can skip that rule.
func (c *Cache) Match(owner, field, expr string, caseSensitive bool, s string) (bool, error) {
	re, err := c.compiled(cacheKey{owner: owner, field: field, fold: !caseSensitive}, expr)
	if err != nil {
		return false, err
	}
	return re.MatchString(s), nil
}

func (c *Cache) compiled(k cacheKey, expr string) (*regexp.Regexp, error) {
	if k.owner == "" {
		// Anonymous patterns are keyed by their text.
		k.owner = "\x00" + expr
	}

	c.mu.RLock()
	e, ok := c.entries[k]
	c.mu.RUnlock()
	if ok && e.expr == expr {
		return e.re, e.err
	}

	src := expr
	if k.fold {
		src = "(?i)" + expr
	}
	re, err := regexp.Compile(src)
	e = &entry{expr: expr, re: re}
	if err != nil {
		e.re = nil
		e.err = fmt.Errorf("%w %q: %v", ErrInvalidPattern, expr, err)
	}

	c.mu.Lock()
	c.entries[k] = e
	c.mu.Unlock()
	return e.re, e.err
}

// Forget drops every entry owned by owner.
func (c *Cache) Forget(owner string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.owner == owner {
			delete(c.entries, k)
		}
	}
}

// Len returns the number of cached matchers.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
