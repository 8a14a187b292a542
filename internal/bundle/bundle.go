// Package bundle moves category and filter-rule sets between installations.
// A bundle is a JSON document checked against an embedded JSON Schema
// before anything is written to the store.
package bundle

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"atracker/internal/activity"
)

// Version is the bundle format version.
const Version = 1

const schemaURL = "https://atracker.local/schema/bundle-v1.json"

//go:embed schema.json
var schemaJSON []byte

// ErrInvalidBundle wraps schema and decoding failures.
var ErrInvalidBundle = errors.New("invalid bundle")

// Bundle is the exported document.
type Bundle struct {
	Version    int                   `json:"version"`
	ExportedAt time.Time             `json:"exported_at"`
	DeviceID   string                `json:"device_id,omitempty"`
	Categories []activity.Category   `json:"categories"`
	Filters    []activity.FilterRule `json:"filters"`
}

// Source is what Export reads.
type Source interface {
	Categories(ctx context.Context) ([]activity.Category, error)
	FilterRules(ctx context.Context) ([]activity.FilterRule, error)
}

// Target is what Import writes.
type Target interface {
	ReplaceCategories(ctx context.Context, cats []activity.Category) error
	ReplaceFilterRules(ctx context.Context, rules []activity.FilterRule) error
}

// Result reports what an import replaced.
type Result struct {
	Categories int  `json:"categories"`
	Filters    int  `json:"filters"`
	FiltersSet bool `json:"filters_replaced"`
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile(schemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile schema: %w", schemaErr)
		}
	})
	return schema, schemaErr
}

// Export reads the current category and filter sets.
func Export(ctx context.Context, src Source, deviceID string, now time.Time) (*Bundle, error) {
	cats, err := src.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	rules, err := src.FilterRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("load filter rules: %w", err)
	}
	if cats == nil {
		cats = []activity.Category{}
	}
	if rules == nil {
		rules = []activity.FilterRule{}
	}
	return &Bundle{
		Version:    Version,
		ExportedAt: now.UTC().Truncate(time.Second),
		DeviceID:   deviceID,
		Categories: cats,
		Filters:    rules,
	}, nil
}

// Write encodes b as indented JSON.
func Write(w io.Writer, b *Bundle) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(b); err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	return nil
}

// Parse validates data against the bundle schema and decodes it. A bundle
// without a "filters" key leaves Filters nil; an explicit empty list is
// returned as an empty, non-nil slice.
func Parse(data []byte) (*Bundle, error) {
	s, err := compiled()
	if err != nil {
		return nil, err
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}
	if err := s.Validate(instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}

	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}
	if fs, ok := instance.(map[string]any)["filters"]; ok && fs != nil && b.Filters == nil {
		b.Filters = []activity.FilterRule{}
	}
	return &b, nil
}

// Read parses a bundle from r.
func Read(r io.Reader) (*Bundle, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	return Parse(data)
}

// Import replaces the category set, and the filter set when the bundle
// carries one. Ids are kept so re-importing an export is idempotent. The two
// sets are replaced in separate transactions.
func Import(ctx context.Context, dst Target, b *Bundle) (Result, error) {
	var res Result
	cats := make([]activity.Category, len(b.Categories))
	copy(cats, b.Categories)
	if err := dst.ReplaceCategories(ctx, cats); err != nil {
		return res, fmt.Errorf("replace categories: %w", err)
	}
	res.Categories = len(cats)

	if b.Filters != nil {
		rules := make([]activity.FilterRule, len(b.Filters))
		copy(rules, b.Filters)
		if err := dst.ReplaceFilterRules(ctx, rules); err != nil {
			return res, fmt.Errorf("replace filter rules: %w", err)
		}
		res.Filters = len(rules)
		res.FiltersSet = true
	}
	return res, nil
}
