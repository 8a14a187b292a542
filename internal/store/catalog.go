package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"atracker/internal/activity"
	"atracker/internal/pattern"
)

var colorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ValidateCategory checks a category before it is written. Patterns must
// compile so a bad expression fails here rather than at match time.
func ValidateCategory(c *activity.Category) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: category name is required", ErrInvalid)
	}
	if c.AppPattern == "" && c.TitlePattern == "" {
		return fmt.Errorf("%w: category %q needs an app or title pattern", ErrInvalid, c.Name)
	}
	if err := pattern.Validate(c.AppPattern); err != nil {
		return fmt.Errorf("app_pattern: %w", err)
	}
	if err := pattern.Validate(c.TitlePattern); err != nil {
		return fmt.Errorf("title_pattern: %w", err)
	}
	if c.Color != "" && !colorRe.MatchString(c.Color) {
		return fmt.Errorf("%w: color %q is not #rrggbb", ErrInvalid, c.Color)
	}
	if c.DailyGoalSecs < 0 || c.DailyLimitSecs < 0 {
		return fmt.Errorf("%w: goal and limit must not be negative", ErrInvalid)
	}
	return nil
}

// ValidateFilterRule checks a filter rule before it is written.
func ValidateFilterRule(r *activity.FilterRule) error {
	if !r.Type.Valid() {
		return fmt.Errorf("%w: rule_type %q must be ignore or redact", ErrInvalid, r.Type)
	}
	if r.AppPattern == "" && r.TitlePattern == "" {
		return fmt.Errorf("%w: filter rule needs an app or title pattern", ErrInvalid)
	}
	if err := pattern.Validate(r.AppPattern); err != nil {
		return fmt.Errorf("app_pattern: %w", err)
	}
	if err := pattern.Validate(r.TitlePattern); err != nil {
		return fmt.Errorf("title_pattern: %w", err)
	}
	return nil
}

// Categories returns all categories in match order.
func (s *Store) Categories(ctx context.Context) ([]activity.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, position, name, app_pattern, title_pattern, case_sensitive, color, daily_goal_secs, daily_limit_secs
		FROM categories
		ORDER BY position, name`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var out []activity.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return out, nil
}

// Category returns one category or ErrNotFound.
func (s *Store) Category(ctx context.Context, id string) (*activity.Category, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, position, name, app_pattern, title_pattern, case_sensitive, color, daily_goal_secs, daily_limit_secs
		FROM categories WHERE id = ?`, id)
	c, err := scanCategory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("category %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

// CreateCategory validates c, assigns an id when missing and appends it at
// the end of the match order.
func (s *Store) CreateCategory(ctx context.Context, c *activity.Category) error {
	if err := ValidateCategory(c); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Color == "" {
		c.Color = activity.DefaultColor
	}

	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), -1) + 1 FROM categories`).Scan(&c.Position)
	if err != nil {
		return fmt.Errorf("next category position: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO categories (id, position, name, app_pattern, title_pattern, case_sensitive, color, daily_goal_secs, daily_limit_secs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Position, c.Name, c.AppPattern, c.TitlePattern, c.CaseSensitive, c.Color, c.DailyGoalSecs, c.DailyLimitSecs,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: category %q already exists", ErrInvalid, c.Name)
		}
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

// UpdateCategory replaces the fields of an existing category, keeping its
// position.
func (s *Store) UpdateCategory(ctx context.Context, c *activity.Category) error {
	if err := ValidateCategory(c); err != nil {
		return err
	}
	if c.Color == "" {
		c.Color = activity.DefaultColor
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE categories
		SET name = ?, app_pattern = ?, title_pattern = ?, case_sensitive = ?, color = ?, daily_goal_secs = ?, daily_limit_secs = ?
		WHERE id = ?`,
		c.Name, c.AppPattern, c.TitlePattern, c.CaseSensitive, c.Color, c.DailyGoalSecs, c.DailyLimitSecs, c.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: category %q already exists", ErrInvalid, c.Name)
		}
		return fmt.Errorf("update category: %w", err)
	}
	return expectOne(res, "category", c.ID)
}

// DeleteCategory removes a category.
func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return expectOne(res, "category", id)
}

// ReorderCategories moves the listed categories to the front of the match
// order, in the given order. Unlisted categories follow in their previous
// relative order.
func (s *Store) ReorderCategories(ctx context.Context, ids []string) error {
	return s.reorder(ctx, "categories", "ORDER BY position, name", ids)
}

// ReplaceCategories swaps the whole category set in one transaction.
func (s *Store) ReplaceCategories(ctx context.Context, cats []activity.Category) error {
	for i := range cats {
		if err := ValidateCategory(&cats[i]); err != nil {
			return fmt.Errorf("category %d: %w", i, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM categories`); err != nil {
		return fmt.Errorf("clear categories: %w", err)
	}
	for i := range cats {
		c := &cats[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.Color == "" {
			c.Color = activity.DefaultColor
		}
		c.Position = i
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO categories (id, position, name, app_pattern, title_pattern, case_sensitive, color, daily_goal_secs, daily_limit_secs)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.Position, c.Name, c.AppPattern, c.TitlePattern, c.CaseSensitive, c.Color, c.DailyGoalSecs, c.DailyLimitSecs,
		); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: category %q listed twice", ErrInvalid, c.Name)
			}
			return fmt.Errorf("insert category: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// FilterRules returns all filter rules in evaluation order.
func (s *Store) FilterRules(ctx context.Context) ([]activity.FilterRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, position, rule_type, app_pattern, title_pattern
		FROM filter_rules
		ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("query filter rules: %w", err)
	}
	defer rows.Close()

	var out []activity.FilterRule
	for rows.Next() {
		r, err := scanFilterRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan filter rule: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate filter rules: %w", err)
	}
	return out, nil
}

// FilterRule returns one rule or ErrNotFound.
func (s *Store) FilterRule(ctx context.Context, id string) (*activity.FilterRule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, position, rule_type, app_pattern, title_pattern
		FROM filter_rules WHERE id = ?`, id)
	r, err := scanFilterRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("filter rule %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get filter rule: %w", err)
	}
	return r, nil
}

// CreateFilterRule validates r and appends it to the evaluation order.
func (s *Store) CreateFilterRule(ctx context.Context, r *activity.FilterRule) error {
	if err := ValidateFilterRule(r); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), -1) + 1 FROM filter_rules`).Scan(&r.Position)
	if err != nil {
		return fmt.Errorf("next filter position: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO filter_rules (id, position, rule_type, app_pattern, title_pattern)
		VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Position, string(r.Type), r.AppPattern, r.TitlePattern,
	)
	if err != nil {
		return fmt.Errorf("insert filter rule: %w", err)
	}
	return nil
}

// UpdateFilterRule replaces the fields of an existing rule.
func (s *Store) UpdateFilterRule(ctx context.Context, r *activity.FilterRule) error {
	if err := ValidateFilterRule(r); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE filter_rules SET rule_type = ?, app_pattern = ?, title_pattern = ?
		WHERE id = ?`,
		string(r.Type), r.AppPattern, r.TitlePattern, r.ID,
	)
	if err != nil {
		return fmt.Errorf("update filter rule: %w", err)
	}
	return expectOne(res, "filter rule", r.ID)
}

// DeleteFilterRule removes a rule.
func (s *Store) DeleteFilterRule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM filter_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete filter rule: %w", err)
	}
	return expectOne(res, "filter rule", id)
}

// ReorderFilterRules works like ReorderCategories.
func (s *Store) ReorderFilterRules(ctx context.Context, ids []string) error {
	return s.reorder(ctx, "filter_rules", "ORDER BY position, id", ids)
}

// ReplaceFilterRules swaps the whole rule set in one transaction.
func (s *Store) ReplaceFilterRules(ctx context.Context, rules []activity.FilterRule) error {
	for i := range rules {
		if err := ValidateFilterRule(&rules[i]); err != nil {
			return fmt.Errorf("filter rule %d: %w", i, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM filter_rules`); err != nil {
		return fmt.Errorf("clear filter rules: %w", err)
	}
	for i := range rules {
		r := &rules[i]
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		r.Position = i
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO filter_rules (id, position, rule_type, app_pattern, title_pattern)
			VALUES (?, ?, ?, ?, ?)`,
			r.ID, r.Position, string(r.Type), r.AppPattern, r.TitlePattern,
		); err != nil {
			return fmt.Errorf("insert filter rule: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// reorder rewrites the position column of table. table and order are
// package constants, never user input.
func (s *Store) reorder(ctx context.Context, table, order string, ids []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, "SELECT id FROM "+table+" "+order)
	if err != nil {
		return fmt.Errorf("query %s order: %w", table, err)
	}
	var current []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan id: %w", err)
		}
		current = append(current, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", table, err)
	}

	known := make(map[string]bool, len(current))
	for _, id := range current {
		known[id] = true
	}
	seen := make(map[string]bool, len(ids))
	ordered := make([]string, 0, len(current))
	for _, id := range ids {
		if !known[id] {
			return fmt.Errorf("reorder %s: %s: %w", table, id, ErrNotFound)
		}
		if seen[id] {
			return fmt.Errorf("%w: id %s listed twice", ErrInvalid, id)
		}
		seen[id] = true
		ordered = append(ordered, id)
	}
	for _, id := range current {
		if !seen[id] {
			ordered = append(ordered, id)
		}
	}

	stmt, err := tx.PrepareContext(ctx, "UPDATE "+table+" SET position = ? WHERE id = ?")
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, id := range ordered {
		if _, err := stmt.ExecContext(ctx, i, id); err != nil {
			return fmt.Errorf("update position: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func scanCategory(r rowScanner) (*activity.Category, error) {
	var c activity.Category
	if err := r.Scan(&c.ID, &c.Position, &c.Name, &c.AppPattern, &c.TitlePattern, &c.CaseSensitive, &c.Color, &c.DailyGoalSecs, &c.DailyLimitSecs); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanFilterRule(r rowScanner) (*activity.FilterRule, error) {
	var f activity.FilterRule
	var ruleType string
	if err := r.Scan(&f.ID, &f.Position, &ruleType, &f.AppPattern, &f.TitlePattern); err != nil {
		return nil, err
	}
	f.Type = activity.RuleType(ruleType)
	return &f, nil
}

func expectOne(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return nil
}
