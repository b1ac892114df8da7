package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/arnold17091984/accounting-automation/internal/model"
)

const ruleColumns = `id, pattern, entity, is_regex, account_code, account_name, category,
	confidence, provenance, use_count, last_used_at, created_at`

// InsertRuleIfAbsent atomically inserts a merchant rule unless a rule with
// the same (pattern, entity) already exists. Reports whether a row was
// inserted. Existing rules are never overwritten, so learned rules cannot
// displace manual ones.
func (s *SQLiteStorage) InsertRuleIfAbsent(ctx context.Context, rule *model.MerchantRule) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if rule == nil {
		return false, fmt.Errorf("rule cannot be nil")
	}
	if err := validateString(rule.Pattern, "pattern"); err != nil {
		return false, err
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO merchant_rules
			(pattern, entity, is_regex, account_code, account_name, category,
			 confidence, provenance, use_count, last_used_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, ?)
		ON CONFLICT(pattern, entity) DO NOTHING
	`, rule.Pattern, rule.Entity, rule.IsRegex, rule.AccountCode, rule.AccountName,
		rule.Category, rule.Confidence, rule.Provenance, rule.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert rule: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	id, err := result.LastInsertId()
	if err == nil {
		rule.ID = id
	}
	return true, nil
}

// GetRulesForEntity returns rules usable for an entity: entity-specific
// rules plus entity-agnostic ones, highest confidence first, ties broken by
// most recent use.
func (s *SQLiteStorage) GetRulesForEntity(ctx context.Context, entity string) ([]model.MerchantRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ruleColumns+` FROM merchant_rules
		WHERE entity = ? OR entity = ''
		ORDER BY confidence DESC, last_used_at DESC
	`, entity)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.MerchantRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// FindExactRule looks up a non-regex rule by pattern for an entity scope.
func (s *SQLiteStorage) FindExactRule(ctx context.Context, pattern, entity string) (*model.MerchantRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(pattern, "pattern"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+ruleColumns+` FROM merchant_rules
		WHERE pattern = ? AND is_regex = 0 AND (entity = ? OR entity = '')
		ORDER BY CASE WHEN entity = ? THEN 0 ELSE 1 END
		LIMIT 1
	`, pattern, entity, entity)

	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find rule: %w", err)
	}
	return rule, nil
}

// RecordRuleUse bumps a rule's usage counter and last-used timestamp. The
// increment is a single atomic statement; lost updates are tolerable since
// usage data is analytics, not ledger state.
func (s *SQLiteStorage) RecordRuleUse(ctx context.Context, ruleID int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE merchant_rules
		SET use_count = use_count + 1, last_used_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, ruleID)
	if err != nil {
		return fmt.Errorf("failed to record rule use: %w", err)
	}
	return nil
}

func scanRule(row interface{ Scan(...any) error }) (*model.MerchantRule, error) {
	var (
		rule     model.MerchantRule
		lastUsed sql.NullTime
	)
	err := row.Scan(
		&rule.ID, &rule.Pattern, &rule.Entity, &rule.IsRegex,
		&rule.AccountCode, &rule.AccountName, &rule.Category,
		&rule.Confidence, &rule.Provenance, &rule.UseCount,
		&lastUsed, &rule.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastUsed.Valid {
		rule.LastUsedAt = lastUsed.Time
	}
	return &rule, nil
}
