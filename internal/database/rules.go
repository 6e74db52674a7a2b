package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/julienbonastre/produce-shipping/internal/calculator"
)

// ListConsolidationRules returns every rule of a tenant, enabled or not, by id
func (db *DB) ListConsolidationRules(ctx context.Context, tenantID int64) ([]calculator.ConsolidationRule, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, from_size, quantity, to_size, enabled
		FROM consolidation_rules
		WHERE tenant_id = ?
		ORDER BY id
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := []calculator.ConsolidationRule{}
	for rows.Next() {
		var r calculator.ConsolidationRule
		var from, to int
		if err := rows.Scan(&r.ID, &r.Name, &from, &r.Quantity, &to, &r.Enabled); err != nil {
			return nil, err
		}
		r.FromSize = calculator.ShippingSize(from)
		r.ToSize = calculator.ShippingSize(to)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// GetConsolidationRule returns one rule of a tenant
func (db *DB) GetConsolidationRule(ctx context.Context, tenantID, id int64) (*calculator.ConsolidationRule, error) {
	var r calculator.ConsolidationRule
	var from, to int
	err := db.QueryRowContext(ctx, `
		SELECT id, name, from_size, quantity, to_size, enabled
		FROM consolidation_rules
		WHERE tenant_id = ? AND id = ?
	`, tenantID, id).Scan(&r.ID, &r.Name, &from, &r.Quantity, &to, &r.Enabled)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("consolidation rule %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	r.FromSize = calculator.ShippingSize(from)
	r.ToSize = calculator.ShippingSize(to)
	return &r, nil
}

// CreateConsolidationRule validates and stores a new rule, returning its id
func (db *DB) CreateConsolidationRule(ctx context.Context, tenantID int64, r calculator.ConsolidationRule) (int64, error) {
	r.ID = 0
	if err := r.Validate(); err != nil {
		return 0, err
	}

	result, err := db.ExecContext(ctx, `
		INSERT INTO consolidation_rules (tenant_id, name, from_size, quantity, to_size, enabled)
		VALUES (?, ?, ?, ?, ?, ?)
	`, tenantID, r.Name, int(r.FromSize), r.Quantity, int(r.ToSize), r.Enabled)
	if err != nil {
		return 0, fmt.Errorf("failed to create consolidation rule: %w", err)
	}
	return result.LastInsertId()
}

// UpdateConsolidationRule validates and replaces an existing rule
func (db *DB) UpdateConsolidationRule(ctx context.Context, tenantID int64, r calculator.ConsolidationRule) error {
	if err := r.Validate(); err != nil {
		return err
	}

	result, err := db.ExecContext(ctx, `
		UPDATE consolidation_rules
		SET name = ?, from_size = ?, quantity = ?, to_size = ?, enabled = ?, updated_at = CURRENT_TIMESTAMP
		WHERE tenant_id = ? AND id = ?
	`, r.Name, int(r.FromSize), r.Quantity, int(r.ToSize), r.Enabled, tenantID, r.ID)
	if err != nil {
		return err
	}
	return requireAffected(result, fmt.Sprintf("consolidation rule %d", r.ID))
}

// ReplaceConsolidationRules swaps every rule of a tenant for rules in one transaction.
// If any rule fails validation nothing is changed.
func (db *DB) ReplaceConsolidationRules(ctx context.Context, tenantID int64, rules []calculator.ConsolidationRule) error {
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return err
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM consolidation_rules WHERE tenant_id = ?", tenantID); err != nil {
		return fmt.Errorf("failed to clear consolidation rules: %w", err)
	}
	for _, r := range rules {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO consolidation_rules (tenant_id, name, from_size, quantity, to_size, enabled)
			VALUES (?, ?, ?, ?, ?, ?)
		`, tenantID, r.Name, int(r.FromSize), r.Quantity, int(r.ToSize), r.Enabled); err != nil {
			return fmt.Errorf("failed to insert consolidation rule: %w", err)
		}
	}
	return tx.Commit()
}

// DeleteConsolidationRule deletes a rule
func (db *DB) DeleteConsolidationRule(ctx context.Context, tenantID, id int64) error {
	result, err := db.ExecContext(ctx, "DELETE FROM consolidation_rules WHERE tenant_id = ? AND id = ?", tenantID, id)
	if err != nil {
		return err
	}
	return requireAffected(result, fmt.Sprintf("consolidation rule %d", id))
}

func requireAffected(result sql.Result, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
