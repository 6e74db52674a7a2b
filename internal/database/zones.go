package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/julienbonastre/produce-shipping/internal/calculator"
)

// ListZones returns the zones of a tenant in display order
func (db *DB) ListZones(ctx context.Context, tenantID int64) ([]calculator.Zone, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, display_order
		FROM zones
		WHERE tenant_id = ?
		ORDER BY display_order, id
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	zones := []calculator.Zone{}
	for rows.Next() {
		var z calculator.Zone
		if err := rows.Scan(&z.ID, &z.Name, &z.DisplayOrder); err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

// GetZone returns one zone of a tenant
func (db *DB) GetZone(ctx context.Context, tenantID, id int64) (*calculator.Zone, error) {
	var z calculator.Zone
	err := db.QueryRowContext(ctx, `
		SELECT id, name, display_order FROM zones WHERE tenant_id = ? AND id = ?
	`, tenantID, id).Scan(&z.ID, &z.Name, &z.DisplayOrder)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("zone %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &z, nil
}

// CreateZone stores a new zone and returns its id
func (db *DB) CreateZone(ctx context.Context, tenantID int64, name string, displayOrder int) (int64, error) {
	result, err := db.ExecContext(ctx, `
		INSERT INTO zones (tenant_id, name, display_order)
		VALUES (?, ?, ?)
	`, tenantID, name, displayOrder)
	if err != nil {
		return 0, fmt.Errorf("failed to create zone: %w", err)
	}
	return result.LastInsertId()
}

// UpdateZone renames or reorders a zone
func (db *DB) UpdateZone(ctx context.Context, tenantID int64, z calculator.Zone) error {
	result, err := db.ExecContext(ctx, `
		UPDATE zones
		SET name = ?, display_order = ?, updated_at = CURRENT_TIMESTAMP
		WHERE tenant_id = ? AND id = ?
	`, z.Name, z.DisplayOrder, tenantID, z.ID)
	if err != nil {
		return err
	}
	return requireAffected(result, fmt.Sprintf("zone %d", z.ID))
}

// DeleteZone deletes a zone together with its rates and prefecture assignments
func (db *DB) DeleteZone(ctx context.Context, tenantID, id int64) error {
	result, err := db.ExecContext(ctx, "DELETE FROM zones WHERE tenant_id = ? AND id = ?", tenantID, id)
	if err != nil {
		return err
	}
	return requireAffected(result, fmt.Sprintf("zone %d", id))
}

// ListPrefectureZoneAssignments returns every prefecture→zone assignment of a tenant
func (db *DB) ListPrefectureZoneAssignments(ctx context.Context, tenantID int64) ([]calculator.PrefectureZoneAssignment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT prefecture, zone_id
		FROM prefecture_zone_assignments
		WHERE tenant_id = ?
		ORDER BY zone_id, prefecture
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assignments := []calculator.PrefectureZoneAssignment{}
	for rows.Next() {
		var a calculator.PrefectureZoneAssignment
		if err := rows.Scan(&a.Prefecture, &a.ZoneID); err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// AssignPrefectureToZone moves a prefecture into a zone. Any existing assignment is
// deleted before the new one is inserted, in one transaction.
func (db *DB) AssignPrefectureToZone(ctx context.Context, tenantID int64, prefecture string, zoneID int64) error {
	if !calculator.IsPrefecture(prefecture) {
		return fmt.Errorf("%w: %q", calculator.ErrUnknownPrefecture, prefecture)
	}
	if _, err := db.GetZone(ctx, tenantID, zoneID); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM prefecture_zone_assignments WHERE tenant_id = ? AND prefecture = ?
	`, tenantID, prefecture); err != nil {
		return fmt.Errorf("failed to clear assignment: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO prefecture_zone_assignments (tenant_id, prefecture, zone_id)
		VALUES (?, ?, ?)
	`, tenantID, prefecture, zoneID); err != nil {
		return fmt.Errorf("failed to assign prefecture: %w", err)
	}

	return tx.Commit()
}

// UnassignPrefecture removes a prefecture from its zone
func (db *DB) UnassignPrefecture(ctx context.Context, tenantID int64, prefecture string) error {
	result, err := db.ExecContext(ctx, `
		DELETE FROM prefecture_zone_assignments WHERE tenant_id = ? AND prefecture = ?
	`, tenantID, prefecture)
	if err != nil {
		return err
	}
	return requireAffected(result, fmt.Sprintf("assignment for %s", prefecture))
}
