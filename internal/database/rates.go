package database

import (
	"context"
	"fmt"

	"github.com/julienbonastre/produce-shipping/internal/calculator"
)

// ListFlatRates returns the flat_rate rows of a tenant
func (db *DB) ListFlatRates(ctx context.Context, tenantID int64) ([]calculator.FlatRate, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT carrier, size, base_price, cool_surcharge
		FROM flat_rates
		WHERE tenant_id = ?
		ORDER BY carrier, size
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rates := []calculator.FlatRate{}
	for rows.Next() {
		var r calculator.FlatRate
		var size int
		if err := rows.Scan(&r.Carrier, &size, &r.BasePrice, &r.CoolSurcharge); err != nil {
			return nil, err
		}
		r.Size = calculator.ShippingSize(size)
		rates = append(rates, r)
	}
	return rates, rows.Err()
}

// UpsertFlatRate creates or replaces the row for (carrier, size)
func (db *DB) UpsertFlatRate(ctx context.Context, tenantID int64, r calculator.FlatRate) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO flat_rates (tenant_id, carrier, size, base_price, cool_surcharge)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, carrier, size) DO UPDATE SET
			base_price = excluded.base_price,
			cool_surcharge = excluded.cool_surcharge,
			updated_at = CURRENT_TIMESTAMP
	`, tenantID, string(r.Carrier), int(r.Size), r.BasePrice, r.CoolSurcharge)
	return err
}

// DeleteFlatRate deletes the row for (carrier, size)
func (db *DB) DeleteFlatRate(ctx context.Context, tenantID int64, carrier calculator.Carrier, size calculator.ShippingSize) error {
	result, err := db.ExecContext(ctx, `
		DELETE FROM flat_rates WHERE tenant_id = ? AND carrier = ? AND size = ?
	`, tenantID, string(carrier), int(size))
	if err != nil {
		return err
	}
	return requireAffected(result, fmt.Sprintf("flat rate %s/%d", carrier, size))
}

// ListZoneRates returns the zone rows of a tenant
func (db *DB) ListZoneRates(ctx context.Context, tenantID int64) ([]calculator.ZoneRate, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT carrier, size, zone_id, base_price, cool_surcharge
		FROM zone_rates
		WHERE tenant_id = ?
		ORDER BY carrier, size, zone_id
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rates := []calculator.ZoneRate{}
	for rows.Next() {
		var r calculator.ZoneRate
		var size int
		if err := rows.Scan(&r.Carrier, &size, &r.ZoneID, &r.BasePrice, &r.CoolSurcharge); err != nil {
			return nil, err
		}
		r.Size = calculator.ShippingSize(size)
		rates = append(rates, r)
	}
	return rates, rows.Err()
}

// UpsertZoneRate creates or replaces the row for (carrier, size, zone). The zone must
// belong to the tenant.
func (db *DB) UpsertZoneRate(ctx context.Context, tenantID int64, r calculator.ZoneRate) error {
	if _, err := db.GetZone(ctx, tenantID, r.ZoneID); err != nil {
		return err
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO zone_rates (tenant_id, carrier, size, zone_id, base_price, cool_surcharge)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, carrier, size, zone_id) DO UPDATE SET
			base_price = excluded.base_price,
			cool_surcharge = excluded.cool_surcharge,
			updated_at = CURRENT_TIMESTAMP
	`, tenantID, string(r.Carrier), int(r.Size), r.ZoneID, r.BasePrice, r.CoolSurcharge)
	return err
}

// DeleteZoneRate deletes the row for (carrier, size, zone)
func (db *DB) DeleteZoneRate(ctx context.Context, tenantID int64, carrier calculator.Carrier, size calculator.ShippingSize, zoneID int64) error {
	result, err := db.ExecContext(ctx, `
		DELETE FROM zone_rates WHERE tenant_id = ? AND carrier = ? AND size = ? AND zone_id = ?
	`, tenantID, string(carrier), int(size), zoneID)
	if err != nil {
		return err
	}
	return requireAffected(result, fmt.Sprintf("zone rate %s/%d/%d", carrier, size, zoneID))
}

// ListPrefectureRates returns the prefecture rows of a tenant
func (db *DB) ListPrefectureRates(ctx context.Context, tenantID int64) ([]calculator.PrefectureRate, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT carrier, size, prefecture, base_price, cool_surcharge
		FROM prefecture_rates
		WHERE tenant_id = ?
		ORDER BY carrier, size, prefecture
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rates := []calculator.PrefectureRate{}
	for rows.Next() {
		var r calculator.PrefectureRate
		var size int
		if err := rows.Scan(&r.Carrier, &size, &r.Prefecture, &r.BasePrice, &r.CoolSurcharge); err != nil {
			return nil, err
		}
		r.Size = calculator.ShippingSize(size)
		rates = append(rates, r)
	}
	return rates, rows.Err()
}

// UpsertPrefectureRate creates or replaces the row for (carrier, size, prefecture)
func (db *DB) UpsertPrefectureRate(ctx context.Context, tenantID int64, r calculator.PrefectureRate) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO prefecture_rates (tenant_id, carrier, size, prefecture, base_price, cool_surcharge)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, carrier, size, prefecture) DO UPDATE SET
			base_price = excluded.base_price,
			cool_surcharge = excluded.cool_surcharge,
			updated_at = CURRENT_TIMESTAMP
	`, tenantID, string(r.Carrier), int(r.Size), r.Prefecture, r.BasePrice, r.CoolSurcharge)
	return err
}

// DeletePrefectureRate deletes the row for (carrier, size, prefecture)
func (db *DB) DeletePrefectureRate(ctx context.Context, tenantID int64, carrier calculator.Carrier, size calculator.ShippingSize, prefecture string) error {
	result, err := db.ExecContext(ctx, `
		DELETE FROM prefecture_rates WHERE tenant_id = ? AND carrier = ? AND size = ? AND prefecture = ?
	`, tenantID, string(carrier), int(size), prefecture)
	if err != nil {
		return err
	}
	return requireAffected(result, fmt.Sprintf("prefecture rate %s/%d/%s", carrier, size, prefecture))
}

// LoadRateTable reads the rate table for the given mode. Zone mode also loads the
// prefecture assignments so the table is self-contained.
func (db *DB) LoadRateTable(ctx context.Context, tenantID int64, mode calculator.PricingMode) (calculator.RateTable, error) {
	switch mode {
	case calculator.ModeFlatRate:
		rows, err := db.ListFlatRates(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to load flat rates: %w", err)
		}
		return calculator.FlatRateTable{Rows: rows}, nil

	case calculator.ModeZone:
		rows, err := db.ListZoneRates(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to load zone rates: %w", err)
		}
		assignments, err := db.ListPrefectureZoneAssignments(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to load zone assignments: %w", err)
		}
		return calculator.ZoneRateTable{Rows: rows, Assignments: assignments}, nil

	case calculator.ModePrefecture:
		rows, err := db.ListPrefectureRates(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to load prefecture rates: %w", err)
		}
		return calculator.PrefectureRateTable{Rows: rows}, nil
	}
	return nil, fmt.Errorf("%w: %q", calculator.ErrUnknownPricingMode, mode)
}
