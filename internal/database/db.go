package database

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/julienbonastre/produce-shipping/internal/calculator"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a tenant-scoped record does not exist
var ErrNotFound = errors.New("record not found")

// IsConflict reports whether err is a uniqueness violation, e.g. a duplicate zone name
func IsConflict(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// DB wraps the SQLite database
type DB struct {
	*sql.DB
}

// Tenant is one seller account. Every other record belongs to exactly one tenant.
type Tenant struct {
	ID          int64     `json:"id"`
	Subject     string    `json:"subject"` // identity provider subject
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Open opens or creates the database
func Open(dbPath string) (*DB, error) {
	// Foreign keys are set in the DSN so every pooled connection gets them
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Initialize schema
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &DB{db}, nil
}

// GetOrCreateTenantFromLogin returns the tenant for an identity provider subject,
// creating it on first login.
func (db *DB) GetOrCreateTenantFromLogin(ctx context.Context, subject, email, displayName string) (*Tenant, bool, error) {
	t, err := db.getTenant(ctx, "subject = ?", subject)
	if err == nil {
		if t.Email != email || t.DisplayName != displayName {
			_, err = db.ExecContext(ctx, `
				UPDATE tenants
				SET email = ?, display_name = ?, updated_at = CURRENT_TIMESTAMP
				WHERE id = ?
			`, email, displayName, t.ID)
			if err != nil {
				return nil, false, fmt.Errorf("failed to update tenant: %w", err)
			}
			t.Email = email
			t.DisplayName = displayName
		}
		return t, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	if displayName == "" {
		displayName = subject
	}
	result, err := db.ExecContext(ctx, `
		INSERT INTO tenants (subject, email, display_name)
		VALUES (?, ?, ?)
	`, subject, email, displayName)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create tenant: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, false, err
	}

	now := time.Now()
	return &Tenant{
		ID:          id,
		Subject:     subject,
		Email:       email,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, true, nil
}

// GetTenant retrieves a tenant by id
func (db *DB) GetTenant(ctx context.Context, id int64) (*Tenant, error) {
	return db.getTenant(ctx, "id = ?", id)
}

func (db *DB) getTenant(ctx context.Context, where string, arg interface{}) (*Tenant, error) {
	var t Tenant
	err := db.QueryRowContext(ctx, `
		SELECT id, subject, COALESCE(email, ''), display_name, created_at, updated_at
		FROM tenants
		WHERE `+where, arg).Scan(&t.ID, &t.Subject, &t.Email, &t.DisplayName, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("tenant: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// SaveTenantRefreshToken stores the encrypted OAuth refresh token of a tenant
func (db *DB) SaveTenantRefreshToken(ctx context.Context, tenantID int64, encrypted []byte) error {
	_, err := db.ExecContext(ctx, `
		UPDATE tenants
		SET refresh_token_enc = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, encrypted, tenantID)
	return err
}

// GetTenantRefreshToken returns the encrypted refresh token, or nil if none is stored
func (db *DB) GetTenantRefreshToken(ctx context.Context, tenantID int64) ([]byte, error) {
	var enc []byte
	err := db.QueryRowContext(ctx, `SELECT refresh_token_enc FROM tenants WHERE id = ?`, tenantID).Scan(&enc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("tenant: %w", ErrNotFound)
	}
	return enc, err
}

const settingPricingMode = "pricing_mode"

// GetSetting returns a single tenant setting, or "" if unset
func (db *DB) GetSetting(ctx context.Context, tenantID int64, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, `
		SELECT value FROM settings
		WHERE tenant_id = ? AND key = ?
	`, tenantID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetSetting creates or replaces a tenant setting
func (db *DB) SetSetting(ctx context.Context, tenantID int64, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO settings (tenant_id, key, value)
		VALUES (?, ?, ?)
		ON CONFLICT(tenant_id, key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, tenantID, key, value)
	return err
}

// GetActivePricingMode returns the tenant's pricing mode; flat_rate when never set
func (db *DB) GetActivePricingMode(ctx context.Context, tenantID int64) (calculator.PricingMode, error) {
	value, err := db.GetSetting(ctx, tenantID, settingPricingMode)
	if err != nil {
		return "", err
	}
	if value == "" {
		return calculator.ModeFlatRate, nil
	}
	return calculator.ParsePricingMode(value)
}

// SetPricingMode switches the tenant's active pricing mode
func (db *DB) SetPricingMode(ctx context.Context, tenantID int64, mode calculator.PricingMode) error {
	if _, err := calculator.ParsePricingMode(string(mode)); err != nil {
		return err
	}
	return db.SetSetting(ctx, tenantID, settingPricingMode, string(mode))
}

// QuoteRecord is one calculation recorded for later review
type QuoteRecord struct {
	ID           string                  `json:"id"`
	TenantID     int64                   `json:"tenantId"`
	Mode         calculator.PricingMode  `json:"mode"`
	Carrier      calculator.Carrier      `json:"carrier"`
	Prefecture   string                  `json:"prefecture,omitempty"`
	FinalSize    calculator.ShippingSize `json:"finalSize,omitempty"`
	CoolDelivery bool                    `json:"coolDelivery"`
	Total        int64                   `json:"total"`
	ErrorCode    string                  `json:"errorCode,omitempty"`
	ErrorMessage string                  `json:"errorMessage,omitempty"`
	CreatedAt    time.Time               `json:"createdAt"`
}

// RecordQuote stores one calculation outcome
func (db *DB) RecordQuote(ctx context.Context, q *QuoteRecord) error {
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO quote_history
		(id, tenant_id, mode, carrier, prefecture, final_size, cool_delivery, total, error_code, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, q.ID, q.TenantID, q.Mode, q.Carrier, q.Prefecture, int(q.FinalSize), q.CoolDelivery, q.Total,
		q.ErrorCode, q.ErrorMessage, q.CreatedAt)
	return err
}

// ListQuoteHistory returns the most recent calculations of a tenant
func (db *DB) ListQuoteHistory(ctx context.Context, tenantID int64, limit int) ([]QuoteRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, tenant_id, mode, carrier, COALESCE(prefecture, ''), COALESCE(final_size, 0),
		       cool_delivery, COALESCE(total, 0), COALESCE(error_code, ''), COALESCE(error_message, ''), created_at
		FROM quote_history
		WHERE tenant_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := []QuoteRecord{}
	for rows.Next() {
		var q QuoteRecord
		var finalSize int
		err := rows.Scan(&q.ID, &q.TenantID, &q.Mode, &q.Carrier, &q.Prefecture, &finalSize,
			&q.CoolDelivery, &q.Total, &q.ErrorCode, &q.ErrorMessage, &q.CreatedAt)
		if err != nil {
			return nil, err
		}
		q.FinalSize = calculator.ShippingSize(finalSize)
		history = append(history, q)
	}
	return history, rows.Err()
}

// SeedDefaultRules gives a tenant without rules the usual 60→80 and 80→100 pair,
// disabled, so the settings screen starts with editable examples.
func (db *DB) SeedDefaultRules(ctx context.Context, tenantID int64) error {
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM consolidation_rules WHERE tenant_id = ?", tenantID).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil // Already seeded
	}

	defaults := []calculator.ConsolidationRule{
		{Name: "60サイズ2個→80サイズ", FromSize: calculator.Size60, Quantity: 2, ToSize: calculator.Size80},
		{Name: "80サイズ2個→100サイズ", FromSize: calculator.Size80, Quantity: 2, ToSize: calculator.Size100},
	}
	for _, r := range defaults {
		if _, err := db.CreateConsolidationRule(ctx, tenantID, r); err != nil {
			return fmt.Errorf("failed to seed rule %s: %w", r.Name, err)
		}
	}
	return nil
}
