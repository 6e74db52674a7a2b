// Package sync copies a tenant's shipping settings in and out as a portable bundle,
// so a seller can back up a configuration or reuse it for another shop.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/julienbonastre/produce-shipping/internal/calculator"
	"github.com/julienbonastre/produce-shipping/internal/database"
)

// BundleVersion is the only bundle format Import accepts
const BundleVersion = 1

// Bundle is a tenant's settings. Zones are referenced by name, not id, so a bundle can
// be imported into any tenant.
type Bundle struct {
	Version         int                            `json:"version"`
	ExportedAt      time.Time                      `json:"exportedAt"`
	PricingMode     calculator.PricingMode         `json:"pricingMode"`
	Rules           []calculator.ConsolidationRule `json:"rules"`
	Zones           []BundleZone                   `json:"zones"`
	FlatRates       []calculator.FlatRate          `json:"flatRates"`
	ZoneRates       []BundleZoneRate               `json:"zoneRates"`
	PrefectureRates []calculator.PrefectureRate    `json:"prefectureRates"`
}

// BundleZone is a zone with the prefectures assigned to it
type BundleZone struct {
	Name         string   `json:"name"`
	DisplayOrder int      `json:"displayOrder"`
	Prefectures  []string `json:"prefectures"`
}

// BundleZoneRate is a zone rate keyed by zone name
type BundleZoneRate struct {
	Carrier       calculator.Carrier      `json:"carrier"`
	Size          calculator.ShippingSize `json:"size"`
	Zone          string                  `json:"zone"`
	BasePrice     int64                   `json:"basePrice"`
	CoolSurcharge int64                   `json:"coolSurcharge"`
}

// Result summarises an import. Status is "success", or "partial" when some entries
// were rejected; their messages are in Errors.
type Result struct {
	Status      string   `json:"status"`
	Rules       int      `json:"rules"`
	Zones       int      `json:"zones"`
	Assignments int      `json:"assignments"`
	Rates       int      `json:"rates"`
	Errors      []string `json:"errors,omitempty"`
}

// ErrUnsupportedVersion is returned for bundles from an unknown format
var ErrUnsupportedVersion = errors.New("unsupported settings bundle version")

// ErrNegativePrice marks an imported rate row with a price below zero
var ErrNegativePrice = errors.New("rate prices must not be negative")

// Service handles settings export and import for tenants
type Service struct {
	db     *database.DB
	logger *zap.Logger
}

// NewService creates a new sync service
func NewService(db *database.DB, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, logger: logger}
}

// Export reads every setting of a tenant into a bundle
func (s *Service) Export(ctx context.Context, tenantID int64) (*Bundle, error) {
	mode, err := s.db.GetActivePricingMode(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	b := &Bundle{
		Version:     BundleVersion,
		ExportedAt:  time.Now().UTC(),
		PricingMode: mode,
	}

	if b.Rules, err = s.db.ListConsolidationRules(ctx, tenantID); err != nil {
		return nil, fmt.Errorf("failed to export rules: %w", err)
	}

	zones, err := s.db.ListZones(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to export zones: %w", err)
	}
	assignments, err := s.db.ListPrefectureZoneAssignments(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to export zone assignments: %w", err)
	}

	zoneNames := make(map[int64]string, len(zones))
	index := make(map[int64]int, len(zones))
	b.Zones = make([]BundleZone, 0, len(zones))
	for _, z := range zones {
		zoneNames[z.ID] = z.Name
		index[z.ID] = len(b.Zones)
		b.Zones = append(b.Zones, BundleZone{Name: z.Name, DisplayOrder: z.DisplayOrder, Prefectures: []string{}})
	}
	for _, a := range assignments {
		if i, ok := index[a.ZoneID]; ok {
			b.Zones[i].Prefectures = append(b.Zones[i].Prefectures, a.Prefecture)
		}
	}

	if b.FlatRates, err = s.db.ListFlatRates(ctx, tenantID); err != nil {
		return nil, fmt.Errorf("failed to export flat rates: %w", err)
	}

	zoneRates, err := s.db.ListZoneRates(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to export zone rates: %w", err)
	}
	b.ZoneRates = make([]BundleZoneRate, 0, len(zoneRates))
	for _, r := range zoneRates {
		b.ZoneRates = append(b.ZoneRates, BundleZoneRate{
			Carrier:       r.Carrier,
			Size:          r.Size,
			Zone:          zoneNames[r.ZoneID],
			BasePrice:     r.BasePrice,
			CoolSurcharge: r.CoolSurcharge,
		})
	}

	if b.PrefectureRates, err = s.db.ListPrefectureRates(ctx, tenantID); err != nil {
		return nil, fmt.Errorf("failed to export prefecture rates: %w", err)
	}

	s.logger.Info("settings exported",
		zap.Int64("tenant_id", tenantID),
		zap.Int("rules", len(b.Rules)),
		zap.Int("zones", len(b.Zones)))
	return b, nil
}

// Import applies a bundle to a tenant. The tenant's rules are replaced in one
// transaction, zones are matched by name and created when missing, and rate rows are
// upserted, so importing the same bundle twice leaves the same settings. Invalid
// entries are skipped and reported; the rest is still applied.
func (s *Service) Import(ctx context.Context, tenantID int64, b *Bundle) (*Result, error) {
	if b.Version != BundleVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, b.Version)
	}
	if b.PricingMode != "" {
		if _, err := calculator.ParsePricingMode(string(b.PricingMode)); err != nil {
			return nil, err
		}
	}

	res := &Result{}
	skip := func(what string, err error) {
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", what, err))
	}

	// Zones are read before anything is written
	zones, err := s.db.ListZones(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to read zones: %w", err)
	}
	zoneIDs := make(map[string]int64, len(zones))
	for _, z := range zones {
		zoneIDs[z.Name] = z.ID
	}

	// Rules
	rules := make([]calculator.ConsolidationRule, 0, len(b.Rules))
	for _, r := range b.Rules {
		r.ID = 0
		if err := r.Validate(); err != nil {
			skip("rule "+r.Name, err)
			continue
		}
		rules = append(rules, r)
	}
	if err := s.db.ReplaceConsolidationRules(ctx, tenantID, rules); err != nil {
		return nil, fmt.Errorf("failed to replace rules: %w", err)
	}
	res.Rules = len(rules)

	// Zones and assignments
	for _, z := range b.Zones {
		id, ok := zoneIDs[z.Name]
		if ok {
			err = s.db.UpdateZone(ctx, tenantID, calculator.Zone{ID: id, Name: z.Name, DisplayOrder: z.DisplayOrder})
		} else {
			id, err = s.db.CreateZone(ctx, tenantID, z.Name, z.DisplayOrder)
		}
		if err != nil {
			skip("zone "+z.Name, err)
			continue
		}
		zoneIDs[z.Name] = id
		res.Zones++

		for _, p := range z.Prefectures {
			if err := s.db.AssignPrefectureToZone(ctx, tenantID, p, id); err != nil {
				skip("assignment "+p, err)
				continue
			}
			res.Assignments++
		}
	}

	// Rates
	for _, r := range b.FlatRates {
		carrier, err := validateRate(r.Carrier, r.Size, r.BasePrice, r.CoolSurcharge)
		if err != nil {
			skip("flat rate", err)
			continue
		}
		r.Carrier = carrier
		if err := s.db.UpsertFlatRate(ctx, tenantID, r); err != nil {
			skip("flat rate", err)
			continue
		}
		res.Rates++
	}
	for _, r := range b.ZoneRates {
		zoneID, ok := zoneIDs[r.Zone]
		if !ok {
			skip("zone rate", fmt.Errorf("zone %q: %w", r.Zone, database.ErrNotFound))
			continue
		}
		carrier, err := validateRate(r.Carrier, r.Size, r.BasePrice, r.CoolSurcharge)
		if err != nil {
			skip("zone rate", err)
			continue
		}
		row := calculator.ZoneRate{
			Carrier:       carrier,
			Size:          r.Size,
			ZoneID:        zoneID,
			BasePrice:     r.BasePrice,
			CoolSurcharge: r.CoolSurcharge,
		}
		if err := s.db.UpsertZoneRate(ctx, tenantID, row); err != nil {
			skip("zone rate", err)
			continue
		}
		res.Rates++
	}
	for _, r := range b.PrefectureRates {
		carrier, err := validateRate(r.Carrier, r.Size, r.BasePrice, r.CoolSurcharge)
		if err != nil {
			skip("prefecture rate", err)
			continue
		}
		r.Carrier = carrier
		if !calculator.IsPrefecture(r.Prefecture) {
			skip("prefecture rate", fmt.Errorf("%w: %q", calculator.ErrUnknownPrefecture, r.Prefecture))
			continue
		}
		if err := s.db.UpsertPrefectureRate(ctx, tenantID, r); err != nil {
			skip("prefecture rate", err)
			continue
		}
		res.Rates++
	}

	// Mode last, once its rates are in place
	if b.PricingMode != "" {
		if err := s.db.SetPricingMode(ctx, tenantID, b.PricingMode); err != nil {
			skip("pricing mode", err)
		}
	}

	res.Status = "success"
	if len(res.Errors) > 0 {
		res.Status = "partial"
	}

	s.logger.Info("settings imported",
		zap.Int64("tenant_id", tenantID),
		zap.String("status", res.Status),
		zap.Int("rules", res.Rules),
		zap.Int("zones", res.Zones),
		zap.Int("assignments", res.Assignments),
		zap.Int("rates", res.Rates),
		zap.Int("skipped", len(res.Errors)))
	return res, nil
}

// validateRate checks an imported rate row and returns its carrier in canonical form
func validateRate(carrier calculator.Carrier, size calculator.ShippingSize, basePrice, coolSurcharge int64) (calculator.Carrier, error) {
	c, err := calculator.ParseCarrier(string(carrier))
	if err != nil {
		return "", err
	}
	if !size.Valid() {
		return "", fmt.Errorf("%w: %d", calculator.ErrInvalidShippingSize, size)
	}
	if basePrice < 0 || coolSurcharge < 0 {
		return "", fmt.Errorf("%w: base %d, cool %d", ErrNegativePrice, basePrice, coolSurcharge)
	}
	return c, nil
}
