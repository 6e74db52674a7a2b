// Package quote runs shipping calculations for a tenant: it loads the tenant's rules and
// rate table, calls the calculator, and records the outcome.
package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/julienbonastre/produce-shipping/internal/calculator"
	"github.com/julienbonastre/produce-shipping/internal/database"
	"github.com/julienbonastre/produce-shipping/internal/logging"
	"github.com/julienbonastre/produce-shipping/internal/metrics"
)

// Store is the slice of the database the service reads and writes
type Store interface {
	ListConsolidationRules(ctx context.Context, tenantID int64) ([]calculator.ConsolidationRule, error)
	GetActivePricingMode(ctx context.Context, tenantID int64) (calculator.PricingMode, error)
	LoadRateTable(ctx context.Context, tenantID int64, mode calculator.PricingMode) (calculator.RateTable, error)
	ResolveCartLines(ctx context.Context, tenantID int64, items []database.ItemSelection) ([]calculator.CartLine, error)
	RecordQuote(ctx context.Context, q *database.QuoteRecord) error
}

// Error codes for calculator business errors
const (
	CodeEmptyCart      = "EMPTY_CART"
	CodeNoMatchingRate = "NO_MATCHING_RATE"
	CodeUnassignedZone = "UNASSIGNED_ZONE"
	CodeInvalidRule    = "INVALID_RULE"
)

// ErrorCode returns the API code of a calculator business error, or "" for anything else
func ErrorCode(err error) string {
	var (
		empty    *calculator.EmptyCartError
		noRate   *calculator.NoMatchingRateError
		zoneless *calculator.UnassignedZoneError
		badRule  *calculator.InvalidRuleConfigurationError
	)
	switch {
	case errors.As(err, &empty):
		return CodeEmptyCart
	case errors.As(err, &noRate):
		return CodeNoMatchingRate
	case errors.As(err, &zoneless):
		return CodeUnassignedZone
	case errors.As(err, &badRule):
		return CodeInvalidRule
	}
	return ""
}

// Request describes one shipment. Lines and Items are combined; Items are resolved to
// sizes through the tenant's products.
type Request struct {
	Lines        []calculator.CartLine
	Items        []database.ItemSelection
	Carrier      calculator.Carrier
	Prefecture   string
	CoolDelivery bool
}

// Quote is a calculated breakdown with the id it was recorded under
type Quote struct {
	ID string `json:"quoteId"`
	*calculator.CostBreakdown
}

// Service calculates quotes against a Store
type Service struct {
	store   Store
	logger  *zap.Logger
	metrics *metrics.Metrics
	newID   func() string
}

// NewService creates a quote service
func NewService(store Store, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   store,
		logger:  logger,
		metrics: m,
		newID:   uuid.NewString,
	}
}

// snapshot is everything a calculation reads, fetched once up front
type snapshot struct {
	mode  calculator.PricingMode
	rules []calculator.ConsolidationRule
	table calculator.RateTable
	lines []calculator.CartLine
}

func (s *Service) load(ctx context.Context, tenantID int64, req Request) (*snapshot, error) {
	mode, err := s.store.GetActivePricingMode(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pricing mode: %w", err)
	}

	rules, err := s.store.ListConsolidationRules(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load consolidation rules: %w", err)
	}

	table, err := s.store.LoadRateTable(ctx, tenantID, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to load rate table: %w", err)
	}

	lines := append([]calculator.CartLine(nil), req.Lines...)
	if len(req.Items) > 0 {
		resolved, err := s.store.ResolveCartLines(ctx, tenantID, req.Items)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve products: %w", err)
		}
		lines = append(lines, resolved...)
	}

	return &snapshot{mode: mode, rules: rules, table: table, lines: lines}, nil
}

func (snap *snapshot) params(req Request) calculator.CalculateParams {
	return calculator.CalculateParams{
		Lines:        snap.lines,
		Carrier:      req.Carrier,
		Prefecture:   req.Prefecture,
		RateTable:    snap.table,
		Rules:        snap.rules,
		CoolDelivery: req.CoolDelivery,
	}
}

// Quote calculates the shipping cost for one carrier and records it in the tenant's
// history. Calculator errors are returned unwrapped.
func (s *Service) Quote(ctx context.Context, tenantID int64, req Request) (*Quote, error) {
	start := time.Now()
	log := logging.FromContext(ctx, s.logger).With(zap.Int64("tenant_id", tenantID))

	snap, err := s.load(ctx, tenantID, req)
	if err != nil {
		log.Error("failed to load quote inputs", zap.Error(err))
		return nil, err
	}

	breakdown, calcErr := calculator.Calculate(snap.params(req))
	if s.metrics != nil {
		s.metrics.RecordQuote(string(snap.mode), calcErr == nil, time.Since(start))
	}

	record := &database.QuoteRecord{
		ID:           s.newID(),
		TenantID:     tenantID,
		Mode:         snap.mode,
		Carrier:      req.Carrier,
		Prefecture:   req.Prefecture,
		CoolDelivery: req.CoolDelivery,
	}

	if calcErr != nil {
		record.ErrorCode = ErrorCode(calcErr)
		record.ErrorMessage = calcErr.Error()
		s.record(ctx, log, record)
		log.Info("quote rejected",
			zap.String("quote_id", record.ID),
			zap.String("mode", string(snap.mode)),
			zap.String("code", record.ErrorCode),
			zap.Error(calcErr))
		return nil, calcErr
	}

	record.FinalSize = breakdown.FinalSize
	record.Total = breakdown.Total
	s.record(ctx, log, record)

	if s.metrics != nil {
		for _, m := range breakdown.Merges {
			s.metrics.RecordMerge(int(m.FromSize), int(m.ToSize), m.Sets)
		}
	}

	log.Info("quote calculated",
		zap.String("quote_id", record.ID),
		zap.String("mode", string(snap.mode)),
		zap.String("carrier", string(req.Carrier)),
		zap.Int("final_size", int(breakdown.FinalSize)),
		zap.Int64("total", breakdown.Total),
		zap.Int("merges", len(breakdown.Merges)))

	return &Quote{ID: record.ID, CostBreakdown: breakdown}, nil
}

// record stores history; a failed write is logged and does not fail the quote
func (s *Service) record(ctx context.Context, log *zap.Logger, q *database.QuoteRecord) {
	if err := s.store.RecordQuote(ctx, q); err != nil {
		log.Warn("failed to record quote history", zap.String("quote_id", q.ID), zap.Error(err))
	}
}

// Compare calculates the shipping cost for every carrier in carriers (all carriers when
// empty) from the same snapshot. Comparisons are not written to history.
func (s *Service) Compare(ctx context.Context, tenantID int64, req Request, carriers []calculator.Carrier) (*calculator.MultiCarrierResult, error) {
	log := logging.FromContext(ctx, s.logger).With(zap.Int64("tenant_id", tenantID))

	snap, err := s.load(ctx, tenantID, req)
	if err != nil {
		log.Error("failed to load comparison inputs", zap.Error(err))
		return nil, err
	}

	result, err := calculator.CompareCarriers(snap.params(req), carriers)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordComparison()
	}

	priced := 0
	for _, r := range result.Carriers {
		if r.Err == nil {
			priced++
		}
	}
	log.Debug("carriers compared",
		zap.String("mode", string(snap.mode)),
		zap.Int("carriers", len(result.Carriers)),
		zap.Int("priced", priced))

	return result, nil
}
