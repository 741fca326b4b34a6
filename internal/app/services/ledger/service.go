package ledger

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vibestream/fanventures/internal/app/domain/investment"
	"github.com/vibestream/fanventures/internal/app/domain/venture"
	"github.com/vibestream/fanventures/internal/app/faults"
	"github.com/vibestream/fanventures/internal/app/storage"
	"github.com/vibestream/fanventures/pkg/logger"
)

// Service records investment attempts and enforces per-investment
// invariants: bounds, remaining capacity and idempotent creation. It never
// dispatches payments itself; the coordinating caller does that after a
// successful create.
type Service struct {
	ventures    storage.VentureStore
	investments storage.InvestmentStore
	log         *logger.Logger
}

// New constructs an investment ledger service.
func New(ventures storage.VentureStore, investments storage.InvestmentStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("ledger")
	}
	return &Service{ventures: ventures, investments: investments, log: log}
}

// CreateInvestment validates and persists a pending investment. Calling it
// again with the same (supporter, venture, nonce) returns the original row.
func (s *Service) CreateInvestment(ctx context.Context, ventureID, supporterID string, amount decimal.Decimal, tierID, nonce string) (investment.Investment, error) {
	ventureID = strings.TrimSpace(ventureID)
	supporterID = strings.TrimSpace(supporterID)
	nonce = strings.TrimSpace(nonce)

	if supporterID == "" {
		return investment.Investment{}, faults.Validationf("supporter_id", "is required")
	}
	if nonce == "" {
		return investment.Investment{}, faults.Validationf("nonce", "is required")
	}
	if !amount.IsPositive() {
		return investment.Investment{}, faults.Validationf("amount", "must be positive")
	}

	// The idempotency lookup runs before the venture checks: a retry whose
	// first call already settled and filled or closed the venture must still
	// get its original row back, not a state rejection.
	key := investment.DeriveKey(supporterID, ventureID, nonce)
	if existing, err := s.investments.GetInvestmentByKey(ctx, key); err == nil {
		return existing, nil
	} else if !errors.Is(err, faults.ErrNotFound) {
		return investment.Investment{}, err
	}

	v, err := s.ventures.GetVenture(ctx, ventureID)
	if err != nil {
		return investment.Investment{}, err
	}
	if v.Status != venture.StatusOpen {
		return investment.Investment{}, faults.ErrVentureNotOpen
	}
	if amount.LessThan(v.MinInvestment) {
		return investment.Investment{}, faults.ErrAmountOutOfBounds
	}
	if !v.MaxInvestment.IsZero() && amount.GreaterThan(v.MaxInvestment) {
		return investment.Investment{}, faults.ErrAmountOutOfBounds
	}
	// Overshooting requests are rejected outright, never capped; a request
	// for exactly the remaining capacity is accepted.
	if amount.GreaterThan(v.Remaining()) {
		return investment.Investment{}, faults.ErrCapacityExceeded
	}

	if tierID == "" {
		if tier, ok := v.TierFor(amount); ok {
			tierID = tier.ID
		}
	}

	inv := investment.Investment{
		VentureID:      ventureID,
		SupporterID:    supporterID,
		Amount:         amount,
		TierID:         tierID,
		Status:         investment.StatusPending,
		IdempotencyKey: key,
	}
	created, err := s.investments.CreateInvestment(ctx, inv)
	if err != nil {
		// A unique-key violation means a concurrent call with the same nonce
		// won the race; return its row.
		if existing, lookupErr := s.investments.GetInvestmentByKey(ctx, key); lookupErr == nil {
			return existing, nil
		}
		return investment.Investment{}, err
	}
	s.log.WithField("investment_id", created.ID).
		WithField("venture_id", ventureID).
		WithField("supporter_id", supporterID).
		WithField("amount", amount.String()).
		Info("investment recorded")
	return created, nil
}

// Get retrieves a single investment.
func (s *Service) Get(ctx context.Context, id string) (investment.Investment, error) {
	return s.investments.GetInvestment(ctx, id)
}

// ListByVenture returns all investments against a venture, including
// cancelled ones retained for audit.
func (s *Service) ListByVenture(ctx context.Context, ventureID string) ([]investment.Investment, error) {
	return s.investments.ListInvestmentsByVenture(ctx, ventureID)
}

// Recompute returns the sum of active investment amounts for a venture. A
// reconciliation job compares it against the venture's current funding
// independently of the aggregator's bookkeeping.
func (s *Service) Recompute(ctx context.Context, ventureID string) (decimal.Decimal, error) {
	invs, err := s.investments.ListInvestmentsByVenture(ctx, ventureID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, inv := range invs {
		if inv.Status == investment.StatusActive {
			total = total.Add(inv.Amount)
		}
	}
	return total, nil
}

// Portfolio summarises a supporter's investments.
type Portfolio struct {
	SupporterID   string
	TotalInvested decimal.Decimal // active investments only
	ActiveCount   int
	PendingCount  int
	CancelledCnt  int
	Investments   []investment.Investment
}

// Portfolio aggregates a supporter's positions across all ventures.
func (s *Service) Portfolio(ctx context.Context, supporterID string) (Portfolio, error) {
	invs, err := s.investments.ListInvestmentsBySupporter(ctx, supporterID)
	if err != nil {
		return Portfolio{}, err
	}
	p := Portfolio{SupporterID: supporterID, TotalInvested: decimal.Zero, Investments: invs}
	for _, inv := range invs {
		switch inv.Status {
		case investment.StatusActive:
			p.ActiveCount++
			p.TotalInvested = p.TotalInvested.Add(inv.Amount)
		case investment.StatusPending:
			p.PendingCount++
		case investment.StatusCancelled:
			p.CancelledCnt++
		}
	}
	return p, nil
}
