package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vibestream/fanventures/internal/app/domain/investment"
	"github.com/vibestream/fanventures/internal/app/domain/venture"
)

// VentureStore persists ventures and their tiers.
type VentureStore interface {
	CreateVenture(ctx context.Context, v venture.Venture) (venture.Venture, error)
	UpdateVenture(ctx context.Context, v venture.Venture) (venture.Venture, error)
	GetVenture(ctx context.Context, id string) (venture.Venture, error)
	ListVentures(ctx context.Context, ownerID string) ([]venture.Venture, error)
	ListVenturesByStatus(ctx context.Context, status venture.Status) ([]venture.Venture, error)

	// UpdateVentureStatus overwrites the status only. Transition legality is
	// the catalog's concern; the store is dumb.
	UpdateVentureStatus(ctx context.Context, id string, status venture.Status) (venture.Venture, error)

	// SetVentureHalted freezes or unfreezes automatic funding updates.
	SetVentureHalted(ctx context.Context, id string, halted bool) error

	// ApplyFunding adds delta to the venture's current funding and bumps the
	// funding version, conditional on the version still matching
	// expectVersion. A non-empty newStatus is written in the same update.
	// Returns faults.ErrVersionConflict when the condition fails.
	ApplyFunding(ctx context.Context, id string, delta decimal.Decimal, expectVersion int64, newStatus venture.Status) (venture.Venture, error)
}

// InvestmentStore persists investment records.
type InvestmentStore interface {
	CreateInvestment(ctx context.Context, inv investment.Investment) (investment.Investment, error)
	UpdateInvestment(ctx context.Context, inv investment.Investment) (investment.Investment, error)
	GetInvestment(ctx context.Context, id string) (investment.Investment, error)
	GetInvestmentByKey(ctx context.Context, idempotencyKey string) (investment.Investment, error)
	ListInvestmentsByVenture(ctx context.Context, ventureID string) ([]investment.Investment, error)
	ListInvestmentsBySupporter(ctx context.Context, supporterID string) ([]investment.Investment, error)
	ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]investment.Investment, error)
}
