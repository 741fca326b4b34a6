package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vibestream/fanventures/internal/app/domain/venture"
	"github.com/vibestream/fanventures/internal/app/faults"
	"github.com/vibestream/fanventures/internal/app/storage"
	"github.com/vibestream/fanventures/pkg/logger"
)

// Service owns venture, tier and benefit definitions and the venture
// lifecycle transition rules.
type Service struct {
	store storage.VentureStore
	log   *logger.Logger
}

// New constructs a venture catalog service.
func New(store storage.VentureStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("catalog")
	}
	return &Service{store: store, log: log}
}

// TierInput describes a tier in a venture spec.
type TierInput struct {
	Name        string
	MinAmount   decimal.Decimal
	MaxAmount   decimal.Decimal
	Description string
	Benefits    []venture.Benefit
}

// CreateVentureInput is the spec a creator submits.
type CreateVentureInput struct {
	OwnerID       string
	Title         string
	Description   string
	Category      venture.Category
	FundingGoal   decimal.Decimal
	MinInvestment decimal.Decimal
	MaxInvestment decimal.Decimal // zero means no cap
	ExpiresAt     *time.Time
	Tiers         []TierInput
}

// Create validates a venture spec and persists it in draft.
func (s *Service) Create(ctx context.Context, in CreateVentureInput) (venture.Venture, error) {
	in.OwnerID = strings.TrimSpace(in.OwnerID)
	in.Title = strings.TrimSpace(in.Title)

	if in.OwnerID == "" {
		return venture.Venture{}, faults.Validationf("owner_id", "is required")
	}
	if in.Title == "" {
		return venture.Venture{}, faults.Validationf("title", "is required")
	}
	if !in.FundingGoal.IsPositive() {
		return venture.Venture{}, faults.Validationf("funding_goal", "must be positive")
	}
	if !in.MinInvestment.IsPositive() {
		return venture.Venture{}, faults.Validationf("min_investment", "must be positive")
	}
	if !in.MaxInvestment.IsZero() && in.MaxInvestment.LessThan(in.MinInvestment) {
		return venture.Venture{}, faults.Validationf("max_investment", "must not be below min_investment")
	}
	if len(in.Tiers) == 0 {
		return venture.Venture{}, faults.Validationf("tiers", "at least one tier is required")
	}
	tiers := make([]venture.Tier, 0, len(in.Tiers))
	for i, t := range in.Tiers {
		t.Name = strings.TrimSpace(t.Name)
		if t.Name == "" {
			return venture.Venture{}, faults.Validationf("tiers", "tier %d: name is required", i+1)
		}
		if !t.MinAmount.IsPositive() {
			return venture.Venture{}, faults.Validationf("tiers", "tier %q: min_amount must be positive", t.Name)
		}
		if !t.MaxAmount.IsZero() && t.MaxAmount.LessThan(t.MinAmount) {
			return venture.Venture{}, faults.Validationf("tiers", "tier %q: max_amount must not be below min_amount", t.Name)
		}
		tiers = append(tiers, venture.Tier{
			Name:        t.Name,
			MinAmount:   t.MinAmount,
			MaxAmount:   t.MaxAmount,
			Description: t.Description,
			Benefits:    t.Benefits,
		})
	}

	category := in.Category
	if category == "" {
		category = venture.CategoryOther
	}

	v := venture.Venture{
		OwnerID:        in.OwnerID,
		Title:          in.Title,
		Description:    in.Description,
		Category:       category,
		FundingGoal:    in.FundingGoal,
		CurrentFunding: decimal.Zero,
		MinInvestment:  in.MinInvestment,
		MaxInvestment:  in.MaxInvestment,
		Status:         venture.StatusDraft,
		ExpiresAt:      in.ExpiresAt,
		Tiers:          tiers,
	}
	created, err := s.store.CreateVenture(ctx, v)
	if err != nil {
		return venture.Venture{}, err
	}
	s.log.WithField("venture_id", created.ID).
		WithField("owner_id", created.OwnerID).
		WithField("funding_goal", created.FundingGoal.String()).
		Info("venture created")
	return created, nil
}

// Transition moves a venture along an allowed lifecycle edge.
func (s *Service) Transition(ctx context.Context, ventureID string, target venture.Status) (venture.Venture, error) {
	v, err := s.store.GetVenture(ctx, ventureID)
	if err != nil {
		return venture.Venture{}, err
	}
	if !venture.CanTransition(v.Status, target) {
		return venture.Venture{}, fmt.Errorf("%s -> %s: %w", v.Status, target, faults.ErrInvalidTransition)
	}

	updated, err := s.store.UpdateVentureStatus(ctx, ventureID, target)
	if err != nil {
		return venture.Venture{}, err
	}
	s.log.WithField("venture_id", ventureID).
		WithField("from", string(v.Status)).
		WithField("to", string(target)).
		Info("venture status changed")
	return updated, nil
}

// Get retrieves a single venture.
func (s *Service) Get(ctx context.Context, ventureID string) (venture.Venture, error) {
	return s.store.GetVenture(ctx, ventureID)
}

// ListByOwner returns a creator's ventures.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]venture.Venture, error) {
	return s.store.ListVentures(ctx, ownerID)
}

// ListOpen returns ventures currently accepting investments.
func (s *Service) ListOpen(ctx context.Context) ([]venture.Venture, error) {
	return s.store.ListVenturesByStatus(ctx, venture.StatusOpen)
}

// AddTier appends a tier to a draft venture. Tiers are frozen once the
// venture leaves draft; this is the administrative correction path.
func (s *Service) AddTier(ctx context.Context, ventureID string, in TierInput) (venture.Venture, error) {
	v, err := s.store.GetVenture(ctx, ventureID)
	if err != nil {
		return venture.Venture{}, err
	}
	if v.Status != venture.StatusDraft {
		return venture.Venture{}, faults.Validationf("status", "tiers can only be added while the venture is in draft")
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return venture.Venture{}, faults.Validationf("name", "is required")
	}
	if !in.MinAmount.IsPositive() {
		return venture.Venture{}, faults.Validationf("min_amount", "must be positive")
	}
	if !in.MaxAmount.IsZero() && in.MaxAmount.LessThan(in.MinAmount) {
		return venture.Venture{}, faults.Validationf("max_amount", "must not be below min_amount")
	}

	v.Tiers = append(v.Tiers, venture.Tier{
		VentureID:   v.ID,
		Name:        in.Name,
		MinAmount:   in.MinAmount,
		MaxAmount:   in.MaxAmount,
		Description: in.Description,
		Benefits:    in.Benefits,
	})
	updated, err := s.store.UpdateVenture(ctx, v)
	if err != nil {
		return venture.Venture{}, err
	}
	s.log.WithField("venture_id", v.ID).
		WithField("tier", in.Name).
		Info("tier added")
	return updated, nil
}
