package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vibestream/fanventures/internal/app/domain/investment"
	"github.com/vibestream/fanventures/internal/app/domain/venture"
	"github.com/vibestream/fanventures/internal/app/faults"
	"github.com/vibestream/fanventures/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local
// development.
type Store struct {
	mu               sync.RWMutex
	nextID           int64
	ventures         map[string]venture.Venture
	investments      map[string]investment.Investment
	investmentsByKey map[string]string
}

var _ storage.VentureStore = (*Store)(nil)
var _ storage.InvestmentStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:           1,
		ventures:         make(map[string]venture.Venture),
		investments:      make(map[string]investment.Investment),
		investmentsByKey: make(map[string]string),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// VentureStore implementation ------------------------------------------------

func (s *Store) CreateVenture(_ context.Context, v venture.Venture) (venture.Venture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.ID == "" {
		v.ID = s.nextIDLocked()
	} else if _, exists := s.ventures[v.ID]; exists {
		return venture.Venture{}, fmt.Errorf("venture %s already exists", v.ID)
	}

	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now
	if v.CurrentFunding.IsZero() {
		v.CurrentFunding = decimal.Zero
	}
	for i := range v.Tiers {
		if v.Tiers[i].ID == "" {
			v.Tiers[i].ID = s.nextIDLocked()
		}
		v.Tiers[i].VentureID = v.ID
		v.Tiers[i].CreatedAt = now
	}
	v.Tiers = cloneTiers(v.Tiers)

	s.ventures[v.ID] = v
	return cloneVenture(v), nil
}

func (s *Store) UpdateVenture(_ context.Context, v venture.Venture) (venture.Venture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.ventures[v.ID]
	if !ok {
		return venture.Venture{}, fmt.Errorf("venture %s: %w", v.ID, faults.ErrNotFound)
	}

	v.CreatedAt = original.CreatedAt
	v.UpdatedAt = time.Now().UTC()
	// Funding bookkeeping is owned by ApplyFunding and SetVentureHalted.
	v.CurrentFunding = original.CurrentFunding
	v.FundingVersion = original.FundingVersion
	v.Halted = original.Halted
	for i := range v.Tiers {
		if v.Tiers[i].ID == "" {
			v.Tiers[i].ID = s.nextIDLocked()
		}
		v.Tiers[i].VentureID = v.ID
	}
	v.Tiers = cloneTiers(v.Tiers)

	s.ventures[v.ID] = v
	return cloneVenture(v), nil
}

func (s *Store) GetVenture(_ context.Context, id string) (venture.Venture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.ventures[id]
	if !ok {
		return venture.Venture{}, fmt.Errorf("venture %s: %w", id, faults.ErrNotFound)
	}
	return cloneVenture(v), nil
}

func (s *Store) ListVentures(_ context.Context, ownerID string) ([]venture.Venture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []venture.Venture
	for _, v := range s.ventures {
		if ownerID == "" || v.OwnerID == ownerID {
			result = append(result, cloneVenture(v))
		}
	}
	sortVentures(result)
	return result, nil
}

func (s *Store) ListVenturesByStatus(_ context.Context, status venture.Status) ([]venture.Venture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []venture.Venture
	for _, v := range s.ventures {
		if v.Status == status {
			result = append(result, cloneVenture(v))
		}
	}
	sortVentures(result)
	return result, nil
}

func (s *Store) UpdateVentureStatus(_ context.Context, id string, status venture.Status) (venture.Venture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.ventures[id]
	if !ok {
		return venture.Venture{}, fmt.Errorf("venture %s: %w", id, faults.ErrNotFound)
	}
	v.Status = status
	v.UpdatedAt = time.Now().UTC()
	s.ventures[id] = v
	return cloneVenture(v), nil
}

func (s *Store) SetVentureHalted(_ context.Context, id string, halted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.ventures[id]
	if !ok {
		return fmt.Errorf("venture %s: %w", id, faults.ErrNotFound)
	}
	v.Halted = halted
	v.UpdatedAt = time.Now().UTC()
	s.ventures[id] = v
	return nil
}

func (s *Store) ApplyFunding(_ context.Context, id string, delta decimal.Decimal, expectVersion int64, newStatus venture.Status) (venture.Venture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.ventures[id]
	if !ok {
		return venture.Venture{}, fmt.Errorf("venture %s: %w", id, faults.ErrNotFound)
	}
	if v.FundingVersion != expectVersion {
		return venture.Venture{}, faults.ErrVersionConflict
	}

	v.CurrentFunding = v.CurrentFunding.Add(delta)
	v.FundingVersion++
	if newStatus != "" {
		v.Status = newStatus
	}
	v.UpdatedAt = time.Now().UTC()
	s.ventures[id] = v
	return cloneVenture(v), nil
}

// InvestmentStore implementation ----------------------------------------------

func (s *Store) CreateInvestment(_ context.Context, inv investment.Investment) (investment.Investment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inv.ID == "" {
		inv.ID = s.nextIDLocked()
	} else if _, exists := s.investments[inv.ID]; exists {
		return investment.Investment{}, fmt.Errorf("investment %s already exists", inv.ID)
	}
	if inv.IdempotencyKey != "" {
		if existing, exists := s.investmentsByKey[inv.IdempotencyKey]; exists {
			return investment.Investment{}, fmt.Errorf("idempotency key already used by investment %s", existing)
		}
	}

	now := time.Now().UTC()
	inv.CreatedAt = now
	inv.UpdatedAt = now

	s.investments[inv.ID] = inv
	if inv.IdempotencyKey != "" {
		s.investmentsByKey[inv.IdempotencyKey] = inv.ID
	}
	return inv, nil
}

func (s *Store) UpdateInvestment(_ context.Context, inv investment.Investment) (investment.Investment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.investments[inv.ID]
	if !ok {
		return investment.Investment{}, fmt.Errorf("investment %s: %w", inv.ID, faults.ErrNotFound)
	}

	inv.CreatedAt = original.CreatedAt
	inv.IdempotencyKey = original.IdempotencyKey
	inv.UpdatedAt = time.Now().UTC()

	s.investments[inv.ID] = inv
	return inv, nil
}

func (s *Store) GetInvestment(_ context.Context, id string) (investment.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.investments[id]
	if !ok {
		return investment.Investment{}, fmt.Errorf("investment %s: %w", id, faults.ErrNotFound)
	}
	return inv, nil
}

func (s *Store) GetInvestmentByKey(_ context.Context, key string) (investment.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.investmentsByKey[key]
	if !ok {
		return investment.Investment{}, fmt.Errorf("idempotency key: %w", faults.ErrNotFound)
	}
	return s.investments[id], nil
}

func (s *Store) ListInvestmentsByVenture(_ context.Context, ventureID string) ([]investment.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []investment.Investment
	for _, inv := range s.investments {
		if inv.VentureID == ventureID {
			result = append(result, inv)
		}
	}
	sortInvestments(result)
	return result, nil
}

func (s *Store) ListInvestmentsBySupporter(_ context.Context, supporterID string) ([]investment.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []investment.Investment
	for _, inv := range s.investments {
		if inv.SupporterID == supporterID {
			result = append(result, inv)
		}
	}
	sortInvestments(result)
	return result, nil
}

func (s *Store) ListPendingOlderThan(_ context.Context, cutoff time.Time) ([]investment.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []investment.Investment
	for _, inv := range s.investments {
		if inv.Status == investment.StatusPending && inv.CreatedAt.Before(cutoff) {
			result = append(result, inv)
		}
	}
	sortInvestments(result)
	return result, nil
}

// helpers ---------------------------------------------------------------------

func cloneVenture(v venture.Venture) venture.Venture {
	v.Tiers = cloneTiers(v.Tiers)
	if v.ExpiresAt != nil {
		exp := *v.ExpiresAt
		v.ExpiresAt = &exp
	}
	return v
}

func cloneTiers(tiers []venture.Tier) []venture.Tier {
	if tiers == nil {
		return nil
	}
	out := make([]venture.Tier, len(tiers))
	copy(out, tiers)
	for i := range out {
		if out[i].Benefits != nil {
			benefits := make([]venture.Benefit, len(out[i].Benefits))
			copy(benefits, out[i].Benefits)
			out[i].Benefits = benefits
		}
	}
	return out
}

func sortVentures(vs []venture.Venture) {
	sort.Slice(vs, func(i, j int) bool {
		if vs[i].CreatedAt.Equal(vs[j].CreatedAt) {
			return vs[i].ID < vs[j].ID
		}
		return vs[i].CreatedAt.Before(vs[j].CreatedAt)
	})
}

func sortInvestments(is []investment.Investment) {
	sort.Slice(is, func(i, j int) bool {
		if is[i].CreatedAt.Equal(is[j].CreatedAt) {
			return is[i].ID < is[j].ID
		}
		return is[i].CreatedAt.Before(is[j].CreatedAt)
	})
}
