package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vibestream/fanventures/internal/app/domain/investment"
	"github.com/vibestream/fanventures/internal/app/domain/venture"
	"github.com/vibestream/fanventures/internal/app/faults"
	"github.com/vibestream/fanventures/internal/app/storage/memory"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func openVenture(t *testing.T, store *memory.Store, goal, current, min, max string) venture.Venture {
	t.Helper()
	v, err := store.CreateVenture(context.Background(), venture.Venture{
		OwnerID:        "artist-1",
		Title:          "Studio Album",
		FundingGoal:    dec(goal),
		CurrentFunding: dec(current),
		MinInvestment:  dec(min),
		MaxInvestment:  dec(max),
		Status:         venture.StatusOpen,
		Tiers: []venture.Tier{
			{ID: "tier-bronze", Name: "Bronze", MinAmount: dec("10")},
			{ID: "tier-gold", Name: "Gold", MinAmount: dec("100")},
		},
	})
	if err != nil {
		t.Fatalf("create venture: %v", err)
	}
	return v
}

func TestCreateInvestment_Idempotent(t *testing.T) {
	store := memory.New()
	v := openVenture(t, store, "1000", "0", "10", "0")
	svc := New(store, store, nil)

	first, err := svc.CreateInvestment(context.Background(), v.ID, "fan-1", dec("50"), "", "nonce-1")
	if err != nil {
		t.Fatalf("create investment: %v", err)
	}
	if first.Status != investment.StatusPending {
		t.Fatalf("unexpected status: %s", first.Status)
	}
	if first.TierID != "tier-bronze" {
		t.Fatalf("tier not auto-assigned: %q", first.TierID)
	}

	second, err := svc.CreateInvestment(context.Background(), v.ID, "fan-1", dec("50"), "", "nonce-1")
	if err != nil {
		t.Fatalf("replayed create: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("replay created a new row: %s vs %s", second.ID, first.ID)
	}

	invs, err := svc.ListByVenture(context.Background(), v.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(invs) != 1 {
		t.Fatalf("expected one investment, got %d", len(invs))
	}

	// A different nonce is a new investment.
	third, err := svc.CreateInvestment(context.Background(), v.ID, "fan-1", dec("50"), "", "nonce-2")
	if err != nil {
		t.Fatalf("create with new nonce: %v", err)
	}
	if third.ID == first.ID {
		t.Fatalf("new nonce reused the old row")
	}
}

func TestCreateInvestment_ReplayAfterSettlement(t *testing.T) {
	store := memory.New()
	v := openVenture(t, store, "100", "0", "10", "0")
	svc := New(store, store, nil)
	ctx := context.Background()

	first, err := svc.CreateInvestment(ctx, v.ID, "fan-1", dec("100"), "", "n1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	first.Status = investment.StatusActive
	if _, err := store.UpdateInvestment(ctx, first); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := store.ApplyFunding(ctx, v.ID, dec("100"), v.FundingVersion, venture.StatusFunded); err != nil {
		t.Fatalf("apply funding: %v", err)
	}

	// The venture is now funded and full; a client retry with the original
	// nonce must still get the existing row, not a state rejection.
	replay, err := svc.CreateInvestment(ctx, v.ID, "fan-1", dec("100"), "", "n1")
	if err != nil {
		t.Fatalf("replay after settlement: %v", err)
	}
	if replay.ID != first.ID {
		t.Fatalf("replay created a new row: %s vs %s", replay.ID, first.ID)
	}
}

func TestCreateInvestment_Rejections(t *testing.T) {
	store := memory.New()
	v := openVenture(t, store, "1000", "980", "10", "500")
	svc := New(store, store, nil)
	ctx := context.Background()

	if _, err := svc.CreateInvestment(ctx, v.ID, "", dec("50"), "", "n"); !faults.IsValidation(err) {
		t.Fatalf("expected validation error for missing supporter, got %v", err)
	}
	if _, err := svc.CreateInvestment(ctx, v.ID, "fan-1", dec("-5"), "", "n"); !faults.IsValidation(err) {
		t.Fatalf("expected validation error for negative amount, got %v", err)
	}
	if _, err := svc.CreateInvestment(ctx, v.ID, "fan-1", dec("5"), "", "n"); !errors.Is(err, faults.ErrAmountOutOfBounds) {
		t.Fatalf("expected out of bounds below minimum, got %v", err)
	}

	// Remaining capacity is 20: 50 overshoots and is rejected outright.
	if _, err := svc.CreateInvestment(ctx, v.ID, "fan-1", dec("50"), "", "n"); !errors.Is(err, faults.ErrCapacityExceeded) {
		t.Fatalf("expected capacity rejection, got %v", err)
	}
	// Exactly the remaining capacity is accepted.
	if _, err := svc.CreateInvestment(ctx, v.ID, "fan-1", dec("20.00"), "", "n"); err != nil {
		t.Fatalf("exact remaining capacity rejected: %v", err)
	}
}

func TestCreateInvestment_VentureNotOpen(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)
	ctx := context.Background()

	for _, status := range []venture.Status{venture.StatusDraft, venture.StatusFunded, venture.StatusClosed, venture.StatusCancelled} {
		v, err := store.CreateVenture(ctx, venture.Venture{
			OwnerID:     "artist-1",
			Title:       "Tour",
			FundingGoal: dec("100"),
			Status:      status,
		})
		if err != nil {
			t.Fatalf("create venture: %v", err)
		}
		if _, err := svc.CreateInvestment(ctx, v.ID, "fan-1", dec("10"), "", "n"); !errors.Is(err, faults.ErrVentureNotOpen) {
			t.Fatalf("status %s: expected not-open rejection, got %v", status, err)
		}
	}
}

func TestCreateInvestment_MaxInvestmentCap(t *testing.T) {
	store := memory.New()
	v := openVenture(t, store, "10000", "0", "10", "500")
	svc := New(store, store, nil)

	if _, err := svc.CreateInvestment(context.Background(), v.ID, "fan-1", dec("501"), "", "n"); !errors.Is(err, faults.ErrAmountOutOfBounds) {
		t.Fatalf("expected out of bounds above maximum, got %v", err)
	}
	if _, err := svc.CreateInvestment(context.Background(), v.ID, "fan-1", dec("500"), "", "n"); err != nil {
		t.Fatalf("amount at maximum rejected: %v", err)
	}
}

func TestRecomputeCountsActiveOnly(t *testing.T) {
	store := memory.New()
	v := openVenture(t, store, "1000", "0", "10", "0")
	svc := New(store, store, nil)
	ctx := context.Background()

	amounts := map[string]investment.Status{
		"100": investment.StatusActive,
		"200": investment.StatusActive,
		"300": investment.StatusPending,
		"400": investment.StatusCancelled,
	}
	for amount, status := range amounts {
		inv, err := svc.CreateInvestment(ctx, v.ID, "fan-"+amount, dec(amount), "", "n")
		if err != nil {
			t.Fatalf("create %s: %v", amount, err)
		}
		inv.Status = status
		if _, err := store.UpdateInvestment(ctx, inv); err != nil {
			t.Fatalf("update %s: %v", amount, err)
		}
	}

	total, err := svc.Recompute(ctx, v.ID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if !total.Equal(dec("300")) {
		t.Fatalf("expected 300 from active rows, got %s", total)
	}
}

func TestPortfolio(t *testing.T) {
	store := memory.New()
	v1 := openVenture(t, store, "1000", "0", "10", "0")
	v2 := openVenture(t, store, "2000", "0", "10", "0")
	svc := New(store, store, nil)
	ctx := context.Background()

	active, err := svc.CreateInvestment(ctx, v1.ID, "fan-1", dec("100"), "", "n1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	active.Status = investment.StatusActive
	if _, err := store.UpdateInvestment(ctx, active); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := svc.CreateInvestment(ctx, v2.ID, "fan-1", dec("40"), "", "n2"); err != nil {
		t.Fatalf("create pending: %v", err)
	}
	if _, err := svc.CreateInvestment(ctx, v2.ID, "fan-2", dec("60"), "", "n3"); err != nil {
		t.Fatalf("create other supporter: %v", err)
	}

	p, err := svc.Portfolio(ctx, "fan-1")
	if err != nil {
		t.Fatalf("portfolio: %v", err)
	}
	if p.ActiveCount != 1 || p.PendingCount != 1 || p.CancelledCnt != 0 {
		t.Fatalf("unexpected counts: %+v", p)
	}
	if !p.TotalInvested.Equal(dec("100")) {
		t.Fatalf("total should count active only, got %s", p.TotalInvested)
	}
	if len(p.Investments) != 2 {
		t.Fatalf("expected two rows, got %d", len(p.Investments))
	}
}
