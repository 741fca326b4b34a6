package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vibestream/fanventures/internal/app/domain/investment"
	"github.com/vibestream/fanventures/internal/app/domain/payment"
	"github.com/vibestream/fanventures/internal/app/domain/venture"
	"github.com/vibestream/fanventures/internal/app/faults"
	"github.com/vibestream/fanventures/internal/app/services/funding"
	"github.com/vibestream/fanventures/internal/app/storage"
	"github.com/vibestream/fanventures/internal/app/storage/memory"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type captureSink struct {
	mu     sync.Mutex
	raised []faults.InconsistencyError
}

func (c *captureSink) Raise(_ context.Context, inc faults.InconsistencyError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raised = append(c.raised, inc)
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.raised)
}

type fixture struct {
	store    *memory.Store
	sink     *captureSink
	listener *Listener
	venture  venture.Venture
}

func newFixture(t *testing.T, goal, current string) *fixture {
	t.Helper()
	store := memory.New()
	v, err := store.CreateVenture(context.Background(), venture.Venture{
		OwnerID:        "artist-1",
		Title:          "Live Session",
		FundingGoal:    dec(goal),
		CurrentFunding: dec(current),
		MinInvestment:  dec("1"),
		Status:         venture.StatusOpen,
	})
	if err != nil {
		t.Fatalf("create venture: %v", err)
	}
	sink := &captureSink{}
	agg := funding.New(store, sink, nil)
	listener := NewListener(store, agg, NewChanSource(4), sink, nil)
	return &fixture{store: store, sink: sink, listener: listener, venture: v}
}

func (f *fixture) pending(t *testing.T, id, amount string) investment.Investment {
	t.Helper()
	inv, err := f.store.CreateInvestment(context.Background(), investment.Investment{
		VentureID:      f.venture.ID,
		SupporterID:    "fan-1",
		Amount:         dec(amount),
		Status:         investment.StatusPending,
		IdempotencyKey: "key-" + id,
	})
	if err != nil {
		t.Fatalf("create investment: %v", err)
	}
	return inv
}

func completed(inv investment.Investment) payment.Completed {
	return payment.Completed{
		Ref:     payment.Reference("pay-" + inv.ID),
		Purpose: payment.InvestmentPurpose{InvestmentID: inv.ID, VentureID: inv.VentureID},
		Amount:  inv.Amount,
	}
}

func failed(inv investment.Investment, reason string) payment.Failed {
	return payment.Failed{
		Ref:     payment.Reference("pay-" + inv.ID),
		Purpose: payment.InvestmentPurpose{InvestmentID: inv.ID, VentureID: inv.VentureID},
		Reason:  reason,
	}
}

func TestHandleCompletedSettlesInvestment(t *testing.T) {
	f := newFixture(t, "1000", "0")
	inv := f.pending(t, "1", "150")
	ctx := context.Background()

	if err := f.listener.Handle(ctx, completed(inv)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	after, err := f.store.GetInvestment(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get investment: %v", err)
	}
	if after.Status != investment.StatusActive {
		t.Fatalf("investment should be active, got %s", after.Status)
	}
	if after.PaymentRef != "pay-"+inv.ID {
		t.Fatalf("payment ref not recorded: %q", after.PaymentRef)
	}

	v, err := f.store.GetVenture(ctx, f.venture.ID)
	if err != nil {
		t.Fatalf("get venture: %v", err)
	}
	if !v.CurrentFunding.Equal(dec("150")) {
		t.Fatalf("funding not applied: %s", v.CurrentFunding)
	}
}

func TestHandleCompletedDuplicateIsNoop(t *testing.T) {
	f := newFixture(t, "1000", "0")
	inv := f.pending(t, "1", "150")
	ctx := context.Background()

	if err := f.listener.Handle(ctx, completed(inv)); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	// Redelivery of the same notification must not double-count.
	if err := f.listener.Handle(ctx, completed(inv)); err != nil {
		t.Fatalf("second delivery: %v", err)
	}

	v, err := f.store.GetVenture(ctx, f.venture.ID)
	if err != nil {
		t.Fatalf("get venture: %v", err)
	}
	if !v.CurrentFunding.Equal(dec("150")) {
		t.Fatalf("redelivery double-counted: %s", v.CurrentFunding)
	}
}

func TestHandleCompletedForCancelledRaisesAlert(t *testing.T) {
	f := newFixture(t, "1000", "0")
	inv := f.pending(t, "1", "150")
	ctx := context.Background()

	if err := f.listener.Handle(ctx, failed(inv, "card declined")); err != nil {
		t.Fatalf("fail investment: %v", err)
	}
	// A completion arriving after the failure is never auto-corrected.
	err := f.listener.Handle(ctx, completed(inv))
	if !faults.IsInconsistency(err) {
		t.Fatalf("expected inconsistency, got %v", err)
	}
	if f.sink.count() != 1 {
		t.Fatalf("expected one alert, got %d", f.sink.count())
	}

	after, getErr := f.store.GetInvestment(ctx, inv.ID)
	if getErr != nil {
		t.Fatalf("get investment: %v", getErr)
	}
	if after.Status != investment.StatusCancelled {
		t.Fatalf("investment must stay cancelled, got %s", after.Status)
	}
	v, getErr := f.store.GetVenture(ctx, f.venture.ID)
	if getErr != nil {
		t.Fatalf("get venture: %v", getErr)
	}
	if !v.CurrentFunding.IsZero() {
		t.Fatalf("funding must stay unchanged: %s", v.CurrentFunding)
	}
}

// flakyVentureStore fails ApplyFunding a set number of times. With
// applyBeforeFail the delta still lands before the error surfaces, mimicking
// a write that committed right as the connection died.
type flakyVentureStore struct {
	storage.VentureStore
	applyBeforeFail bool
	failures        int
}

func (s *flakyVentureStore) ApplyFunding(ctx context.Context, id string, delta decimal.Decimal, expectVersion int64, newStatus venture.Status) (venture.Venture, error) {
	if s.failures > 0 {
		s.failures--
		if s.applyBeforeFail {
			if _, err := s.VentureStore.ApplyFunding(ctx, id, delta, expectVersion, newStatus); err != nil {
				return venture.Venture{}, err
			}
		}
		return venture.Venture{}, faults.Transient("apply funding", errors.New("connection reset"))
	}
	return s.VentureStore.ApplyFunding(ctx, id, delta, expectVersion, newStatus)
}

func TestHandleCompletedIndeterminateApplyNotDoubleCounted(t *testing.T) {
	f := newFixture(t, "1000", "0")
	inv := f.pending(t, "1", "150")
	ctx := context.Background()

	store := &flakyVentureStore{VentureStore: f.store, applyBeforeFail: true, failures: 1}
	listener := NewListener(f.store, funding.New(store, f.sink, nil), nil, f.sink, nil)

	err := listener.Handle(ctx, completed(inv))
	if !errors.Is(err, faults.ErrFundingIndeterminate) {
		t.Fatalf("expected indeterminate apply error, got %v", err)
	}

	// The increment may have landed; a rollback to pending would let the
	// redelivered notification count it twice.
	after, getErr := f.store.GetInvestment(ctx, inv.ID)
	if getErr != nil {
		t.Fatalf("get investment: %v", getErr)
	}
	if after.Status != investment.StatusActive {
		t.Fatalf("investment must stay active, got %s", after.Status)
	}

	if err := listener.Handle(ctx, completed(inv)); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	v, getErr := f.store.GetVenture(ctx, f.venture.ID)
	if getErr != nil {
		t.Fatalf("get venture: %v", getErr)
	}
	if !v.CurrentFunding.Equal(dec("150")) {
		t.Fatalf("funding must match the single active investment, got %s", v.CurrentFunding)
	}
}

func TestHandleCompletedFailedApplyRetriesFromPending(t *testing.T) {
	f := newFixture(t, "1000", "0")
	inv := f.pending(t, "1", "150")
	ctx := context.Background()

	store := &flakyVentureStore{VentureStore: f.store, failures: 1}
	listener := NewListener(f.store, funding.New(store, f.sink, nil), nil, f.sink, nil)

	err := listener.Handle(ctx, completed(inv))
	if err == nil || errors.Is(err, faults.ErrFundingIndeterminate) {
		t.Fatalf("expected a retryable apply failure, got %v", err)
	}

	// Nothing was written, so the settlement is safe to retry from scratch.
	after, getErr := f.store.GetInvestment(ctx, inv.ID)
	if getErr != nil {
		t.Fatalf("get investment: %v", getErr)
	}
	if after.Status != investment.StatusPending {
		t.Fatalf("investment should be rolled back to pending, got %s", after.Status)
	}

	if err := listener.Handle(ctx, completed(inv)); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	settled, getErr := f.store.GetInvestment(ctx, inv.ID)
	if getErr != nil {
		t.Fatalf("get investment: %v", getErr)
	}
	if settled.Status != investment.StatusActive {
		t.Fatalf("redelivery should settle the investment, got %s", settled.Status)
	}
	v, getErr := f.store.GetVenture(ctx, f.venture.ID)
	if getErr != nil {
		t.Fatalf("get venture: %v", getErr)
	}
	if !v.CurrentFunding.Equal(dec("150")) {
		t.Fatalf("funding must match the single active investment, got %s", v.CurrentFunding)
	}
}

func TestHandleFailedCancelsPending(t *testing.T) {
	f := newFixture(t, "1000", "0")
	inv := f.pending(t, "1", "150")
	ctx := context.Background()

	if err := f.listener.Handle(ctx, failed(inv, "insufficient funds")); err != nil {
		t.Fatalf("handle: %v", err)
	}

	after, err := f.store.GetInvestment(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get investment: %v", err)
	}
	if after.Status != investment.StatusCancelled {
		t.Fatalf("investment should be cancelled, got %s", after.Status)
	}
	if after.FailureReason != "insufficient funds" {
		t.Fatalf("reason not recorded: %q", after.FailureReason)
	}

	// Redelivered failure is a no-op.
	if err := f.listener.Handle(ctx, failed(inv, "insufficient funds")); err != nil {
		t.Fatalf("redelivered failure: %v", err)
	}
}

func TestHandleFailedAfterSettlementIsNoop(t *testing.T) {
	f := newFixture(t, "1000", "0")
	inv := f.pending(t, "1", "150")
	ctx := context.Background()

	if err := f.listener.Handle(ctx, completed(inv)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := f.listener.Handle(ctx, failed(inv, "late failure")); err != nil {
		t.Fatalf("late failure should be ignored: %v", err)
	}

	after, err := f.store.GetInvestment(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get investment: %v", err)
	}
	if after.Status != investment.StatusActive {
		t.Fatalf("settled investment must stay active, got %s", after.Status)
	}
	v, err := f.store.GetVenture(ctx, f.venture.ID)
	if err != nil {
		t.Fatalf("get venture: %v", err)
	}
	if !v.CurrentFunding.Equal(dec("150")) {
		t.Fatalf("funding changed by late failure: %s", v.CurrentFunding)
	}
}

func TestListenerConsumesFromSource(t *testing.T) {
	f := newFixture(t, "1000", "0")
	inv := f.pending(t, "1", "200")

	source := NewChanSource(4)
	listener := NewListener(f.store, funding.New(f.store, f.sink, nil), source, f.sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := listener.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer listener.Stop(context.Background())

	if err := source.Publish(ctx, completed(inv)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		after, err := f.store.GetInvestment(context.Background(), inv.ID)
		if err != nil {
			t.Fatalf("get investment: %v", err)
		}
		if after.Status == investment.StatusActive {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("investment not settled in time, status %s", after.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestUnorderedOutcomesAcrossInvestments(t *testing.T) {
	f := newFixture(t, "1000", "0")
	a := f.pending(t, "a", "100")
	b := f.pending(t, "b", "200")
	ctx := context.Background()

	// Outcomes arrive in reverse creation order.
	if err := f.listener.Handle(ctx, completed(b)); err != nil {
		t.Fatalf("complete b: %v", err)
	}
	if err := f.listener.Handle(ctx, failed(a, "expired card")); err != nil {
		t.Fatalf("fail a: %v", err)
	}

	v, err := f.store.GetVenture(ctx, f.venture.ID)
	if err != nil {
		t.Fatalf("get venture: %v", err)
	}
	if !v.CurrentFunding.Equal(dec("200")) {
		t.Fatalf("only b should count: %s", v.CurrentFunding)
	}
}
