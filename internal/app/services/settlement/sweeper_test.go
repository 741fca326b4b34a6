package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/vibestream/fanventures/internal/app/domain/investment"
)

func TestSweepCancelsStalePending(t *testing.T) {
	f := newFixture(t, "1000", "0")
	stale := f.pending(t, "stale", "100")
	settled := f.pending(t, "settled", "200")
	ctx := context.Background()

	if err := f.listener.Handle(ctx, completed(settled)); err != nil {
		t.Fatalf("settle: %v", err)
	}

	sweeper := NewSweeper(f.store, "", time.Millisecond, nil)
	time.Sleep(5 * time.Millisecond)
	if err := sweeper.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	after, err := f.store.GetInvestment(ctx, stale.ID)
	if err != nil {
		t.Fatalf("get stale: %v", err)
	}
	if after.Status != investment.StatusCancelled {
		t.Fatalf("stale investment should be cancelled, got %s", after.Status)
	}
	if after.FailureReason != sweptReason {
		t.Fatalf("unexpected reason: %q", after.FailureReason)
	}

	kept, err := f.store.GetInvestment(ctx, settled.ID)
	if err != nil {
		t.Fatalf("get settled: %v", err)
	}
	if kept.Status != investment.StatusActive {
		t.Fatalf("settled investment must not be swept, got %s", kept.Status)
	}
}

func TestLateCompletionAfterSweepRaisesAlert(t *testing.T) {
	f := newFixture(t, "1000", "0")
	inv := f.pending(t, "late", "100")
	ctx := context.Background()

	sweeper := NewSweeper(f.store, "", time.Millisecond, nil)
	time.Sleep(5 * time.Millisecond)
	if err := sweeper.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	// The payment subsystem confirms after the sweep cancelled the row.
	if err := f.listener.Handle(ctx, completed(inv)); err == nil {
		t.Fatalf("expected inconsistency for late completion")
	}
	if f.sink.count() != 1 {
		t.Fatalf("expected one alert, got %d", f.sink.count())
	}
}

func TestChanSourceRedelivery(t *testing.T) {
	f := newFixture(t, "1000", "0")
	inv := f.pending(t, "1", "100")
	source := NewChanSource(4)
	ctx := context.Background()

	if err := source.Publish(ctx, completed(inv)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	out, ack, err := source.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	ack(false)

	redelivered, ack, err := source.Next(ctx)
	if err != nil {
		t.Fatalf("redelivered next: %v", err)
	}
	if redelivered != out {
		t.Fatalf("expected the same outcome back, got %#v", redelivered)
	}
	ack(true)

	// An acknowledged outcome is gone.
	shortCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, _, err := source.Next(shortCtx); err == nil {
		t.Fatalf("expected empty source after ack")
	}
}

func TestChanSourceNackWaitsWhenFull(t *testing.T) {
	f := newFixture(t, "1000", "0")
	first := f.pending(t, "1", "100")
	second := f.pending(t, "2", "200")
	source := NewChanSource(1)
	ctx := context.Background()

	if err := source.Publish(ctx, completed(first)); err != nil {
		t.Fatalf("publish first: %v", err)
	}
	outA, ackA, err := source.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if err := source.Publish(ctx, completed(second)); err != nil {
		t.Fatalf("publish second: %v", err)
	}

	// The buffer is full again; the negative ack must wait for space instead
	// of dropping the outcome.
	nacked := make(chan struct{})
	go func() {
		ackA(false)
		close(nacked)
	}()

	outB, ackB, err := source.Next(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if outB.OutcomePurpose().InvestmentID != second.ID {
		t.Fatalf("expected the second outcome, got %#v", outB)
	}
	ackB(true)

	select {
	case <-nacked:
	case <-time.After(2 * time.Second):
		t.Fatalf("nack did not complete after space freed")
	}

	redelivered, ack, err := source.Next(ctx)
	if err != nil {
		t.Fatalf("redelivered next: %v", err)
	}
	if redelivered != outA {
		t.Fatalf("expected the first outcome back, got %#v", redelivered)
	}
	ack(true)
}
