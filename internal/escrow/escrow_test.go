package escrow

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newContract(goal string, deadline time.Time) *Contract {
	return New("artist-1", dec(goal), deadline)
}

func TestContributeAndWithdraw(t *testing.T) {
	c := newContract("100", time.Now().Add(time.Hour))

	if err := c.Contribute("fan-1", dec("60")); err != nil {
		t.Fatalf("contribute: %v", err)
	}
	if err := c.Contribute("fan-2", dec("40")); err != nil {
		t.Fatalf("contribute: %v", err)
	}
	if !c.Total().Equal(dec("100")) {
		t.Fatalf("unexpected total: %s", c.Total())
	}

	goalMet, err := c.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !goalMet {
		t.Fatalf("goal should be met")
	}

	amount, err := c.WithdrawFunds("artist-1")
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !amount.Equal(dec("100")) {
		t.Fatalf("unexpected withdrawal: %s", amount)
	}

	// Second withdrawal collects nothing.
	if _, err := c.WithdrawFunds("artist-1"); !errors.Is(err, ErrNothingToClaim) {
		t.Fatalf("expected nothing to claim, got %v", err)
	}
}

func TestContributeRejections(t *testing.T) {
	c := newContract("100", time.Now().Add(time.Hour))

	if err := c.Contribute("fan-1", dec("90")); err != nil {
		t.Fatalf("contribute: %v", err)
	}
	// 90 + 20 overshoots the goal and is rejected outright.
	if err := c.Contribute("fan-2", dec("20")); !errors.Is(err, ErrOverGoal) {
		t.Fatalf("expected over-goal rejection, got %v", err)
	}
	// Exactly the remainder is accepted.
	if err := c.Contribute("fan-2", dec("10")); err != nil {
		t.Fatalf("exact remainder rejected: %v", err)
	}

	if _, err := c.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := c.Contribute("fan-3", dec("1")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected closed rejection, got %v", err)
	}
}

func TestContributeAfterDeadline(t *testing.T) {
	c := newContract("100", time.Now().Add(-time.Minute))
	if err := c.Contribute("fan-1", dec("10")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected closed after deadline, got %v", err)
	}
}

func TestFinalizeBeforeDeadlineRequiresGoal(t *testing.T) {
	c := newContract("100", time.Now().Add(time.Hour))
	if err := c.Contribute("fan-1", dec("50")); err != nil {
		t.Fatalf("contribute: %v", err)
	}
	if _, err := c.Finalize(); !errors.Is(err, ErrNotFinalized) {
		t.Fatalf("early finalize without goal should fail, got %v", err)
	}
	if err := c.Contribute("fan-1", dec("50")); err != nil {
		t.Fatalf("contribute: %v", err)
	}
	goalMet, err := c.Finalize()
	if err != nil || !goalMet {
		t.Fatalf("finalize at goal: met=%v err=%v", goalMet, err)
	}
	if _, err := c.Finalize(); !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("expected already finalized, got %v", err)
	}
}

func TestRefundsAfterFailedGoal(t *testing.T) {
	c := newContract("100", time.Now().Add(-time.Minute))
	c.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	if err := c.Contribute("fan-1", dec("30")); err != nil {
		t.Fatalf("contribute: %v", err)
	}
	if err := c.Contribute("fan-2", dec("20")); err != nil {
		t.Fatalf("contribute: %v", err)
	}
	c.now = time.Now

	goalMet, err := c.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if goalMet {
		t.Fatalf("goal should not be met")
	}

	// The beneficiary cannot withdraw a failed pot.
	if _, err := c.WithdrawFunds("artist-1"); !errors.Is(err, ErrGoalNotMet) {
		t.Fatalf("expected goal-not-met, got %v", err)
	}

	refund, err := c.ClaimRefund("fan-1")
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if !refund.Equal(dec("30")) {
		t.Fatalf("refund must equal the exact contribution: %s", refund)
	}
	// Second claim collects nothing.
	if _, err := c.ClaimRefund("fan-1"); !errors.Is(err, ErrNothingToClaim) {
		t.Fatalf("expected nothing to claim, got %v", err)
	}
	// Non-contributors collect nothing.
	if _, err := c.ClaimRefund("fan-9"); !errors.Is(err, ErrNothingToClaim) {
		t.Fatalf("expected nothing to claim for stranger, got %v", err)
	}
}

func TestWithdrawGuards(t *testing.T) {
	c := newContract("100", time.Now().Add(time.Hour))
	if err := c.Contribute("fan-1", dec("100")); err != nil {
		t.Fatalf("contribute: %v", err)
	}

	if _, err := c.WithdrawFunds("artist-1"); !errors.Is(err, ErrNotFinalized) {
		t.Fatalf("expected not finalized, got %v", err)
	}
	if _, err := c.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if _, err := c.WithdrawFunds("fan-1"); !errors.Is(err, ErrNotBeneficiary) {
		t.Fatalf("expected beneficiary check, got %v", err)
	}
	if _, err := c.ClaimRefund("fan-1"); !errors.Is(err, ErrGoalMet) {
		t.Fatalf("refunds must be closed when the goal was met, got %v", err)
	}
}
