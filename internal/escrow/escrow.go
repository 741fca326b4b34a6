// Package escrow implements an all-or-nothing funding escrow. Contributions
// accumulate until the deadline; finalization either releases the pot to the
// beneficiary or opens refunds, and both withdrawals and refunds follow the
// pull-payment model where the contract records entitlement and the caller
// collects it.
package escrow

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrClosed rejects contributions after the deadline or finalization.
	ErrClosed = errors.New("escrow is closed to contributions")

	// ErrOverGoal rejects a contribution that would push the pot past the
	// goal. Overshooting contributions are rejected outright, never capped.
	ErrOverGoal = errors.New("contribution exceeds remaining goal")

	// ErrNotFinalized rejects withdrawals and refunds before finalization.
	ErrNotFinalized = errors.New("escrow is not finalized")

	// ErrAlreadyFinalized rejects a second finalization.
	ErrAlreadyFinalized = errors.New("escrow is already finalized")

	// ErrGoalNotMet rejects a beneficiary withdrawal when the goal failed.
	ErrGoalNotMet = errors.New("funding goal was not met")

	// ErrGoalMet rejects refunds when the goal succeeded.
	ErrGoalMet = errors.New("funding goal was met")

	// ErrNotBeneficiary rejects a withdrawal by anyone else.
	ErrNotBeneficiary = errors.New("caller is not the beneficiary")

	// ErrNothingToClaim marks a zero entitlement.
	ErrNothingToClaim = errors.New("nothing to claim")
)

// Contract is an in-process escrow for a single venture.
type Contract struct {
	mu sync.Mutex

	beneficiary string
	goal        decimal.Decimal
	deadline    time.Time

	total         decimal.Decimal
	contributions map[string]decimal.Decimal

	finalized bool
	goalMet   bool
	withdrawn bool

	now func() time.Time
}

// New creates an escrow contract for the beneficiary with a funding goal and
// contribution deadline.
func New(beneficiary string, goal decimal.Decimal, deadline time.Time) *Contract {
	return &Contract{
		beneficiary:   beneficiary,
		goal:          goal,
		deadline:      deadline,
		contributions: make(map[string]decimal.Decimal),
		now:           time.Now,
	}
}

// Contribute records a contribution for the supporter. Contributions are
// rejected after the deadline, after finalization, and when they would
// overshoot the goal.
func (c *Contract) Contribute(supporter string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNothingToClaim
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finalized || !c.now().Before(c.deadline) {
		return ErrClosed
	}
	if c.total.Add(amount).GreaterThan(c.goal) {
		return ErrOverGoal
	}

	c.total = c.total.Add(amount)
	c.contributions[supporter] = c.contributions[supporter].Add(amount)
	return nil
}

// Finalize closes the escrow and records whether the goal was met. It can be
// called by anyone, once, after the deadline or once the goal is reached.
func (c *Contract) Finalize() (goalMet bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finalized {
		return false, ErrAlreadyFinalized
	}
	goalReached := c.total.GreaterThanOrEqual(c.goal)
	if c.now().Before(c.deadline) && !goalReached {
		return false, ErrNotFinalized
	}

	c.finalized = true
	c.goalMet = goalReached
	return c.goalMet, nil
}

// WithdrawFunds releases the full pot to the beneficiary. Only valid after a
// successful finalization, and only once; the amount is returned for the
// caller to transfer.
func (c *Contract) WithdrawFunds(caller string) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != c.beneficiary {
		return decimal.Decimal{}, ErrNotBeneficiary
	}
	if !c.finalized {
		return decimal.Decimal{}, ErrNotFinalized
	}
	if !c.goalMet {
		return decimal.Decimal{}, ErrGoalNotMet
	}
	if c.withdrawn {
		return decimal.Decimal{}, ErrNothingToClaim
	}

	c.withdrawn = true
	return c.total, nil
}

// ClaimRefund returns the supporter's exact contribution after a failed
// finalization and zeroes it, so a second claim collects nothing.
func (c *Contract) ClaimRefund(supporter string) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.finalized {
		return decimal.Decimal{}, ErrNotFinalized
	}
	if c.goalMet {
		return decimal.Decimal{}, ErrGoalMet
	}

	amount := c.contributions[supporter]
	if !amount.IsPositive() {
		return decimal.Decimal{}, ErrNothingToClaim
	}

	delete(c.contributions, supporter)
	c.total = c.total.Sub(amount)
	return amount, nil
}

// Total reports the current pot size.
func (c *Contract) Total() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Finalized reports finalization state and outcome.
func (c *Contract) Finalized() (finalized, goalMet bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finalized, c.goalMet
}
