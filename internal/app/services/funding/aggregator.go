package funding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vibestream/fanventures/internal/app/alert"
	"github.com/vibestream/fanventures/internal/app/domain/investment"
	"github.com/vibestream/fanventures/internal/app/domain/venture"
	"github.com/vibestream/fanventures/internal/app/faults"
	"github.com/vibestream/fanventures/internal/app/metrics"
	"github.com/vibestream/fanventures/internal/app/storage"
	"github.com/vibestream/fanventures/pkg/logger"
)

const maxApplyAttempts = 10

// Aggregator is the single writer of a venture's running total. Concurrent
// confirmations for the same venture are serialized through version-checked
// writes: read funding and version, compute the candidate total, write
// conditionally, retry on conflict. Different ventures proceed fully in
// parallel.
type Aggregator struct {
	ventures storage.VentureStore
	alerts   alert.Sink
	log      *logger.Logger
}

// New constructs a funding aggregator.
func New(ventures storage.VentureStore, alerts alert.Sink, log *logger.Logger) *Aggregator {
	if log == nil {
		log = logger.NewDefault("funding")
	}
	if alerts == nil {
		alerts = alert.NewLogSink(log)
	}
	return &Aggregator{ventures: ventures, alerts: alerts, log: log}
}

// Apply adds a confirmed investment's amount to its venture and evaluates
// the automatic transitions: draft ventures open on their first confirmed
// backing, and the confirmation that crosses the goal marks the venture
// funded exactly once.
//
// An increment that would overshoot the goal is a fatal inconsistency: the
// venture is halted, the investment stays active, funding stays unchanged
// and the operator alert path fires. The upstream capacity check prevents
// this except under a race between two concurrently-accepted investments.
func (a *Aggregator) Apply(ctx context.Context, inv investment.Investment) (venture.Venture, error) {
	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		v, err := a.ventures.GetVenture(ctx, inv.VentureID)
		if err != nil {
			return venture.Venture{}, err
		}
		if v.Halted {
			return venture.Venture{}, faults.ErrFundingHalted
		}

		candidate := v.CurrentFunding.Add(inv.Amount)
		if candidate.GreaterThan(v.FundingGoal) {
			inc := faults.InconsistencyError{
				VentureID:    v.ID,
				InvestmentID: inv.ID,
				Reason:       "applying increment would exceed the funding goal",
			}
			if err := a.ventures.SetVentureHalted(ctx, v.ID, true); err != nil {
				a.log.WithError(err).WithField("venture_id", v.ID).Error("failed to halt venture")
			}
			a.alerts.Raise(ctx, inc)
			return venture.Venture{}, inc
		}

		newStatus := venture.Status("")
		if v.Status == venture.StatusDraft && candidate.IsPositive() {
			newStatus = venture.StatusOpen
		}
		if candidate.GreaterThanOrEqual(v.FundingGoal) &&
			(v.Status == venture.StatusOpen || newStatus == venture.StatusOpen) {
			newStatus = venture.StatusFunded
		}

		updated, err := a.ventures.ApplyFunding(ctx, v.ID, inv.Amount, v.FundingVersion, newStatus)
		if err != nil {
			if errors.Is(err, faults.ErrVersionConflict) {
				metrics.RecordFundingConflict()
				select {
				case <-ctx.Done():
					return venture.Venture{}, ctx.Err()
				case <-time.After(time.Duration(attempt+1) * time.Millisecond):
				}
				continue
			}
			if errors.Is(err, faults.ErrNotFound) {
				return venture.Venture{}, err
			}
			// The write may or may not have committed. An unchanged version
			// proves it did not, so the caller can retry; anything else is
			// indeterminate and must not be applied again.
			if check, checkErr := a.ventures.GetVenture(ctx, inv.VentureID); checkErr == nil && check.FundingVersion == v.FundingVersion {
				return venture.Venture{}, err
			}
			return venture.Venture{}, fmt.Errorf("%w: %v", faults.ErrFundingIndeterminate, err)
		}

		if newStatus == venture.StatusFunded {
			metrics.RecordVentureFunded()
		}
		entry := a.log.WithField("venture_id", v.ID).
			WithField("investment_id", inv.ID).
			WithField("current_funding", updated.CurrentFunding.String())
		if newStatus != "" {
			entry = entry.WithField("status", string(newStatus))
		}
		entry.Info("funding applied")
		return updated, nil
	}
	return venture.Venture{}, faults.Transient("apply funding", faults.ErrVersionConflict)
}
