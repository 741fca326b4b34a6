package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vibestream/fanventures/internal/app/alert"
	"github.com/vibestream/fanventures/internal/app/domain/investment"
	"github.com/vibestream/fanventures/internal/app/domain/payment"
	"github.com/vibestream/fanventures/internal/app/domain/venture"
	"github.com/vibestream/fanventures/internal/app/faults"
	"github.com/vibestream/fanventures/internal/app/metrics"
	"github.com/vibestream/fanventures/internal/app/storage"
	"github.com/vibestream/fanventures/internal/app/system"
	"github.com/vibestream/fanventures/pkg/logger"
)

// Applier applies a confirmed investment's funding delta. Implemented by the
// funding aggregator.
type Applier interface {
	Apply(ctx context.Context, inv investment.Investment) (venture.Venture, error)
}

// Listener consumes terminal payment notifications and converts them into
// exactly-once ledger and funding updates. Delivery is at-least-once and
// unordered across investments; every handler path tolerates redelivery.
type Listener struct {
	investments storage.InvestmentStore
	aggregator  Applier
	source      OutcomeSource
	alerts      alert.Sink
	log         *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

var _ system.Service = (*Listener)(nil)

// NewListener constructs a settlement listener.
func NewListener(investments storage.InvestmentStore, aggregator Applier, source OutcomeSource, alerts alert.Sink, log *logger.Logger) *Listener {
	if log == nil {
		log = logger.NewDefault("settlement")
	}
	if alerts == nil {
		alerts = alert.NewLogSink(log)
	}
	return &Listener{
		investments: investments,
		aggregator:  aggregator,
		source:      source,
		alerts:      alerts,
		log:         log,
	}
}

func (l *Listener) Name() string { return "settlement-listener" }

// Start begins consuming outcomes until the context is cancelled.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.running = true

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.consume(runCtx)
	}()

	l.log.Info("settlement listener started")
	return nil
}

// Stop halts consumption and waits for the in-flight outcome to finish.
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	cancel := l.cancel
	l.running = false
	l.cancel = nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		l.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (l *Listener) consume(ctx context.Context) {
	for {
		out, ack, err := l.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.log.WithError(err).Warn("reading payment outcome failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		err = l.Handle(ctx, out)
		// A failed notification is considered unprocessed and redelivered
		// later; inconsistencies are acknowledged because redelivery cannot
		// resolve them, only an operator can.
		processed := err == nil || faults.IsInconsistency(err) || errors.Is(err, faults.ErrFundingHalted)
		if ack != nil {
			ack(processed)
		}
		if err != nil && !processed {
			l.log.WithError(err).Warn("payment outcome left for redelivery")
		}
	}
}

// Handle applies a single outcome. It is safe to call repeatedly with the
// same outcome.
func (l *Listener) Handle(ctx context.Context, out payment.Outcome) error {
	switch o := out.(type) {
	case payment.Completed:
		return l.handleCompleted(ctx, o)
	case payment.Failed:
		return l.handleFailed(ctx, o)
	default:
		return fmt.Errorf("unknown payment outcome %T", out)
	}
}

func (l *Listener) handleCompleted(ctx context.Context, o payment.Completed) error {
	inv, err := l.investments.GetInvestment(ctx, o.Purpose.InvestmentID)
	if err != nil {
		metrics.RecordSettlement("completed", "error")
		return fmt.Errorf("completed notification for investment %s: %w", o.Purpose.InvestmentID, err)
	}

	switch inv.Status {
	case investment.StatusActive:
		// Duplicate delivery; the funding increment already happened.
		metrics.RecordDuplicateDelivery()
		metrics.RecordSettlement("completed", "duplicate")
		l.log.WithField("investment_id", inv.ID).Debugf("duplicate completion ignored")
		return nil

	case investment.StatusCancelled:
		inc := faults.InconsistencyError{
			VentureID:    inv.VentureID,
			InvestmentID: inv.ID,
			Reason:       "payment completed for a cancelled investment",
		}
		l.alerts.Raise(ctx, inc)
		metrics.RecordSettlement("completed", "inconsistency")
		return inc
	}

	inv.Status = investment.StatusActive
	if inv.PaymentRef == "" {
		inv.PaymentRef = string(o.Ref)
	}
	updated, err := l.investments.UpdateInvestment(ctx, inv)
	if err != nil {
		metrics.RecordSettlement("completed", "error")
		return fmt.Errorf("activate investment %s: %w", inv.ID, err)
	}

	if _, err := l.aggregator.Apply(ctx, updated); err != nil {
		if faults.IsInconsistency(err) || errors.Is(err, faults.ErrFundingHalted) {
			// The investment stays active and funding stays unchanged; the
			// alert path already fired.
			metrics.RecordSettlement("completed", "inconsistency")
			return err
		}
		if errors.Is(err, faults.ErrFundingIndeterminate) {
			// The increment may have committed. Reverting to pending would
			// let the redelivered notification apply it a second time, so
			// the investment stays active and the duplicate path absorbs
			// the redelivery.
			metrics.RecordSettlement("completed", "error")
			return fmt.Errorf("apply funding for investment %s: %w", inv.ID, err)
		}
		// The increment did not commit. Roll the status back so the
		// redelivered notification finds the investment pending and retries
		// the whole settlement.
		updated.Status = investment.StatusPending
		if _, revertErr := l.investments.UpdateInvestment(ctx, updated); revertErr != nil {
			l.log.WithError(revertErr).
				WithField("investment_id", inv.ID).
				Error("failed to revert investment to pending after funding error")
		}
		metrics.RecordSettlement("completed", "error")
		return fmt.Errorf("apply funding for investment %s: %w", inv.ID, err)
	}

	metrics.RecordSettlement("completed", "applied")
	l.log.WithField("investment_id", inv.ID).
		WithField("venture_id", inv.VentureID).
		Info("investment settled")
	return nil
}

func (l *Listener) handleFailed(ctx context.Context, o payment.Failed) error {
	inv, err := l.investments.GetInvestment(ctx, o.Purpose.InvestmentID)
	if err != nil {
		metrics.RecordSettlement("failed", "error")
		return fmt.Errorf("failed notification for investment %s: %w", o.Purpose.InvestmentID, err)
	}

	if inv.Status != investment.StatusPending {
		// Already settled either way; nothing to do.
		metrics.RecordSettlement("failed", "duplicate")
		return nil
	}

	inv.Status = investment.StatusCancelled
	inv.FailureReason = o.Reason
	if inv.PaymentRef == "" {
		inv.PaymentRef = string(o.Ref)
	}
	if _, err := l.investments.UpdateInvestment(ctx, inv); err != nil {
		metrics.RecordSettlement("failed", "error")
		return fmt.Errorf("cancel investment %s: %w", inv.ID, err)
	}

	metrics.RecordSettlement("failed", "cancelled")
	l.log.WithField("investment_id", inv.ID).
		WithField("venture_id", inv.VentureID).
		WithField("reason", o.Reason).
		Info("investment cancelled after payment failure")
	return nil
}
