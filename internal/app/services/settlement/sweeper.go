package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vibestream/fanventures/internal/app/domain/investment"
	"github.com/vibestream/fanventures/internal/app/metrics"
	"github.com/vibestream/fanventures/internal/app/storage"
	"github.com/vibestream/fanventures/internal/app/system"
	"github.com/vibestream/fanventures/pkg/logger"
)

const sweptReason = "payment outcome not received in time"

// Sweeper cancels investments that stayed pending past the payment timeout.
// A late completion for a swept investment surfaces through the listener's
// cancelled-investment inconsistency path, so sweeping never silently loses
// money.
type Sweeper struct {
	investments storage.InvestmentStore
	timeout     time.Duration
	schedule    string
	log         *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

var _ system.Service = (*Sweeper)(nil)

// NewSweeper builds a sweeper. The schedule is a cron expression; timeout is
// how long an investment may stay pending.
func NewSweeper(investments storage.InvestmentStore, schedule string, timeout time.Duration, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault("sweeper")
	}
	if schedule == "" {
		schedule = "*/5 * * * *"
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Sweeper{investments: investments, timeout: timeout, schedule: schedule, log: log}
}

func (s *Sweeper) Name() string { return "pending-sweeper" }

// Start schedules periodic sweeps.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.Sweep(sweepCtx); err != nil {
			s.log.WithError(err).Warn("pending sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule pending sweep: %w", err)
	}
	c.Start()

	s.cron = c
	s.running = true
	s.log.WithField("schedule", s.schedule).Info("pending sweeper started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.running = false
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep cancels every investment pending longer than the timeout. Each
// candidate is re-read before cancelling so an outcome that settles between
// the listing and the write is not clobbered.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-s.timeout)
	stale, err := s.investments.ListPendingOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, candidate := range stale {
		current, err := s.investments.GetInvestment(ctx, candidate.ID)
		if err != nil {
			s.log.WithError(err).WithField("investment_id", candidate.ID).Warn("sweep read failed")
			continue
		}
		if current.Status != investment.StatusPending {
			continue
		}

		current.Status = investment.StatusCancelled
		current.FailureReason = sweptReason
		if _, err := s.investments.UpdateInvestment(ctx, current); err != nil {
			s.log.WithError(err).WithField("investment_id", current.ID).Warn("sweep cancel failed")
			continue
		}

		metrics.RecordSweptInvestment()
		s.log.WithField("investment_id", current.ID).
			WithField("venture_id", current.VentureID).
			Info("stale pending investment cancelled")
	}
	return nil
}
