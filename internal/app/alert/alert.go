// Package alert routes fatal inconsistencies to an operator-visible channel.
// Inconsistencies are never auto-corrected; raising an alert is the only
// automatic response.
package alert

import (
	"context"

	"github.com/vibestream/fanventures/internal/app/faults"
	"github.com/vibestream/fanventures/internal/app/metrics"
	"github.com/vibestream/fanventures/pkg/logger"
)

// Sink receives fatal inconsistency reports.
type Sink interface {
	Raise(ctx context.Context, inc faults.InconsistencyError)
}

// LogSink writes alerts to the structured log and increments the
// inconsistency metric. Production deployments attach a paging integration
// behind the same interface.
type LogSink struct {
	log *logger.Logger
}

// NewLogSink builds a logging alert sink.
func NewLogSink(log *logger.Logger) *LogSink {
	if log == nil {
		log = logger.NewDefault("alerts")
	}
	return &LogSink{log: log}
}

func (s *LogSink) Raise(_ context.Context, inc faults.InconsistencyError) {
	metrics.RecordInconsistency()
	s.log.WithField("venture_id", inc.VentureID).
		WithField("investment_id", inc.InvestmentID).
		WithField("reason", inc.Reason).
		Error("settlement inconsistency detected; operator intervention required")
}
