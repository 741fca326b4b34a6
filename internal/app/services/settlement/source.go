package settlement

import (
	"context"
	"sync"

	"github.com/vibestream/fanventures/internal/app/domain/payment"
)

// Ack reports whether an outcome was processed. Acknowledging with false
// returns the outcome to the source for redelivery.
type Ack func(processed bool)

// OutcomeSource yields terminal payment outcomes. Next blocks until an
// outcome is available or the context ends. Sources deliver at least once;
// the listener is responsible for making redelivery harmless.
type OutcomeSource interface {
	Next(ctx context.Context) (payment.Outcome, Ack, error)
}

// ChanSource is an in-process outcome source backed by a buffered channel.
// Used by tests and by deployments that run the payment subsystem in the
// same process.
type ChanSource struct {
	ch chan payment.Outcome

	mu     sync.Mutex
	closed bool
}

var _ OutcomeSource = (*ChanSource)(nil)

// NewChanSource creates a channel source with the given buffer size.
func NewChanSource(buffer int) *ChanSource {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChanSource{ch: make(chan payment.Outcome, buffer)}
}

// Publish enqueues an outcome. It blocks when the buffer is full.
func (s *ChanSource) Publish(ctx context.Context, out payment.Outcome) error {
	select {
	case s.ch <- out:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next published outcome. A negative acknowledgement puts
// the outcome back on the queue.
func (s *ChanSource) Next(ctx context.Context) (payment.Outcome, Ack, error) {
	select {
	case out := <-s.ch:
		ack := func(processed bool) {
			if processed {
				return
			}
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			// Block until there is space; outcomes are never dropped while
			// the source is live.
			select {
			case s.ch <- out:
			case <-ctx.Done():
			}
		}
		return out, ack, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// Close stops accepting redeliveries.
func (s *ChanSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
