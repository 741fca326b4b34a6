package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"github.com/vibestream/fanventures/internal/app/domain/payment"
	"github.com/vibestream/fanventures/internal/app/faults"
	"github.com/vibestream/fanventures/pkg/logger"
)

const (
	outcomeTypeCompleted = "payment.completed"
	outcomeTypeFailed    = "payment.failed"

	defaultPopTimeout = 5 * time.Second
)

// outcomeEnvelope is the wire form the payment subsystem publishes.
type outcomeEnvelope struct {
	Type    string                    `json:"type"`
	Ref     string                    `json:"payment_reference"`
	Amount  string                    `json:"amount,omitempty"`
	Reason  string                    `json:"reason,omitempty"`
	Purpose payment.InvestmentPurpose `json:"purpose"`
}

// RedisSource consumes payment outcomes from a Redis list using the reliable
// queue pattern: BRPOPLPUSH moves each message into a processing list, a
// positive acknowledgement removes it there, a negative one pushes it back
// onto the queue. Messages parked in the processing list by a crashed
// consumer are recovered with Requeue on startup.
type RedisSource struct {
	client     *redis.Client
	queue      string
	processing string
	popTimeout time.Duration
	log        *logger.Logger
}

var _ OutcomeSource = (*RedisSource)(nil)

// NewRedisSource builds a source reading from the given queue key.
func NewRedisSource(client *redis.Client, queue string, log *logger.Logger) *RedisSource {
	if log == nil {
		log = logger.NewDefault("settlement-redis")
	}
	return &RedisSource{
		client:     client,
		queue:      queue,
		processing: queue + ":processing",
		popTimeout: defaultPopTimeout,
		log:        log,
	}
}

// Requeue moves messages stranded in the processing list back onto the
// queue. Call once before starting the listener.
func (s *RedisSource) Requeue(ctx context.Context) error {
	for {
		raw, err := s.client.RPopLPush(ctx, s.processing, s.queue).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return faults.Transient("requeue outcomes", err)
		}
		s.log.WithField("payload", raw).Warn("requeued stranded payment outcome")
	}
}

// Next blocks for the next outcome. Undecodable payloads are dropped from
// the processing list and logged; they would otherwise poison the queue.
func (s *RedisSource) Next(ctx context.Context) (payment.Outcome, Ack, error) {
	for {
		raw, err := s.client.BRPopLPush(ctx, s.queue, s.processing, s.popTimeout).Result()
		if errors.Is(err, redis.Nil) {
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			default:
				continue
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			return nil, nil, faults.Transient("read outcome", err)
		}

		out, err := decodeOutcome([]byte(raw))
		if err != nil {
			s.log.WithError(err).WithField("payload", raw).Error("discarding malformed payment outcome")
			if remErr := s.client.LRem(ctx, s.processing, 1, raw).Err(); remErr != nil {
				s.log.WithError(remErr).Warn("failed to remove malformed outcome from processing list")
			}
			continue
		}

		ack := func(processed bool) {
			ackCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if processed {
				if err := s.client.LRem(ackCtx, s.processing, 1, raw).Err(); err != nil {
					s.log.WithError(err).Warn("failed to acknowledge payment outcome")
				}
				return
			}
			pipe := s.client.TxPipeline()
			pipe.LRem(ackCtx, s.processing, 1, raw)
			pipe.LPush(ackCtx, s.queue, raw)
			if _, err := pipe.Exec(ackCtx); err != nil {
				s.log.WithError(err).Warn("failed to return payment outcome for redelivery")
			}
		}
		return out, ack, nil
	}
}

func decodeOutcome(raw []byte) (payment.Outcome, error) {
	var env outcomeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode outcome envelope: %w", err)
	}
	if env.Purpose.InvestmentID == "" {
		return nil, fmt.Errorf("outcome envelope missing investment id")
	}

	switch env.Type {
	case outcomeTypeCompleted:
		amount := decimal.Zero
		if env.Amount != "" {
			parsed, err := decimal.NewFromString(env.Amount)
			if err != nil {
				return nil, fmt.Errorf("decode outcome amount %q: %w", env.Amount, err)
			}
			amount = parsed
		}
		return payment.Completed{
			Ref:     payment.Reference(env.Ref),
			Purpose: env.Purpose,
			Amount:  amount,
		}, nil
	case outcomeTypeFailed:
		return payment.Failed{
			Ref:     payment.Reference(env.Ref),
			Purpose: env.Purpose,
			Reason:  env.Reason,
		}, nil
	default:
		return nil, fmt.Errorf("unknown outcome type %q", env.Type)
	}
}
