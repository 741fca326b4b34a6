package paymentbridge

import (
	"context"

	"github.com/vibestream/fanventures/internal/app/domain/investment"
	"github.com/vibestream/fanventures/internal/app/domain/payment"
	"github.com/vibestream/fanventures/internal/app/storage"
	"github.com/vibestream/fanventures/pkg/logger"
)

// Gateway submits charges to the external payment subsystem. The subsystem
// is required to deduplicate on the idempotency key, so repeated submissions
// for the same investment never create two charges.
type Gateway interface {
	RequestPayment(ctx context.Context, req payment.Request) (payment.Reference, error)
}

// Bridge translates confirmed investments into payment requests.
type Bridge struct {
	gateway     Gateway
	investments storage.InvestmentStore
	currency    string
	log         *logger.Logger
}

// New constructs a payment bridge. Currency defaults to USD.
func New(gateway Gateway, investments storage.InvestmentStore, currency string, log *logger.Logger) *Bridge {
	if log == nil {
		log = logger.NewDefault("paymentbridge")
	}
	if currency == "" {
		currency = "USD"
	}
	return &Bridge{gateway: gateway, investments: investments, currency: currency, log: log}
}

// Dispatch submits the payment request for an investment and records the
// returned reference. A failed gateway call leaves the investment untouched
// and is safe to retry: the idempotency key is derived from the investment
// id and never changes.
func (b *Bridge) Dispatch(ctx context.Context, inv investment.Investment) (payment.Reference, error) {
	req := payment.Request{
		Amount:         inv.Amount,
		Currency:       b.currency,
		IdempotencyKey: payment.BridgeKey(inv.ID),
		Purpose: payment.InvestmentPurpose{
			InvestmentID: inv.ID,
			VentureID:    inv.VentureID,
		},
	}

	ref, err := b.gateway.RequestPayment(ctx, req)
	if err != nil {
		return "", err
	}

	if inv.PaymentRef != string(ref) {
		inv.PaymentRef = string(ref)
		if _, err := b.investments.UpdateInvestment(ctx, inv); err != nil {
			// The charge exists; the reference will be re-recorded on the
			// next dispatch or learned from the outcome notification.
			b.log.WithError(err).
				WithField("investment_id", inv.ID).
				Warn("payment reference not persisted")
		}
	}

	b.log.WithField("investment_id", inv.ID).
		WithField("venture_id", inv.VentureID).
		WithField("payment_ref", string(ref)).
		Info("payment requested")
	return ref, nil
}
