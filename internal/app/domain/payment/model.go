// Package payment defines the contract between the engine and the external
// payment subsystem: the outbound request shape and the closed set of
// asynchronous outcome notifications it emits.
package payment

import "github.com/shopspring/decimal"

// InvestmentPurpose carries the typed references an outcome notification must
// round-trip unchanged. A missing reference is a compile-time error here, not
// a runtime metadata lookup failure.
type InvestmentPurpose struct {
	InvestmentID string `json:"investment_id"`
	VentureID    string `json:"venture_id"`
}

// Request is a payment charge the bridge submits to the payment subsystem.
type Request struct {
	Amount         decimal.Decimal   `json:"amount"`
	Currency       string            `json:"currency"`
	IdempotencyKey string            `json:"idempotency_key"`
	Purpose        InvestmentPurpose `json:"purpose"`
}

// Reference identifies a charge inside the payment subsystem.
type Reference string

// BridgeKey derives the payment-request idempotency key for an investment.
// It is distinct from the investment's own creation key: the payment
// subsystem deduplicates charges on it, so re-dispatching after a transient
// failure never double-charges.
func BridgeKey(investmentID string) string {
	return "venture-investment-" + investmentID
}

// Outcome is a terminal payment notification. The variant set is closed:
// only Completed and Failed implement it.
type Outcome interface {
	OutcomePurpose() InvestmentPurpose
	outcome()
}

// Completed reports a successfully settled charge.
type Completed struct {
	Ref     Reference
	Purpose InvestmentPurpose
	Amount  decimal.Decimal
}

// Failed reports a charge that will never settle.
type Failed struct {
	Ref     Reference
	Purpose InvestmentPurpose
	Reason  string
}

func (c Completed) OutcomePurpose() InvestmentPurpose { return c.Purpose }
func (c Completed) outcome()                          {}

func (f Failed) OutcomePurpose() InvestmentPurpose { return f.Purpose }
func (f Failed) outcome()                          {}
