package investment

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/shopspring/decimal"
)

// Status tracks an investment from creation to its terminal outcome. Pending
// is the only non-terminal state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool { return s == StatusActive || s == StatusCancelled }

// Investment records a supporter's pledge toward a venture. Rows are never
// deleted; cancelled investments are retained for audit.
type Investment struct {
	ID             string
	VentureID      string
	SupporterID    string
	Amount         decimal.Decimal
	TierID         string
	Status         Status
	IdempotencyKey string
	PaymentRef     string
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DeriveKey computes the creation idempotency key for a
// (supporter, venture, nonce) triple. The same triple always yields the same
// key, so a client retry maps onto the original ledger row.
func DeriveKey(supporterID, ventureID, nonce string) string {
	h := sha256.New()
	h.Write([]byte(supporterID))
	h.Write([]byte{0})
	h.Write([]byte(ventureID))
	h.Write([]byte{0})
	h.Write([]byte(nonce))
	return hex.EncodeToString(h.Sum(nil))
}
