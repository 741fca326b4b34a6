package venture

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status tracks a venture through its funding lifecycle.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusOpen      Status = "open"
	StatusFunded    Status = "funded"
	StatusClosed    Status = "closed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusFunded, StatusClosed, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether the edge from→to is an allowed lifecycle
// transition. Cancellation is allowed from any non-terminal status.
func CanTransition(from, to Status) bool {
	switch {
	case from == StatusDraft && to == StatusOpen:
		return true
	case from == StatusOpen && to == StatusFunded:
		return true
	case from == StatusOpen && to == StatusClosed:
		return true
	case to == StatusCancelled && !from.Terminal():
		return true
	}
	return false
}

// Category classifies a venture for discovery.
type Category string

const (
	CategoryMusic      Category = "music"
	CategoryVisualArts Category = "visual_arts"
	CategoryFilm       Category = "film"
	CategoryGaming     Category = "gaming"
	CategoryFashion    Category = "fashion"
	CategoryOther      Category = "other"
)

// Venture is a funding campaign opened by a creator. CurrentFunding is owned
// exclusively by the funding aggregator; FundingVersion guards its
// compare-and-swap updates. All monetary values are fixed-point decimals.
type Venture struct {
	ID             string
	OwnerID        string
	Title          string
	Description    string
	Category       Category
	FundingGoal    decimal.Decimal
	CurrentFunding decimal.Decimal
	FundingVersion int64
	MinInvestment  decimal.Decimal
	MaxInvestment  decimal.Decimal // zero means no per-investment cap
	Status         Status
	Halted         bool // set when an inconsistency froze automatic funding updates
	Tiers          []Tier
	ExpiresAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Remaining returns the capacity left before the funding goal.
func (v Venture) Remaining() decimal.Decimal {
	return v.FundingGoal.Sub(v.CurrentFunding)
}

// FundingProgress returns completion as a percentage of the goal.
func (v Venture) FundingProgress() decimal.Decimal {
	if v.FundingGoal.IsZero() {
		return decimal.Zero
	}
	return v.CurrentFunding.Div(v.FundingGoal).Mul(decimal.NewFromInt(100))
}

// TierFor returns the best qualifying tier for an investment amount: the tier
// with the highest minimum the amount still satisfies, respecting tier caps.
func (v Venture) TierFor(amount decimal.Decimal) (Tier, bool) {
	var best Tier
	found := false
	for _, t := range v.Tiers {
		if amount.LessThan(t.MinAmount) {
			continue
		}
		if !t.MaxAmount.IsZero() && amount.GreaterThan(t.MaxAmount) {
			continue
		}
		if !found || t.MinAmount.GreaterThan(best.MinAmount) {
			best = t
			found = true
		}
	}
	return best, found
}

// Tier is a named investment bracket within a venture. Tiers are immutable
// once the venture leaves draft, except through the catalog's administrative
// correction path.
type Tier struct {
	ID          string
	VentureID   string
	Name        string
	MinAmount   decimal.Decimal
	MaxAmount   decimal.Decimal // zero means unbounded
	Description string
	Benefits    []Benefit
	CreatedAt   time.Time
}

// BenefitType classifies what a tier grants its investors.
type BenefitType string

const (
	BenefitDigitalContent  BenefitType = "digital_content"
	BenefitPhysicalProduct BenefitType = "physical_product"
	BenefitExperience      BenefitType = "experience"
	BenefitRevenueShare    BenefitType = "revenue_share"
	BenefitRecognition     BenefitType = "recognition"
)

// DeliveryMethod describes how a benefit reaches the investor.
type DeliveryMethod string

const (
	DeliveryAutomatic  DeliveryMethod = "automatic"
	DeliveryManual     DeliveryMethod = "manual"
	DeliveryPhysical   DeliveryMethod = "physical"
	DeliveryExperience DeliveryMethod = "experience"
)

// Benefit is a reward attached to a tier.
type Benefit struct {
	ID          string
	Title       string
	Description string
	Type        BenefitType
	Delivery    DeliveryMethod
}
