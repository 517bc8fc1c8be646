package domain

import "time"

// Policy is the loan policy for a borrower tier.
type Policy struct {
	// LoanDays is the loan period added to the checkout instant to get the due date.
	LoanDays int
	// LateFeeCentsPerDay is the per-day late fee once a checkout is overdue.
	LateFeeCentsPerDay int
	// ClaimWindowHours is how long a notified waitlist entry stays claimable.
	ClaimWindowHours int
}

// HoldWindow is how long a book stays in each hold phase before the lazy
// transition processor moves it along.
const HoldWindow = 24 * time.Hour

// DefaultDueSoonThresholdDays is the "due soon" lookahead used when no
// override is configured.
const DefaultDueSoonThresholdDays = 2

// PolicyFor returns the loan policy for a tier. The mapping is exhaustive:
// unknown tiers fall back to the standard policy.
func PolicyFor(t Tier) Policy {
	switch t {
	case TierPremium, TierLibrarian, TierAdmin:
		return Policy{LoanDays: 17, LateFeeCentsPerDay: 25, ClaimWindowHours: 48}
	case TierStandard:
		return Policy{LoanDays: 14, LateFeeCentsPerDay: 25, ClaimWindowHours: 24}
	default:
		return Policy{LoanDays: 14, LateFeeCentsPerDay: 25, ClaimWindowHours: 24}
	}
}
