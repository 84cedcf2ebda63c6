package models

// LoanStatus is the per-identity loan state machine.
type LoanStatus string

const (
	LoanNone      LoanStatus = "none"
	LoanActive    LoanStatus = "active"
	LoanRepaid    LoanStatus = "repaid"
	LoanDefaulted LoanStatus = "defaulted"
)

// Loan represents a collateralized loan. Immutable once status is terminal.
type Loan struct {
	LoanID          int64      `json:"loan_id"`
	IdentityID      string     `json:"identity_id"`
	Principal       int64      `json:"principal"`
	Collateral      int64      `json:"collateral"`
	InterestRateBps int64      `json:"interest_rate_bps"`
	StartTime       int64      `json:"start_time"` // unix seconds
	DurationSeconds int64      `json:"duration_seconds"`
	TotalDue        int64      `json:"total_due"`
	RepaidAmount    int64      `json:"repaid_amount"`
	Status          LoanStatus `json:"status"`
}

// LoanTier is a bracket of amount range, duration range and rate.
type LoanTier struct {
	TierID          int   `json:"tier_id"`
	MinAmount       int64 `json:"min_amount"`
	MaxAmount       int64 `json:"max_amount"`
	InterestRateBps int64 `json:"interest_rate_bps"`
	MinDuration     int64 `json:"min_duration"` // seconds
	MaxDuration     int64 `json:"max_duration"` // seconds
	Active          bool  `json:"active"`
}

// LoanQuote is the pure pricing result for a prospective loan.
// Valid is false (not an error) when the inputs fall outside the tier.
type LoanQuote struct {
	Valid              bool  `json:"valid"`
	Principal          int64 `json:"principal"`
	Interest           int64 `json:"interest"`
	TotalDue           int64 `json:"total_due"`
	RequiredCollateral int64 `json:"required_collateral"`
	InterestRateBps    int64 `json:"interest_rate_bps"`
}

// LoanStats aggregates loan engine activity.
type LoanStats struct {
	LoansIssued    int64 `json:"loans_issued"`
	LoansRepaid    int64 `json:"loans_repaid"`
	LoansDefaulted int64 `json:"loans_defaulted"`
	InterestEarned int64 `json:"interest_earned"`
	PoolLiquidity  int64 `json:"pool_liquidity"`
}
