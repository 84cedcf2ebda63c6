// Package loan issues tiered, over-collateralized loans against a
// shared liquidity pool and tracks each identity's loan through the
// None → Active → {Repaid|Defaulted} state machine.
package loan

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/kwachapay/ledger-service/internal/lederr"
	"github.com/kwachapay/ledger-service/internal/models"
	"github.com/sirupsen/logrus"
)

// Resolver is the read interface the engine needs from the registry.
type Resolver interface {
	Resolve(id string) string
	IsRegistered(id string) bool
}

// Settler disburses and refunds funds to owner handles.
type Settler interface {
	Credit(ownerHandle string, amount int64, reference string) error
}

// Collateral ratio bounds, in basis points of principal.
const (
	MinCollateralRatioBps = 10000 // 100%
	MaxCollateralRatioBps = 30000 // 300%
)

const secondsPerYear = 365 * 86400

// RepayResult describes the outcome of a repayment.
type RepayResult struct {
	Loan     models.Loan `json:"loan"`
	Refund   int64       `json:"refund"` // collateral + excess, full settlement only
	Settled  bool        `json:"settled"`
	Interest int64       `json:"interest"` // earned on full settlement
}

// Engine is the loan accounting engine.
type Engine struct {
	mu      sync.RWMutex
	reg     Resolver
	settler Settler
	log     *logrus.Logger

	tiers              map[int]*models.LoanTier
	loans              map[string]*models.Loan   // latest loan per identity
	history            map[string][]*models.Loan // terminal loans, oldest first
	pool               int64
	collateralRatioBps int64
	nextLoanID         int64
	stats              models.LoanStats

	nowFn func() time.Time
}

// New creates a loan engine with the given collateral ratio and an
// empty pool. Tiers are installed via UpdateTier.
func New(reg Resolver, settler Settler, collateralRatioBps int64, log *logrus.Logger) *Engine {
	return &Engine{
		reg:                reg,
		settler:            settler,
		log:                log,
		tiers:              make(map[int]*models.LoanTier),
		loans:              make(map[string]*models.Loan),
		history:            make(map[string][]*models.Loan),
		collateralRatioBps: collateralRatioBps,
		nextLoanID:         1,
		nowFn:              time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (e *Engine) SetClock(now func() time.Time) { e.nowFn = now }

// interestFor computes floor(principal*rateBps*duration / (365d*10000)).
// The intermediate product can exceed 64 bits, so it runs over big.Int.
func interestFor(principal, rateBps, duration int64) int64 {
	num := new(big.Int).Mul(big.NewInt(principal), big.NewInt(rateBps))
	num.Mul(num, big.NewInt(duration))
	den := big.NewInt(secondsPerYear * 10000)
	return num.Quo(num, den).Int64()
}

// requiredCollateral computes ceil(principal*ratioBps/10000).
func requiredCollateral(principal, ratioBps int64) int64 {
	num := new(big.Int).Mul(big.NewInt(principal), big.NewInt(ratioBps))
	num.Add(num, big.NewInt(9999))
	return num.Quo(num, big.NewInt(10000)).Int64()
}

func (e *Engine) activeLoan(id string) *models.Loan {
	if loan, ok := e.loans[id]; ok && loan.Status == models.LoanActive {
		return loan
	}
	return nil
}

// RequestLoan issues a loan to a registered identity. Checks run in a
// fixed order; disbursement to the borrower's handle is part of the
// same atomic unit, so a disbursement failure rolls everything back.
func (e *Engine) RequestLoan(id string, principal, duration int64, tierID int, collateral int64) (*models.Loan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.reg.IsRegistered(id) {
		return nil, lederr.ErrNotRegistered
	}
	if e.activeLoan(id) != nil {
		return nil, lederr.ErrActiveLoanExists
	}
	tier, ok := e.tiers[tierID]
	if !ok || !tier.Active {
		return nil, lederr.ErrInvalidTier
	}
	if principal < tier.MinAmount || principal > tier.MaxAmount {
		return nil, lederr.ErrInvalidAmount
	}
	if duration < tier.MinDuration || duration > tier.MaxDuration {
		return nil, lederr.ErrInvalidDuration
	}
	if e.pool < principal {
		return nil, lederr.ErrInsufficientLiquidity
	}
	if collateral < requiredCollateral(principal, e.collateralRatioBps) {
		return nil, lederr.ErrInsufficientCollateral
	}

	now := e.nowFn()
	interest := interestFor(principal, tier.InterestRateBps, duration)
	loan := &models.Loan{
		LoanID:          e.nextLoanID,
		IdentityID:      id,
		Principal:       principal,
		Collateral:      collateral,
		InterestRateBps: tier.InterestRateBps,
		StartTime:       now.Unix(),
		DurationSeconds: duration,
		TotalDue:        principal + interest,
		Status:          models.LoanActive,
	}

	reference := fmt.Sprintf("loan-%d-disburse", loan.LoanID)
	if err := e.settler.Credit(e.reg.Resolve(id), principal, reference); err != nil {
		e.log.WithError(err).Warnf("Disbursement failed for %s", reference)
		return nil, fmt.Errorf("%w: %v", lederr.ErrTransferFailed, err)
	}

	e.nextLoanID++
	e.pool -= principal
	e.loans[id] = loan
	e.stats.LoansIssued++
	e.stats.PoolLiquidity = e.pool
	return loan, nil
}

// RepayLoan applies a payment against the identity's active loan.
// A payment covering the full remainder settles the loan: collateral
// plus any excess returns to the borrower atomically. A partial
// payment reduces the debt but never releases collateral.
func (e *Engine) RepayLoan(id string, payment int64) (*RepayResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	loan := e.activeLoan(id)
	if loan == nil {
		return nil, lederr.ErrNoActiveLoan
	}
	if payment <= 0 {
		return nil, lederr.ErrInvalidAmount
	}

	remaining := loan.TotalDue - loan.RepaidAmount
	if payment < remaining {
		loan.RepaidAmount += payment
		e.pool += payment
		e.stats.PoolLiquidity = e.pool
		return &RepayResult{Loan: *loan}, nil
	}

	refund := loan.Collateral + (payment - remaining)
	reference := fmt.Sprintf("loan-%d-release", loan.LoanID)
	if err := e.settler.Credit(e.reg.Resolve(id), refund, reference); err != nil {
		e.log.WithError(err).Warnf("Collateral release failed for %s", reference)
		return nil, fmt.Errorf("%w: %v", lederr.ErrTransferFailed, err)
	}

	interest := loan.TotalDue - loan.Principal
	loan.RepaidAmount = loan.TotalDue
	loan.Status = models.LoanRepaid
	e.pool += loan.TotalDue
	e.history[id] = append(e.history[id], loan)
	e.stats.LoansRepaid++
	e.stats.InterestEarned += interest
	e.stats.PoolLiquidity = e.pool
	return &RepayResult{Loan: *loan, Refund: refund, Settled: true, Interest: interest}, nil
}

// ProcessDefault seizes the collateral of an overdue active loan. The
// full collateral goes to the pool regardless of partial repayments
// already made; the loan record keeps RepaidAmount for audit.
func (e *Engine) ProcessDefault(id string) (*models.Loan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	loan := e.activeLoan(id)
	if loan == nil {
		return nil, lederr.ErrNoActiveLoan
	}
	if e.nowFn().Unix() <= loan.StartTime+loan.DurationSeconds {
		return nil, lederr.ErrLoanNotDue
	}

	loan.Status = models.LoanDefaulted
	e.pool += loan.Collateral
	e.history[id] = append(e.history[id], loan)
	e.stats.LoansDefaulted++
	e.stats.PoolLiquidity = e.pool
	return loan, nil
}

// CalculateQuote prices a prospective loan. Pure; out-of-range inputs
// yield Valid=false rather than an error.
func (e *Engine) CalculateQuote(principal, duration int64, tierID int) models.LoanQuote {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tier, ok := e.tiers[tierID]
	if !ok || !tier.Active ||
		principal < tier.MinAmount || principal > tier.MaxAmount ||
		duration < tier.MinDuration || duration > tier.MaxDuration {
		return models.LoanQuote{}
	}

	interest := interestFor(principal, tier.InterestRateBps, duration)
	return models.LoanQuote{
		Valid:              true,
		Principal:          principal,
		Interest:           interest,
		TotalDue:           principal + interest,
		RequiredCollateral: requiredCollateral(principal, e.collateralRatioBps),
		InterestRateBps:    tier.InterestRateBps,
	}
}

// CheckEligibility reports whether id could take a loan, naming the
// first failing condition. Pure.
func (e *Engine) CheckEligibility(id string) models.Eligibility {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.reg.IsRegistered(id) {
		return models.Eligibility{Reason: "identity not registered"}
	}
	if e.activeLoan(id) != nil {
		return models.Eligibility{Reason: "active loan exists"}
	}
	if e.pool <= 0 {
		return models.Eligibility{Reason: "no pool liquidity"}
	}
	return models.Eligibility{Eligible: true}
}

// GetLoanDetails returns the identity's latest loan. The second value
// is false when the identity never had one.
func (e *Engine) GetLoanDetails(id string) (models.Loan, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if loan, ok := e.loans[id]; ok {
		return *loan, true
	}
	return models.Loan{}, false
}

// GetLoanHistory returns the identity's terminal loans newest-first.
func (e *Engine) GetLoanHistory(id string, offset, limit int) []models.Loan {
	e.mu.RLock()
	defer e.mu.RUnlock()

	history := e.history[id]
	if offset < 0 || limit <= 0 || offset >= len(history) {
		return []models.Loan{}
	}
	out := make([]models.Loan, 0, limit)
	for i := len(history) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, *history[i])
	}
	return out
}

// ListOverdue returns identities whose active loan is past due.
func (e *Engine) ListOverdue() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := e.nowFn().Unix()
	var out []string
	for id, loan := range e.loans {
		if loan.Status == models.LoanActive && now > loan.StartTime+loan.DurationSeconds {
			out = append(out, id)
		}
	}
	return out
}

// AddLiquidity deposits funds into the pool.
func (e *Engine) AddLiquidity(amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if amount <= 0 {
		return lederr.ErrInvalidAmount
	}
	e.pool += amount
	e.stats.PoolLiquidity = e.pool
	return nil
}

// RemoveLiquidity withdraws funds from the pool.
func (e *Engine) RemoveLiquidity(amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if amount <= 0 {
		return lederr.ErrInvalidAmount
	}
	if amount > e.pool {
		return lederr.ErrLiquidityExceedsBalance
	}
	e.pool -= amount
	e.stats.PoolLiquidity = e.pool
	return nil
}

// UpdateTier installs a new tier or overwrites an existing id.
func (e *Engine) UpdateTier(tier models.LoanTier) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if tier.MinAmount < 0 || tier.MinAmount > tier.MaxAmount ||
		tier.MinDuration <= 0 || tier.MinDuration > tier.MaxDuration ||
		tier.InterestRateBps < 0 {
		return lederr.ErrInvalidTier
	}
	copied := tier
	e.tiers[tier.TierID] = &copied
	return nil
}

// UpdateCollateralRatio sets the required ratio, bounded [100%,300%].
func (e *Engine) UpdateCollateralRatio(bps int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if bps < MinCollateralRatioBps || bps > MaxCollateralRatioBps {
		return lederr.ErrInvalidRatio
	}
	e.collateralRatioBps = bps
	return nil
}

// CollateralRatioBps returns the current required ratio.
func (e *Engine) CollateralRatioBps() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.collateralRatioBps
}

// PoolLiquidity returns the available pool balance.
func (e *Engine) PoolLiquidity() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pool
}

// Stats returns aggregate loan counters.
func (e *Engine) Stats() models.LoanStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	stats := e.stats
	stats.PoolLiquidity = e.pool
	return stats
}

// Tiers returns the configured tiers keyed by id.
func (e *Engine) Tiers() []models.LoanTier {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.LoanTier, 0, len(e.tiers))
	for _, tier := range e.tiers {
		out = append(out, *tier)
	}
	return out
}
