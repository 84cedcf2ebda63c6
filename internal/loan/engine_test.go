package loan

import (
	"errors"
	"testing"
	"time"

	"github.com/kwachapay/ledger-service/internal/integrations/momo"
	"github.com/kwachapay/ledger-service/internal/lederr"
	"github.com/kwachapay/ledger-service/internal/models"
	"github.com/sirupsen/logrus"
)

type stubRegistry struct {
	owners map[string]string
}

func (s *stubRegistry) Resolve(id string) string { return s.owners[id] }

func (s *stubRegistry) IsRegistered(id string) bool {
	_, ok := s.owners[id]
	return ok
}

const (
	day  = int64(86400)
	week = 7 * day
)

func testTier() models.LoanTier {
	return models.LoanTier{
		TierID:          1,
		MinAmount:       10_000,
		MaxAmount:       100_000,
		InterestRateBps: 1000,
		MinDuration:     week,
		MaxDuration:     30 * day,
		Active:          true,
	}
}

type testEngine struct {
	*Engine
	rec *momo.Recorder
	now *time.Time
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	reg := &stubRegistry{owners: map[string]string{"id-1": "acct-1", "id-2": "acct-2"}}
	rec := momo.NewRecorder()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	engine := New(reg, rec, 15000, log)
	now := time.Unix(1_700_000_000, 0)
	engine.SetClock(func() time.Time { return now })

	if err := engine.UpdateTier(testTier()); err != nil {
		t.Fatalf("UpdateTier: %v", err)
	}
	if err := engine.AddLiquidity(1_000_000); err != nil {
		t.Fatalf("AddLiquidity: %v", err)
	}
	return &testEngine{Engine: engine, rec: rec, now: &now}
}

func (e *testEngine) advance(seconds int64) {
	*e.now = e.now.Add(time.Duration(seconds) * time.Second)
}

func TestInterestMath(t *testing.T) {
	e := newTestEngine(t)

	quote := e.CalculateQuote(50_000, 30*day, 1)
	if !quote.Valid {
		t.Fatal("quote invalid for in-range inputs")
	}
	// floor(50000 * 1000bps * 30d / (365d * 10000)) = 410
	if quote.Interest != 410 {
		t.Errorf("Interest = %d, want 410", quote.Interest)
	}
	if quote.TotalDue != 50_410 {
		t.Errorf("TotalDue = %d, want 50410", quote.TotalDue)
	}
	// ceil(50000 * 15000bps / 10000) = 75000
	if quote.RequiredCollateral != 75_000 {
		t.Errorf("RequiredCollateral = %d, want 75000", quote.RequiredCollateral)
	}
}

func TestQuoteInvalidOutOfRange(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name      string
		principal int64
		duration  int64
		tierID    int
	}{
		{"unknown tier", 50_000, 30 * day, 9},
		{"below min amount", 9_999, 30 * day, 1},
		{"above max amount", 100_001, 30 * day, 1},
		{"too short", 50_000, week - 1, 1},
		{"too long", 50_000, 31 * day, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if quote := e.CalculateQuote(tt.principal, tt.duration, tt.tierID); quote.Valid {
				t.Error("quote valid, want invalid")
			}
		})
	}
}

func TestRequestLoanCheckOrder(t *testing.T) {
	e := newTestEngine(t)
	inactive := testTier()
	inactive.TierID = 2
	inactive.Active = false
	if err := e.UpdateTier(inactive); err != nil {
		t.Fatalf("UpdateTier: %v", err)
	}

	tests := []struct {
		name       string
		id         string
		principal  int64
		duration   int64
		tierID     int
		collateral int64
		wantErr    error
	}{
		{"unregistered", "id-9", 50_000, 30 * day, 1, 75_000, lederr.ErrNotRegistered},
		{"unknown tier", "id-1", 50_000, 30 * day, 9, 75_000, lederr.ErrInvalidTier},
		{"inactive tier", "id-1", 50_000, 30 * day, 2, 75_000, lederr.ErrInvalidTier},
		{"amount out of range", "id-1", 5_000, 30 * day, 1, 75_000, lederr.ErrInvalidAmount},
		{"duration out of range", "id-1", 50_000, 60 * day, 1, 75_000, lederr.ErrInvalidDuration},
		{"short collateral", "id-1", 50_000, 30 * day, 1, 74_000, lederr.ErrInsufficientCollateral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.RequestLoan(tt.id, tt.principal, tt.duration, tt.tierID, tt.collateral)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("RequestLoan err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// Liquidity is checked before collateral.
	if err := e.RemoveLiquidity(960_000); err != nil {
		t.Fatalf("RemoveLiquidity: %v", err)
	}
	_, err := e.RequestLoan("id-1", 50_000, 30*day, 1, 0)
	if !errors.Is(err, lederr.ErrInsufficientLiquidity) {
		t.Errorf("RequestLoan err = %v, want ErrInsufficientLiquidity", err)
	}
}

func TestRequestLoanDisbursesAtomically(t *testing.T) {
	e := newTestEngine(t)

	issued, err := e.RequestLoan("id-1", 50_000, 30*day, 1, 75_000)
	if err != nil {
		t.Fatalf("RequestLoan: %v", err)
	}
	if issued.Status != models.LoanActive {
		t.Errorf("Status = %s, want active", issued.Status)
	}
	if issued.TotalDue != 50_410 {
		t.Errorf("TotalDue = %d, want 50410", issued.TotalDue)
	}
	if got := e.PoolLiquidity(); got != 950_000 {
		t.Errorf("pool = %d, want 950000", got)
	}
	if got := e.rec.Total("acct-1"); got != 50_000 {
		t.Errorf("disbursed = %d, want 50000", got)
	}

	// One active loan per identity.
	if _, err := e.RequestLoan("id-1", 50_000, 30*day, 1, 75_000); !errors.Is(err, lederr.ErrActiveLoanExists) {
		t.Errorf("second loan err = %v, want ErrActiveLoanExists", err)
	}
}

func TestRequestLoanDisbursementFailureRollsBack(t *testing.T) {
	e := newTestEngine(t)
	e.rec.FailWith(errors.New("provider down"))

	_, err := e.RequestLoan("id-1", 50_000, 30*day, 1, 75_000)
	if !errors.Is(err, lederr.ErrTransferFailed) {
		t.Fatalf("RequestLoan err = %v, want ErrTransferFailed", err)
	}
	if got := e.PoolLiquidity(); got != 1_000_000 {
		t.Errorf("pool = %d, want 1000000", got)
	}
	if _, ok := e.GetLoanDetails("id-1"); ok {
		t.Error("loan exists after failed disbursement")
	}
	if eligibility := e.CheckEligibility("id-1"); !eligibility.Eligible {
		t.Errorf("eligibility after rollback: %+v", eligibility)
	}
}

func TestCollateralBoundary(t *testing.T) {
	e := newTestEngine(t)

	// ratio 15000bps: principal 50000 needs exactly 75000.
	if _, err := e.RequestLoan("id-1", 50_000, 30*day, 1, 74_999); !errors.Is(err, lederr.ErrInsufficientCollateral) {
		t.Errorf("74999 err = %v, want ErrInsufficientCollateral", err)
	}
	if _, err := e.RequestLoan("id-1", 50_000, 30*day, 1, 75_000); err != nil {
		t.Errorf("75000: %v", err)
	}
}

func TestRepayPartialKeepsLoanActive(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.RequestLoan("id-1", 50_000, 30*day, 1, 75_000); err != nil {
		t.Fatalf("RequestLoan: %v", err)
	}
	poolBefore := e.PoolLiquidity()
	settlements := len(e.rec.Credits())

	result, err := e.RepayLoan("id-1", 20_000)
	if err != nil {
		t.Fatalf("RepayLoan: %v", err)
	}
	if result.Settled {
		t.Error("partial payment reported as settled")
	}
	if result.Refund != 0 {
		t.Errorf("Refund = %d, want 0", result.Refund)
	}
	if result.Loan.Status != models.LoanActive {
		t.Errorf("Status = %s, want active", result.Loan.Status)
	}
	if result.Loan.RepaidAmount != 20_000 {
		t.Errorf("RepaidAmount = %d, want 20000", result.Loan.RepaidAmount)
	}
	if got := e.PoolLiquidity(); got != poolBefore+20_000 {
		t.Errorf("pool = %d, want %d", got, poolBefore+20_000)
	}
	// Collateral is not released on partial repayment.
	if got := len(e.rec.Credits()); got != settlements {
		t.Errorf("settlements = %d, want %d", got, settlements)
	}
}

func TestRepayExactRemaining(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.RequestLoan("id-1", 50_000, 30*day, 1, 75_000); err != nil {
		t.Fatalf("RequestLoan: %v", err)
	}
	if _, err := e.RepayLoan("id-1", 20_000); err != nil {
		t.Fatalf("partial: %v", err)
	}

	// remaining = 50410 - 20000
	result, err := e.RepayLoan("id-1", 30_410)
	if err != nil {
		t.Fatalf("RepayLoan: %v", err)
	}
	if !result.Settled {
		t.Fatal("exact payment not settled")
	}
	if result.Refund != 75_000 {
		t.Errorf("Refund = %d, want full collateral 75000", result.Refund)
	}
	if result.Interest != 410 {
		t.Errorf("Interest = %d, want 410", result.Interest)
	}
	if result.Loan.Status != models.LoanRepaid {
		t.Errorf("Status = %s, want repaid", result.Loan.Status)
	}
	if result.Loan.RepaidAmount != 50_410 {
		t.Errorf("RepaidAmount = %d, want 50410", result.Loan.RepaidAmount)
	}
	if got := e.rec.Total("acct-1"); got != 50_000+75_000 {
		t.Errorf("credited = %d, want disbursement plus collateral", got)
	}
	if got := e.Stats().InterestEarned; got != 410 {
		t.Errorf("InterestEarned = %d, want 410", got)
	}
}

func TestRepayOverpaymentRefundsExcess(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.RequestLoan("id-1", 50_000, 30*day, 1, 75_000); err != nil {
		t.Fatalf("RequestLoan: %v", err)
	}

	result, err := e.RepayLoan("id-1", 60_000)
	if err != nil {
		t.Fatalf("RepayLoan: %v", err)
	}
	// collateral + (payment - remaining) = 75000 + 9590
	if result.Refund != 84_590 {
		t.Errorf("Refund = %d, want 84590", result.Refund)
	}
}

func TestRepayReleaseFailureRollsBack(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.RequestLoan("id-1", 50_000, 30*day, 1, 75_000); err != nil {
		t.Fatalf("RequestLoan: %v", err)
	}
	poolBefore := e.PoolLiquidity()

	e.rec.FailWith(errors.New("provider down"))
	if _, err := e.RepayLoan("id-1", 50_410); !errors.Is(err, lederr.ErrTransferFailed) {
		t.Fatalf("RepayLoan err = %v, want ErrTransferFailed", err)
	}
	e.rec.FailWith(nil)

	details, ok := e.GetLoanDetails("id-1")
	if !ok || details.Status != models.LoanActive {
		t.Errorf("loan after rollback = %+v, want active", details)
	}
	if details.RepaidAmount != 0 {
		t.Errorf("RepaidAmount = %d, want 0", details.RepaidAmount)
	}
	if got := e.PoolLiquidity(); got != poolBefore {
		t.Errorf("pool = %d, want %d", got, poolBefore)
	}

	if result, err := e.RepayLoan("id-1", 50_410); err != nil || !result.Settled {
		t.Errorf("retry = (%+v, %v), want settled", result, err)
	}
}

func TestRepayNoActiveLoan(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.RepayLoan("id-1", 10_000); !errors.Is(err, lederr.ErrNoActiveLoan) {
		t.Errorf("RepayLoan err = %v, want ErrNoActiveLoan", err)
	}
}

func TestProcessDefault(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.ProcessDefault("id-1"); !errors.Is(err, lederr.ErrNoActiveLoan) {
		t.Errorf("ProcessDefault err = %v, want ErrNoActiveLoan", err)
	}

	if _, err := e.RequestLoan("id-1", 50_000, 30*day, 1, 75_000); err != nil {
		t.Fatalf("RequestLoan: %v", err)
	}
	if _, err := e.RepayLoan("id-1", 10_000); err != nil {
		t.Fatalf("partial: %v", err)
	}
	poolBefore := e.PoolLiquidity()

	// Not due at exactly start+duration.
	e.advance(30 * day)
	if _, err := e.ProcessDefault("id-1"); !errors.Is(err, lederr.ErrLoanNotDue) {
		t.Fatalf("at due boundary err = %v, want ErrLoanNotDue", err)
	}

	e.advance(1)
	defaulted, err := e.ProcessDefault("id-1")
	if err != nil {
		t.Fatalf("ProcessDefault: %v", err)
	}
	if defaulted.Status != models.LoanDefaulted {
		t.Errorf("Status = %s, want defaulted", defaulted.Status)
	}
	// Full collateral is seized despite the partial repayment, and
	// the repaid amount stays on the record for audit.
	if got := e.PoolLiquidity(); got != poolBefore+75_000 {
		t.Errorf("pool = %d, want %d", got, poolBefore+75_000)
	}
	if defaulted.RepaidAmount != 10_000 {
		t.Errorf("RepaidAmount = %d, want 10000", defaulted.RepaidAmount)
	}

	// Seizure happens exactly once.
	if _, err := e.ProcessDefault("id-1"); !errors.Is(err, lederr.ErrNoActiveLoan) {
		t.Errorf("second default err = %v, want ErrNoActiveLoan", err)
	}
	if got := e.PoolLiquidity(); got != poolBefore+75_000 {
		t.Errorf("pool after second attempt = %d", got)
	}
}

func TestNewLoanAfterTerminalState(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.RequestLoan("id-1", 50_000, 30*day, 1, 75_000); err != nil {
		t.Fatalf("RequestLoan: %v", err)
	}
	if _, err := e.RepayLoan("id-1", 50_410); err != nil {
		t.Fatalf("RepayLoan: %v", err)
	}

	if _, err := e.RequestLoan("id-1", 20_000, week, 1, 30_000); err != nil {
		t.Fatalf("loan after repaid: %v", err)
	}

	history := e.GetLoanHistory("id-1", 0, 10)
	if len(history) != 1 || history[0].Status != models.LoanRepaid {
		t.Errorf("history = %+v, want one repaid loan", history)
	}
}

func TestCheckEligibility(t *testing.T) {
	e := newTestEngine(t)

	if got := e.CheckEligibility("id-9"); got.Eligible || got.Reason != "identity not registered" {
		t.Errorf("unregistered = %+v", got)
	}

	if _, err := e.RequestLoan("id-1", 50_000, 30*day, 1, 75_000); err != nil {
		t.Fatalf("RequestLoan: %v", err)
	}
	if got := e.CheckEligibility("id-1"); got.Eligible || got.Reason != "active loan exists" {
		t.Errorf("active loan = %+v", got)
	}
	if got := e.CheckEligibility("id-2"); !got.Eligible {
		t.Errorf("id-2 = %+v, want eligible", got)
	}

	if err := e.RemoveLiquidity(950_000); err != nil {
		t.Fatalf("RemoveLiquidity: %v", err)
	}
	if got := e.CheckEligibility("id-2"); got.Eligible || got.Reason != "no pool liquidity" {
		t.Errorf("drained pool = %+v", got)
	}
}

func TestListOverdue(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.RequestLoan("id-1", 50_000, 30*day, 1, 75_000); err != nil {
		t.Fatalf("RequestLoan: %v", err)
	}
	if _, err := e.RequestLoan("id-2", 20_000, week, 1, 30_000); err != nil {
		t.Fatalf("RequestLoan: %v", err)
	}

	if got := e.ListOverdue(); len(got) != 0 {
		t.Errorf("overdue at start = %v", got)
	}
	e.advance(week + 1)
	overdue := e.ListOverdue()
	if len(overdue) != 1 || overdue[0] != "id-2" {
		t.Errorf("overdue = %v, want [id-2]", overdue)
	}
}

func TestLiquidityManagement(t *testing.T) {
	e := newTestEngine(t)

	if err := e.RemoveLiquidity(1_000_001); !errors.Is(err, lederr.ErrLiquidityExceedsBalance) {
		t.Errorf("over-withdraw err = %v, want ErrLiquidityExceedsBalance", err)
	}
	if err := e.AddLiquidity(0); !errors.Is(err, lederr.ErrInvalidAmount) {
		t.Errorf("zero deposit err = %v, want ErrInvalidAmount", err)
	}
	if err := e.RemoveLiquidity(1_000_000); err != nil {
		t.Fatalf("RemoveLiquidity: %v", err)
	}
	if got := e.PoolLiquidity(); got != 0 {
		t.Errorf("pool = %d, want 0", got)
	}
}

func TestUpdateCollateralRatioBounds(t *testing.T) {
	e := newTestEngine(t)

	if err := e.UpdateCollateralRatio(9_999); !errors.Is(err, lederr.ErrInvalidRatio) {
		t.Errorf("below bound err = %v, want ErrInvalidRatio", err)
	}
	if err := e.UpdateCollateralRatio(30_001); !errors.Is(err, lederr.ErrInvalidRatio) {
		t.Errorf("above bound err = %v, want ErrInvalidRatio", err)
	}
	if err := e.UpdateCollateralRatio(20_000); err != nil {
		t.Fatalf("UpdateCollateralRatio: %v", err)
	}
	if got := e.CalculateQuote(50_000, 30*day, 1).RequiredCollateral; got != 100_000 {
		t.Errorf("RequiredCollateral = %d, want 100000", got)
	}
}

func TestUpdateTierOverwrite(t *testing.T) {
	e := newTestEngine(t)

	updated := testTier()
	updated.InterestRateBps = 2000
	if err := e.UpdateTier(updated); err != nil {
		t.Fatalf("UpdateTier: %v", err)
	}
	if got := e.CalculateQuote(50_000, 30*day, 1).Interest; got != 821 {
		// floor(50000 * 2000bps * 30d / (365d * 10000)) = 821
		t.Errorf("Interest = %d, want 821", got)
	}

	if err := e.UpdateTier(models.LoanTier{TierID: 3, MinAmount: 10, MaxAmount: 5, MinDuration: day, MaxDuration: day}); !errors.Is(err, lederr.ErrInvalidTier) {
		t.Errorf("bad range err = %v, want ErrInvalidTier", err)
	}
}
