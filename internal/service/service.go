// Package service is the command surface of the ledger core. It owns
// the registry, transfer ledger and loan engine, serializes mutating
// calls behind an exclusive busy guard, and appends an event to the
// canonical log for every committed change.
package service

import (
	"sync"
	"time"

	"github.com/kwachapay/ledger-service/internal/lederr"
	"github.com/kwachapay/ledger-service/internal/ledger"
	"github.com/kwachapay/ledger-service/internal/loan"
	"github.com/kwachapay/ledger-service/internal/models"
	"github.com/kwachapay/ledger-service/internal/registry"
	"github.com/sirupsen/logrus"
)

// Journal persists committed state. A nil journal disables persistence.
type Journal interface {
	SaveIdentity(identity *models.Identity) error
	SaveTransfer(record *models.TransferRecord) error
	SaveLoan(loan *models.Loan) error
	SaveEvent(event *models.Event) error
}

// Notifier receives out-of-band operational notices.
type Notifier interface {
	LoanDefaulted(loan models.Loan)
	FeesWithdrawn(to string, amount int64)
}

// Service handles the ledger command surface.
type Service struct {
	reg      *registry.Registry
	ledger   *ledger.Ledger
	loans    *loan.Engine
	journal  Journal
	notifier Notifier
	log      *logrus.Logger

	// busy is the per-operation exclusive guard: while a call's
	// external settlement is in flight no nested mutating call may
	// observe or touch state.
	busy sync.Mutex

	eventsMu sync.RWMutex
	events   []models.Event
	eventSeq int64
}

// New initializes the command surface over the given components.
func New(reg *registry.Registry, led *ledger.Ledger, loans *loan.Engine, journal Journal, log *logrus.Logger) *Service {
	return &Service{reg: reg, ledger: led, loans: loans, journal: journal, log: log}
}

// SetNotifier installs an operational notifier.
func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

func (s *Service) acquire() error {
	if !s.busy.TryLock() {
		return lederr.ErrBusy
	}
	return nil
}

func (s *Service) emit(eventType, identityID string, amount int64, attrs map[string]string) {
	s.eventsMu.Lock()
	s.eventSeq++
	event := models.Event{
		Seq:        s.eventSeq,
		Type:       eventType,
		IdentityID: identityID,
		Amount:     amount,
		Attrs:      attrs,
		Timestamp:  time.Now().Unix(),
	}
	s.events = append(s.events, event)
	s.eventsMu.Unlock()

	if s.journal != nil {
		if err := s.journal.SaveEvent(&event); err != nil {
			s.log.WithError(err).Warnf("Failed to journal event %s", eventType)
		}
	}
}

// Events returns committed events newest-first.
func (s *Service) Events(offset, limit int) []models.Event {
	s.eventsMu.RLock()
	defer s.eventsMu.RUnlock()
	if offset < 0 || limit <= 0 || offset >= len(s.events) {
		return []models.Event{}
	}
	out := make([]models.Event, 0, limit)
	for i := len(s.events) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.events[i])
	}
	return out
}

// Register binds a new identity.
func (s *Service) Register(caller, id, owner, secretHash string) (*models.Identity, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.busy.Unlock()

	identity, err := s.reg.Register(caller, id, owner, secretHash)
	if err != nil {
		return nil, err
	}
	if s.journal != nil {
		if err := s.journal.SaveIdentity(identity); err != nil {
			s.log.WithError(err).Warnf("Failed to journal identity %s", identity.ID)
		}
	}
	s.emit(models.EventRegistered, id, 0, map[string]string{"owner": owner})
	s.log.Infof("Identity registered: %s", id)
	return identity, nil
}

// Authenticate checks a candidate secret hash. Boolean-only on
// purpose: unregistered and wrong-secret are indistinguishable.
func (s *Service) Authenticate(id, candidateHash string) bool {
	return s.reg.Authenticate(id, candidateHash)
}

// Resolve returns the owner handle for id, or "".
func (s *Service) Resolve(id string) string { return s.reg.Resolve(id) }

// ReverseResolve returns the identity id for an owner handle, or "".
func (s *Service) ReverseResolve(owner string) string { return s.reg.ReverseResolve(owner) }

// UpdateSecret rotates an identity's secret hash.
func (s *Service) UpdateSecret(caller, id, newHash string) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.busy.Unlock()

	if err := s.reg.UpdateSecret(caller, id, newHash); err != nil {
		return err
	}
	s.emit(models.EventSecretUpdated, id, 0, nil)
	s.log.Infof("Secret updated: %s", id)
	return nil
}

// ReassignOwner rebinds an identity to a new owner handle.
func (s *Service) ReassignOwner(caller, id, newOwner string) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.busy.Unlock()

	if err := s.reg.ReassignOwner(caller, id, newOwner); err != nil {
		return err
	}
	s.emit(models.EventOwnerReassigned, id, 0, map[string]string{"owner": newOwner})
	s.log.Infof("Owner reassigned: %s", id)
	return nil
}

// GrantAuthorization adds a principal to the ACL. Owner-only.
func (s *Service) GrantAuthorization(caller, principal string) error {
	return s.reg.GrantAuthorization(caller, principal)
}

// RevokeAuthorization removes a principal from the ACL. Owner-only.
func (s *Service) RevokeAuthorization(caller, principal string) error {
	return s.reg.RevokeAuthorization(caller, principal)
}

// Transfer moves value between identities. The caller has already
// authenticated the sender against the registry.
func (s *Service) Transfer(caller, from, to string, value int64) (*models.TransferRecord, error) {
	if !s.reg.IsAuthorizedPrincipal(caller) {
		return nil, lederr.ErrNotAuthorized
	}
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.busy.Unlock()

	record, err := s.ledger.Transfer(from, to, value)
	if err != nil {
		return nil, err
	}
	if s.journal != nil {
		if err := s.journal.SaveTransfer(record); err != nil {
			s.log.WithError(err).Warnf("Failed to journal transfer %d", record.RecordID)
		}
	}
	s.emit(models.EventTransferExecuted, from, record.NetAmount, map[string]string{"to": to})
	s.log.Infof("Transfer %d: %s -> %s", record.RecordID, from, to)
	return record, nil
}

// GetHistory returns transfer records newest-first.
func (s *Service) GetHistory(id string, offset, limit int) []models.TransferRecord {
	return s.ledger.GetHistory(id, offset, limit)
}

// RequestLoan issues a loan against supplied collateral.
func (s *Service) RequestLoan(caller, id string, principal, duration int64, tierID int, collateral int64) (*models.Loan, error) {
	if !s.reg.IsAuthorizedPrincipal(caller) {
		return nil, lederr.ErrNotAuthorized
	}
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.busy.Unlock()

	if s.ledger.Paused() {
		return nil, lederr.ErrServiceSuspended
	}
	issued, err := s.loans.RequestLoan(id, principal, duration, tierID, collateral)
	if err != nil {
		return nil, err
	}
	s.journalLoan(issued)
	s.emit(models.EventLoanRequested, id, issued.Principal, nil)
	s.log.Infof("Loan %d issued to %s", issued.LoanID, id)
	return issued, nil
}

// RepayLoan applies a payment to the identity's active loan.
func (s *Service) RepayLoan(caller, id string, payment int64) (*loan.RepayResult, error) {
	if !s.reg.IsAuthorizedPrincipal(caller) {
		return nil, lederr.ErrNotAuthorized
	}
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.busy.Unlock()

	if s.ledger.Paused() {
		return nil, lederr.ErrServiceSuspended
	}
	result, err := s.loans.RepayLoan(id, payment)
	if err != nil {
		return nil, err
	}
	s.journalLoan(&result.Loan)
	if result.Settled {
		s.emit(models.EventLoanRepaid, id, payment, nil)
		s.log.Infof("Loan %d repaid by %s", result.Loan.LoanID, id)
	} else {
		s.emit(models.EventPartialRepayment, id, payment, nil)
		s.log.Infof("Partial repayment on loan %d by %s", result.Loan.LoanID, id)
	}
	return result, nil
}

// ProcessDefault seizes collateral on an overdue loan.
func (s *Service) ProcessDefault(caller, id string) (*models.Loan, error) {
	if !s.reg.IsAuthorizedPrincipal(caller) {
		return nil, lederr.ErrNotAuthorized
	}
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.busy.Unlock()

	if s.ledger.Paused() {
		return nil, lederr.ErrServiceSuspended
	}
	defaulted, err := s.loans.ProcessDefault(id)
	if err != nil {
		return nil, err
	}
	s.journalLoan(defaulted)
	s.emit(models.EventLoanDefaulted, id, defaulted.Collateral, nil)
	s.log.Warnf("Loan %d defaulted by %s", defaulted.LoanID, id)
	if s.notifier != nil {
		s.notifier.LoanDefaulted(*defaulted)
	}
	return defaulted, nil
}

func (s *Service) journalLoan(loan *models.Loan) {
	if s.journal == nil {
		return
	}
	if err := s.journal.SaveLoan(loan); err != nil {
		s.log.WithError(err).Warnf("Failed to journal loan %d", loan.LoanID)
	}
}

// CalculateLoanQuote prices a prospective loan.
func (s *Service) CalculateLoanQuote(principal, duration int64, tierID int) models.LoanQuote {
	return s.loans.CalculateQuote(principal, duration, tierID)
}

// CheckEligibility reports whether id could take a loan.
func (s *Service) CheckEligibility(id string) models.Eligibility {
	return s.loans.CheckEligibility(id)
}

// GetLoanDetails returns the identity's latest loan.
func (s *Service) GetLoanDetails(id string) (models.Loan, bool) {
	return s.loans.GetLoanDetails(id)
}

// GetLoanHistory returns terminal loans newest-first.
func (s *Service) GetLoanHistory(id string, offset, limit int) []models.Loan {
	return s.loans.GetLoanHistory(id, offset, limit)
}

// SweepDefaults processes every overdue active loan. Called by the
// scheduler; failures on individual loans are logged and skipped.
func (s *Service) SweepDefaults(caller string) int {
	processed := 0
	for _, id := range s.loans.ListOverdue() {
		if _, err := s.ProcessDefault(caller, id); err != nil {
			s.log.WithError(err).Warnf("Default sweep skipped %s", id)
			continue
		}
		processed++
	}
	return processed
}

// UpdateFee sets the transfer fee. Owner-only.
func (s *Service) UpdateFee(caller string, bps int64) error {
	if caller != s.reg.Owner() {
		return lederr.ErrNotOwner
	}
	if err := s.ledger.UpdateFee(bps); err != nil {
		return err
	}
	s.emit(models.EventFeeUpdated, "", bps, nil)
	s.log.Infof("Fee updated to %d bps", bps)
	return nil
}

// UpdateLimits sets transfer amount bounds and the daily cap. Owner-only.
func (s *Service) UpdateLimits(caller string, min, max, daily int64) error {
	if caller != s.reg.Owner() {
		return lederr.ErrNotOwner
	}
	if err := s.ledger.UpdateLimits(min, max, daily); err != nil {
		return err
	}
	s.emit(models.EventLimitsUpdated, "", 0, nil)
	s.log.Infof("Limits updated: min=%d max=%d daily=%d", min, max, daily)
	return nil
}

// WithdrawFees settles accumulated fees to a handle. Owner-only.
func (s *Service) WithdrawFees(caller, to string) (int64, error) {
	if caller != s.reg.Owner() {
		return 0, lederr.ErrNotOwner
	}
	if err := s.acquire(); err != nil {
		return 0, err
	}
	defer s.busy.Unlock()

	amount, err := s.ledger.WithdrawFees(to)
	if err != nil {
		return 0, err
	}
	s.emit(models.EventFeesWithdrawn, "", amount, map[string]string{"to": to})
	s.log.Infof("Fees withdrawn: %d to %s", amount, to)
	if s.notifier != nil {
		s.notifier.FeesWithdrawn(to, amount)
	}
	return amount, nil
}

// Pause suspends transfers and loan operations. Owner-only.
func (s *Service) Pause(caller string) error {
	if caller != s.reg.Owner() {
		return lederr.ErrNotOwner
	}
	s.ledger.Pause()
	s.emit(models.EventPaused, "", 0, nil)
	s.log.Warn("Service paused")
	return nil
}

// Unpause resumes operations. Owner-only.
func (s *Service) Unpause(caller string) error {
	if caller != s.reg.Owner() {
		return lederr.ErrNotOwner
	}
	s.ledger.Unpause()
	s.emit(models.EventUnpaused, "", 0, nil)
	s.log.Info("Service unpaused")
	return nil
}

// AddLiquidity deposits into the loan pool. Owner-only.
func (s *Service) AddLiquidity(caller string, amount int64) error {
	if caller != s.reg.Owner() {
		return lederr.ErrNotOwner
	}
	if err := s.loans.AddLiquidity(amount); err != nil {
		return err
	}
	s.emit(models.EventLiquidityAdded, "", amount, nil)
	s.log.Infof("Liquidity added: %d", amount)
	return nil
}

// RemoveLiquidity withdraws from the loan pool. Owner-only.
func (s *Service) RemoveLiquidity(caller string, amount int64) error {
	if caller != s.reg.Owner() {
		return lederr.ErrNotOwner
	}
	if err := s.loans.RemoveLiquidity(amount); err != nil {
		return err
	}
	s.emit(models.EventLiquidityRemoved, "", amount, nil)
	s.log.Infof("Liquidity removed: %d", amount)
	return nil
}

// UpdateTier installs or overwrites a loan tier. Owner-only.
func (s *Service) UpdateTier(caller string, tier models.LoanTier) error {
	if caller != s.reg.Owner() {
		return lederr.ErrNotOwner
	}
	if err := s.loans.UpdateTier(tier); err != nil {
		return err
	}
	s.log.Infof("Tier %d updated", tier.TierID)
	return nil
}

// UpdateCollateralRatio sets the required collateral ratio. Owner-only.
func (s *Service) UpdateCollateralRatio(caller string, bps int64) error {
	if caller != s.reg.Owner() {
		return lederr.ErrNotOwner
	}
	if err := s.loans.UpdateCollateralRatio(bps); err != nil {
		return err
	}
	s.log.Infof("Collateral ratio updated to %d bps", bps)
	return nil
}

// TransferStats returns aggregate transfer counters.
func (s *Service) TransferStats() models.TransferStats { return s.ledger.Stats() }

// LoanStats returns aggregate loan counters.
func (s *Service) LoanStats() models.LoanStats { return s.loans.Stats() }

// Tiers returns the configured loan tiers.
func (s *Service) Tiers() []models.LoanTier { return s.loans.Tiers() }
