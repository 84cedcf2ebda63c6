// Package ledger moves value between registered identities. Every
// transfer deducts a basis-point fee, respects per-identity daily
// caps, settles the net amount externally and records history — all
// as one atomic unit: a settlement failure leaves no trace.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/kwachapay/ledger-service/internal/lederr"
	"github.com/kwachapay/ledger-service/internal/models"
	"github.com/sirupsen/logrus"
)

// Resolver is the read interface the ledger needs from the registry.
type Resolver interface {
	Resolve(id string) string
	IsRegistered(id string) bool
}

// Settler delivers funds to an owner handle. Implementations must be
// synchronous; an error means no funds moved.
type Settler interface {
	Credit(ownerHandle string, amount int64, reference string) error
}

// Params are the tunable transfer parameters.
type Params struct {
	FeeBps     int64
	MinAmount  int64
	MaxAmount  int64
	DailyLimit int64
}

// MaxFeeBps caps the transfer fee at 5%.
const MaxFeeBps = 500

const secondsPerDay = 86400

type dayKey struct {
	identity string
	day      int64
}

// Ledger is the transfer accounting engine.
type Ledger struct {
	mu      sync.RWMutex
	reg     Resolver
	settler Settler
	log     *logrus.Logger

	params Params
	paused bool

	accumulatedFees int64
	nextRecordID    int64
	histories       map[string][]*models.TransferRecord // oldest first
	global          []*models.TransferRecord
	daily           map[dayKey]int64
	stats           models.TransferStats

	nowFn func() time.Time
}

// New creates a ledger over the given registry view and settler.
func New(reg Resolver, settler Settler, params Params, log *logrus.Logger) *Ledger {
	return &Ledger{
		reg:          reg,
		settler:      settler,
		log:          log,
		params:       params,
		nextRecordID: 1,
		histories:    make(map[string][]*models.TransferRecord),
		daily:        make(map[dayKey]int64),
		nowFn:        time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (l *Ledger) SetClock(now func() time.Time) { l.nowFn = now }

// Transfer moves value from one identity to another. The caller has
// already authenticated the sender against the registry. Validation
// runs in a fixed order and the first failing check wins; on success
// the net amount is settled to the recipient's owner handle before
// any state is written, so a settlement failure rolls back everything.
func (l *Ledger) Transfer(from, to string, value int64) (*models.TransferRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if value < l.params.MinAmount || value > l.params.MaxAmount {
		return nil, lederr.ErrInvalidAmount
	}
	if from == to {
		return nil, lederr.ErrSelfTransfer
	}
	if !l.reg.IsRegistered(to) {
		return nil, lederr.ErrRecipientUnknown
	}

	now := l.nowFn()
	key := dayKey{identity: from, day: now.Unix() / secondsPerDay}
	if l.daily[key]+value > l.params.DailyLimit {
		return nil, lederr.ErrDailyLimitExceeded
	}
	if l.paused {
		return nil, lederr.ErrServiceSuspended
	}

	fee := value * l.params.FeeBps / 10000
	net := value - fee

	recordID := l.nextRecordID
	reference := fmt.Sprintf("txn-%d", recordID)
	if err := l.settler.Credit(l.reg.Resolve(to), net, reference); err != nil {
		l.log.WithError(err).Warnf("Settlement failed for %s", reference)
		return nil, fmt.Errorf("%w: %v", lederr.ErrTransferFailed, err)
	}

	record := &models.TransferRecord{
		RecordID:     recordID,
		FromIdentity: from,
		ToIdentity:   to,
		NetAmount:    net,
		Fee:          fee,
		Timestamp:    now.Unix(),
	}
	l.nextRecordID++
	l.accumulatedFees += fee
	l.histories[from] = append(l.histories[from], record)
	l.histories[to] = append(l.histories[to], record)
	l.global = append(l.global, record)
	l.daily[key] += value
	l.stats.TotalTransfers++
	l.stats.TotalVolume += value
	l.stats.TotalFees += fee

	return record, nil
}

// GetHistory returns the identity's transfer records newest-first.
// Unknown ids and out-of-range offsets yield an empty slice.
func (l *Ledger) GetHistory(id string, offset, limit int) []models.TransferRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	history := l.histories[id]
	if offset < 0 || limit <= 0 || offset >= len(history) {
		return []models.TransferRecord{}
	}

	out := make([]models.TransferRecord, 0, limit)
	for i := len(history) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, *history[i])
	}
	return out
}

// DailyOutbound returns the identity's cumulative outbound amount for
// the current day bucket.
func (l *Ledger) DailyOutbound(id string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.daily[dayKey{identity: id, day: l.nowFn().Unix() / secondsPerDay}]
}

// Stats returns aggregate ledger counters.
func (l *Ledger) Stats() models.TransferStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats
}

// AccumulatedFees returns the withdrawable fee balance.
func (l *Ledger) AccumulatedFees() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.accumulatedFees
}

// Params returns the current transfer parameters.
func (l *Ledger) Params() Params {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.params
}

// Paused reports whether transfers are suspended.
func (l *Ledger) Paused() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.paused
}

// UpdateFee sets the transfer fee, capped at MaxFeeBps.
func (l *Ledger) UpdateFee(bps int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if bps < 0 || bps > MaxFeeBps {
		return lederr.ErrInvalidFee
	}
	l.params.FeeBps = bps
	return nil
}

// UpdateLimits sets min/max transfer amounts and the daily cap.
func (l *Ledger) UpdateLimits(min, max, daily int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if min < 0 || min >= max {
		return lederr.ErrInvalidLimits
	}
	l.params.MinAmount = min
	l.params.MaxAmount = max
	l.params.DailyLimit = daily
	return nil
}

// WithdrawFees settles the accumulated fees to the given handle and
// zeroes the balance. The settlement is part of the same atomic unit.
func (l *Ledger) WithdrawFees(to string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.accumulatedFees == 0 {
		return 0, lederr.ErrNoFeesToWithdraw
	}
	amount := l.accumulatedFees
	if err := l.settler.Credit(to, amount, "fee-withdrawal"); err != nil {
		return 0, fmt.Errorf("%w: %v", lederr.ErrTransferFailed, err)
	}
	l.accumulatedFees = 0
	return amount, nil
}

// Pause suspends transfers.
func (l *Ledger) Pause() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paused = true
}

// Unpause resumes transfers.
func (l *Ledger) Unpause() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paused = false
}
