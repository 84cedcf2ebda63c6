// Package lederr defines the ledger error taxonomy. Every mutating
// operation fails with exactly one of these sentinels; the transport
// layer maps the kind, never the message.
package lederr

import "errors"

// Kind classifies a failure for transport mapping.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuthorization
	KindValidation
	KindStateConflict
	KindResource
	KindSettlement
)

var (
	// Authorization
	ErrNotAuthorized = errors.New("caller not authorized")
	ErrNotOwner      = errors.New("owner-only operation")

	// Validation
	ErrInvalidOwner     = errors.New("invalid owner handle")
	ErrInvalidAmount    = errors.New("amount out of range")
	ErrSelfTransfer     = errors.New("self transfer not allowed")
	ErrInvalidTier      = errors.New("unknown or inactive tier")
	ErrInvalidDuration  = errors.New("duration out of tier range")
	ErrInvalidFee       = errors.New("fee exceeds cap")
	ErrInvalidLimits    = errors.New("min must be below max")
	ErrInvalidRatio     = errors.New("collateral ratio out of bounds")
	ErrServiceSuspended = errors.New("service suspended")

	// State conflict
	ErrAlreadyRegistered = errors.New("identity already registered")
	ErrDuplicateOwner    = errors.New("owner already bound to an identity")
	ErrNotRegistered     = errors.New("identity not registered")
	ErrRecipientUnknown  = errors.New("recipient not registered")
	ErrActiveLoanExists  = errors.New("active loan exists")
	ErrNoActiveLoan      = errors.New("no active loan")
	ErrLoanNotDue        = errors.New("loan not yet due")
	ErrBusy              = errors.New("operation in progress")

	// Resource
	ErrDailyLimitExceeded      = errors.New("daily limit exceeded")
	ErrInsufficientLiquidity   = errors.New("insufficient pool liquidity")
	ErrInsufficientCollateral  = errors.New("insufficient collateral")
	ErrNoFeesToWithdraw        = errors.New("no fees to withdraw")
	ErrLiquidityExceedsBalance = errors.New("withdrawal exceeds available liquidity")

	// Settlement
	ErrTransferFailed = errors.New("external settlement failed")
)

var kinds = map[error]Kind{
	ErrNotAuthorized: KindAuthorization,
	ErrNotOwner:      KindAuthorization,

	ErrInvalidOwner:     KindValidation,
	ErrInvalidAmount:    KindValidation,
	ErrSelfTransfer:     KindValidation,
	ErrInvalidTier:      KindValidation,
	ErrInvalidDuration:  KindValidation,
	ErrInvalidFee:       KindValidation,
	ErrInvalidLimits:    KindValidation,
	ErrInvalidRatio:     KindValidation,
	ErrServiceSuspended: KindValidation,

	ErrAlreadyRegistered: KindStateConflict,
	ErrDuplicateOwner:    KindStateConflict,
	ErrNotRegistered:     KindStateConflict,
	ErrRecipientUnknown:  KindStateConflict,
	ErrActiveLoanExists:  KindStateConflict,
	ErrNoActiveLoan:      KindStateConflict,
	ErrLoanNotDue:        KindStateConflict,
	ErrBusy:              KindStateConflict,

	ErrDailyLimitExceeded:      KindResource,
	ErrInsufficientLiquidity:   KindResource,
	ErrInsufficientCollateral:  KindResource,
	ErrNoFeesToWithdraw:        KindResource,
	ErrLiquidityExceedsBalance: KindResource,

	ErrTransferFailed: KindSettlement,
}

// KindOf reports the taxonomy kind of err, unwrapping as needed.
func KindOf(err error) Kind {
	for sentinel, kind := range kinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindUnknown
}
