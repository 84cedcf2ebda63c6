package models

// Event types emitted on every committed mutation. The event log is the
// canonical way external collaborators rebuild per-identity views.
const (
	EventRegistered       = "Registered"
	EventSecretUpdated    = "SecretUpdated"
	EventOwnerReassigned  = "OwnerReassigned"
	EventTransferExecuted = "TransferExecuted"
	EventLoanRequested    = "LoanRequested"
	EventPartialRepayment = "PartialRepayment"
	EventLoanRepaid       = "LoanRepaid"
	EventLoanDefaulted    = "LoanDefaulted"
	EventFeeUpdated       = "FeeUpdated"
	EventLimitsUpdated    = "LimitsUpdated"
	EventLiquidityAdded   = "LiquidityAdded"
	EventLiquidityRemoved = "LiquidityRemoved"
	EventFeesWithdrawn    = "FeesWithdrawn"
	EventPaused           = "Paused"
	EventUnpaused         = "Unpaused"
)

// Event is one entry in the append-only event log.
type Event struct {
	Seq        int64             `json:"seq"`
	Type       string            `json:"type"`
	IdentityID string            `json:"identity_id,omitempty"`
	Amount     int64             `json:"amount,omitempty"`
	Attrs      map[string]string `json:"attrs,omitempty"`
	Timestamp  int64             `json:"timestamp"`
}
