package models

// TransferRecord is an immutable entry in the transfer history.
// Amounts are int64 base units of the settlement currency.
type TransferRecord struct {
	RecordID     int64  `json:"record_id"`
	FromIdentity string `json:"from_identity"`
	ToIdentity   string `json:"to_identity"`
	NetAmount    int64  `json:"net_amount"`
	Fee          int64  `json:"fee"`
	Timestamp    int64  `json:"timestamp"` // unix seconds
}

// TransferStats aggregates ledger activity since boot.
type TransferStats struct {
	TotalTransfers int64 `json:"total_transfers"`
	TotalVolume    int64 `json:"total_volume"` // gross, fee included
	TotalFees      int64 `json:"total_fees"`   // accrued, withdrawable
}
