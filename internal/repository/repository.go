package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kwachapay/ledger-service/internal/models"
)

// Repository journals committed ledger state to postgres
type Repository struct {
	db *sql.DB
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// SaveIdentity upserts an identity row
func (r *Repository) SaveIdentity(identity *models.Identity) error {
	query := `
		INSERT INTO ledger.identities (id, owner_handle, secret_hash, created_at, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE
		SET owner_handle = EXCLUDED.owner_handle,
		    secret_hash = EXCLUDED.secret_hash,
		    updated_at = CURRENT_TIMESTAMP`
	_, err := r.db.Exec(query, identity.ID, identity.Owner, identity.SecretHash)
	if err != nil {
		return fmt.Errorf("failed to save identity: %w", err)
	}
	return nil
}

// LoadIdentities returns all journaled identities
func (r *Repository) LoadIdentities() ([]models.Identity, error) {
	query := `
		SELECT id, owner_handle, secret_hash, created_at, updated_at
		FROM ledger.identities`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to load identities: %w", err)
	}
	defer rows.Close()

	var out []models.Identity
	for rows.Next() {
		identity := models.Identity{Registered: true}
		if err := rows.Scan(&identity.ID, &identity.Owner, &identity.SecretHash,
			&identity.CreatedAt, &identity.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		out = append(out, identity)
	}
	return out, rows.Err()
}

// SaveTransfer appends a transfer record
func (r *Repository) SaveTransfer(record *models.TransferRecord) error {
	query := `
		INSERT INTO ledger.transfers (record_id, from_identity, to_identity, net_amount, fee, executed_at)
		VALUES ($1, $2, $3, $4, $5, to_timestamp($6))`
	_, err := r.db.Exec(query, record.RecordID, record.FromIdentity, record.ToIdentity,
		record.NetAmount, record.Fee, record.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to save transfer: %w", err)
	}
	return nil
}

// SaveLoan upserts a loan row
func (r *Repository) SaveLoan(loan *models.Loan) error {
	query := `
		INSERT INTO ledger.loans (loan_id, identity_id, principal, collateral, interest_rate_bps,
			start_time, duration_seconds, total_due, repaid_amount, status)
		VALUES ($1, $2, $3, $4, $5, to_timestamp($6), $7, $8, $9, $10)
		ON CONFLICT (loan_id) DO UPDATE
		SET repaid_amount = EXCLUDED.repaid_amount,
		    status = EXCLUDED.status`
	_, err := r.db.Exec(query, loan.LoanID, loan.IdentityID, loan.Principal, loan.Collateral,
		loan.InterestRateBps, loan.StartTime, loan.DurationSeconds, loan.TotalDue,
		loan.RepaidAmount, string(loan.Status))
	if err != nil {
		return fmt.Errorf("failed to save loan: %w", err)
	}
	return nil
}

// SaveEvent appends an event row
func (r *Repository) SaveEvent(event *models.Event) error {
	attrs, err := json.Marshal(event.Attrs)
	if err != nil {
		return fmt.Errorf("failed to marshal event attrs: %w", err)
	}
	query := `
		INSERT INTO ledger.events (seq, type, identity_id, amount, attrs, emitted_at)
		VALUES ($1, $2, $3, $4, $5, to_timestamp($6))`
	_, err = r.db.Exec(query, event.Seq, event.Type, event.IdentityID, event.Amount,
		attrs, event.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

// FindEventsByIdentity retrieves journaled events for one identity, newest first
func (r *Repository) FindEventsByIdentity(identityID string, limit int) ([]models.Event, error) {
	query := `
		SELECT seq, type, identity_id, amount, attrs, extract(epoch from emitted_at)::bigint
		FROM ledger.events
		WHERE identity_id = $1
		ORDER BY seq DESC
		LIMIT $2`
	rows, err := r.db.Query(query, identityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find events: %w", err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var event models.Event
		var attrs []byte
		if err := rows.Scan(&event.Seq, &event.Type, &event.IdentityID, &event.Amount,
			&attrs, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &event.Attrs); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event attrs: %w", err)
			}
		}
		out = append(out, event)
	}
	return out, rows.Err()
}
