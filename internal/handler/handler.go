package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/kwachapay/ledger-service/internal/lederr"
	"github.com/kwachapay/ledger-service/internal/middleware"
	"github.com/kwachapay/ledger-service/internal/models"
	"github.com/kwachapay/ledger-service/internal/service"
)

// maxPageLimit bounds history page sizes at the HTTP boundary; the
// core itself accepts any limit.
const maxPageLimit = 100

type Handler struct {
	svc *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch lederr.KindOf(err) {
	case lederr.KindAuthorization:
		status = http.StatusForbidden
	case lederr.KindValidation:
		status = http.StatusBadRequest
	case lederr.KindStateConflict:
		status = http.StatusConflict
	case lederr.KindResource:
		status = http.StatusUnprocessableEntity
	case lederr.KindSettlement:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func paging(r *http.Request) (offset, limit int) {
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > maxPageLimit {
		limit = maxPageLimit
	}
	return offset, limit
}

// Register handles identity registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IdentityID string `json:"identity_id"`
		Owner      string `json:"owner"`
		SecretHash string `json:"secret_hash"`
	}
	if !decode(w, r, &req) {
		return
	}
	identity, err := h.svc.Register(middleware.Principal(r.Context()), req.IdentityID, req.Owner, req.SecretHash)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, identity)
}

// Authenticate handles secret verification. The answer is boolean
// only; unknown identity and wrong secret are indistinguishable.
func (h *Handler) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IdentityID string `json:"identity_id"`
		SecretHash string `json:"secret_hash"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": h.svc.Authenticate(req.IdentityID, req.SecretHash)})
}

// UpdateSecret handles secret rotation
func (h *Handler) UpdateSecret(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IdentityID string `json:"identity_id"`
		NewHash    string `json:"new_hash"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.UpdateSecret(middleware.Principal(r.Context()), req.IdentityID, req.NewHash); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// ReassignOwner handles the recovery path
func (h *Handler) ReassignOwner(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IdentityID string `json:"identity_id"`
		NewOwner   string `json:"new_owner"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.ReassignOwner(middleware.Principal(r.Context()), req.IdentityID, req.NewOwner); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reassigned"})
}

// Resolve returns the owner handle bound to an identity
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	writeJSON(w, http.StatusOK, map[string]string{"identity_id": id, "owner": h.svc.Resolve(id)})
}

// Transfer handles value movement
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From  string `json:"from"`
		To    string `json:"to"`
		Value int64  `json:"value"`
	}
	if !decode(w, r, &req) {
		return
	}
	record, err := h.svc.Transfer(middleware.Principal(r.Context()), req.From, req.To, req.Value)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// History returns an identity's transfer records, newest first
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	offset, limit := paging(r)
	writeJSON(w, http.StatusOK, h.svc.GetHistory(mux.Vars(r)["id"], offset, limit))
}

// RequestLoan handles loan issuance
func (h *Handler) RequestLoan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IdentityID string `json:"identity_id"`
		Principal  int64  `json:"principal"`
		Duration   int64  `json:"duration_seconds"`
		TierID     int    `json:"tier_id"`
		Collateral int64  `json:"collateral"`
	}
	if !decode(w, r, &req) {
		return
	}
	loan, err := h.svc.RequestLoan(middleware.Principal(r.Context()), req.IdentityID,
		req.Principal, req.Duration, req.TierID, req.Collateral)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

// RepayLoan handles loan repayment
func (h *Handler) RepayLoan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IdentityID string `json:"identity_id"`
		Payment    int64  `json:"payment"`
	}
	if !decode(w, r, &req) {
		return
	}
	result, err := h.svc.RepayLoan(middleware.Principal(r.Context()), req.IdentityID, req.Payment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ProcessDefault handles collateral seizure on an overdue loan
func (h *Handler) ProcessDefault(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IdentityID string `json:"identity_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	loan, err := h.svc.ProcessDefault(middleware.Principal(r.Context()), req.IdentityID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

// LoanQuote prices a prospective loan
func (h *Handler) LoanQuote(w http.ResponseWriter, r *http.Request) {
	principal, _ := strconv.ParseInt(r.URL.Query().Get("principal"), 10, 64)
	duration, _ := strconv.ParseInt(r.URL.Query().Get("duration"), 10, 64)
	tierID, _ := strconv.Atoi(r.URL.Query().Get("tier_id"))
	writeJSON(w, http.StatusOK, h.svc.CalculateLoanQuote(principal, duration, tierID))
}

// Eligibility reports whether an identity could take a loan
func (h *Handler) Eligibility(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.CheckEligibility(mux.Vars(r)["id"]))
}

// LoanDetails returns the identity's latest loan
func (h *Handler) LoanDetails(w http.ResponseWriter, r *http.Request) {
	loan, ok := h.svc.GetLoanDetails(mux.Vars(r)["id"])
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"status": string(models.LoanNone)})
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

// LoanHistory returns an identity's terminal loans, newest first
func (h *Handler) LoanHistory(w http.ResponseWriter, r *http.Request) {
	offset, limit := paging(r)
	writeJSON(w, http.StatusOK, h.svc.GetLoanHistory(mux.Vars(r)["id"], offset, limit))
}

// Events returns committed events, newest first
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	offset, limit := paging(r)
	writeJSON(w, http.StatusOK, h.svc.Events(offset, limit))
}

// Stats returns aggregate counters
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transfers": h.svc.TransferStats(),
		"loans":     h.svc.LoanStats(),
	})
}

// UpdateFee sets the transfer fee
func (h *Handler) UpdateFee(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Bps int64 `json:"bps"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.UpdateFee(middleware.Principal(r.Context()), req.Bps); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// UpdateLimits sets transfer bounds and the daily cap
func (h *Handler) UpdateLimits(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Min   int64 `json:"min"`
		Max   int64 `json:"max"`
		Daily int64 `json:"daily"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.UpdateLimits(middleware.Principal(r.Context()), req.Min, req.Max, req.Daily); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// WithdrawFees settles accumulated fees to a handle
func (h *Handler) WithdrawFees(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To string `json:"to"`
	}
	if !decode(w, r, &req) {
		return
	}
	amount, err := h.svc.WithdrawFees(middleware.Principal(r.Context()), req.To)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"amount": amount})
}

// Pause suspends transfers and loan operations
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Pause(middleware.Principal(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

// Unpause resumes operations
func (h *Handler) Unpause(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Unpause(middleware.Principal(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unpaused"})
}

// AddLiquidity deposits into the loan pool
func (h *Handler) AddLiquidity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int64 `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.AddLiquidity(middleware.Principal(r.Context()), req.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "added"})
}

// RemoveLiquidity withdraws from the loan pool
func (h *Handler) RemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int64 `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.RemoveLiquidity(middleware.Principal(r.Context()), req.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// UpdateTier installs or overwrites a loan tier
func (h *Handler) UpdateTier(w http.ResponseWriter, r *http.Request) {
	var tier models.LoanTier
	if !decode(w, r, &tier) {
		return
	}
	if err := h.svc.UpdateTier(middleware.Principal(r.Context()), tier); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// UpdateCollateralRatio sets the required collateral ratio
func (h *Handler) UpdateCollateralRatio(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Bps int64 `json:"bps"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.UpdateCollateralRatio(middleware.Principal(r.Context()), req.Bps); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// GrantAuthorization adds a principal to the ACL
func (h *Handler) GrantAuthorization(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Principal string `json:"principal"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.GrantAuthorization(middleware.Principal(r.Context()), req.Principal); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "granted"})
}

// RevokeAuthorization removes a principal from the ACL
func (h *Handler) RevokeAuthorization(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Principal string `json:"principal"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.RevokeAuthorization(middleware.Principal(r.Context()), req.Principal); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}
