package http

import (
	"net/http"
	"time"

	"github.com/rroihans/dompetku-sub001/internal/core"
)

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	typeFilter := core.AccountType(r.URL.Query().Get("type"))
	if typeFilter != "" && !typeFilter.Valid() {
		BadRequestError("unknown account type " + string(typeFilter)).Write(w)
		return
	}

	accounts, err := s.ledger.ListAccounts(r.Context(), typeFilter)
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}

	out := make([]accountJSON, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountJSON(a))
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	account, err := s.ledger.GetAccount(r.Context(), id)
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(toAccountJSON(*account)).Write(w)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	created, err := s.ledger.CreateAccount(r.Context(), req.toAccount())
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(toAccountJSON(*created)).Write(w)
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	var req accountRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	account := req.toAccount()
	account.ID = id
	updated, err := s.ledger.UpdateAccount(r.Context(), account)
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}

	s.invalidatePayment(id)
	NewJSONResponse().Body(toAccountJSON(*updated)).Write(w)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	if err := s.ledger.DeleteAccount(r.Context(), id); err != nil {
		DomainError(r, err).Write(w)
		return
	}

	s.invalidatePayment(id)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleRunningBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	asOf, err := queryDate(r.URL.Query(), "as_of")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if asOf.IsZero() {
		asOf = time.Now()
	} else {
		// Include the whole requested day.
		asOf = asOf.Add(24*time.Hour - time.Nanosecond)
	}

	balance, err := s.ledger.RunningBalanceAsOf(r.Context(), id, asOf)
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}

	NewJSONResponse().Body(map[string]any{
		"accountId": id,
		"asOf":      asOf.Format("2006-01-02"),
		"balance":   core.ToDecimal(balance),
	}).Write(w)
}

func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	entries, err := s.ledger.ListAuditLog(r.Context(), id)
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}

	out := make([]auditEntryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, toAuditEntryJSON(e))
	}
	NewJSONResponse().Body(out).Write(w)
}
