package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rroihans/dompetku-sub001/internal/core"
	"github.com/rroihans/dompetku-sub001/internal/storage"
)

func (s *Server) handlePostTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	postedAt := time.Now()
	if req.PostedAt != "" {
		t, err := time.Parse("2006-01-02", req.PostedAt)
		if err != nil {
			BadRequestError("invalid postedAt date, want YYYY-MM-DD").Write(w)
			return
		}
		postedAt = t
	}

	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	entry := core.NewTransaction{
		PostedAt:        postedAt,
		Description:     req.Description,
		Category:        req.Category,
		Kind:            core.TransactionKind(req.Kind),
		Amount:          core.ToMinorUnits(req.Amount),
		DebitAccountID:  req.DebitAccountID,
		CreditAccountID: req.CreditAccountID,
		IdempotencyKey:  key,
	}

	posted, err := s.ledger.PostTransaction(r.Context(), entry)
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}

	s.invalidatePayment(posted.DebitAccountID, posted.CreditAccountID)
	NewJSONResponse().Status(http.StatusCreated).Body(toTransactionJSON(*posted)).Write(w)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	tx, err := s.ledger.GetTransaction(r.Context(), id)
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(toTransactionJSON(*tx)).Write(w)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from, err := queryDate(q, "from")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	to, err := queryDate(q, "to")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	kind := core.TransactionKind(q.Get("kind"))
	if kind != "" && !kind.Valid() {
		BadRequestError("unknown transaction kind " + string(kind)).Write(w)
		return
	}

	filter := storage.TransactionFilter{
		AccountID:       queryInt64(q, "account_id"),
		DebitAccountID:  queryInt64(q, "debit_account_id"),
		CreditAccountID: queryInt64(q, "credit_account_id"),
		From:            from,
		To:              to,
		Category:        q.Get("category"),
		Kind:            kind,
		Limit:           queryInt(q, "limit", 100),
		Offset:          queryInt(q, "offset", 0),
		SortAscending:   q.Get("sort") == "asc",
	}
	if v := q.Get("min_amount"); v != "" {
		minAmount, err := core.ParseDecimalToMinor(v)
		if err != nil {
			BadRequestError("invalid min_amount: " + err.Error()).Write(w)
			return
		}
		filter.MinAmount = minAmount
	}
	if v := q.Get("max_amount"); v != "" {
		maxAmount, err := core.ParseDecimalToMinor(v)
		if err != nil {
			BadRequestError("invalid max_amount: " + err.Error()).Write(w)
			return
		}
		filter.MaxAmount = maxAmount
	}

	txs, err := s.ledger.ListTransactions(r.Context(), filter)
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}

	out := make([]transactionJSON, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionJSON(t))
	}
	NewJSONResponse().Body(out).Write(w)
}
