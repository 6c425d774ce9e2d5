package http

import (
	"net/http"
	"time"

	"github.com/rroihans/dompetku-sub001/internal/cache"
	"github.com/rroihans/dompetku-sub001/internal/core"
	"github.com/rroihans/dompetku-sub001/internal/services"
)

func (s *Server) handleCalculatePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	now := time.Now()
	key := cache.PaymentKey(id, now)
	if calc, ok := s.paymentCache.Get(key); ok {
		NewJSONResponse().Header("X-Cache", "hit").Body(toPaymentCalculationJSON(calc)).Write(w)
		return
	}

	calc, err := s.creditCards.CalculatePayment(r.Context(), id, now)
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}

	s.paymentCache.Set(key, *calc)
	NewJSONResponse().Body(toPaymentCalculationJSON(*calc)).Write(w)
}

type payBillRequest struct {
	SourceAccountID int64   `json:"sourceAccountId"`
	Amount          float64 `json:"amount"`
	Type            string  `json:"type"`
}

func (s *Server) handlePayBill(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	var req payBillRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	now := time.Now()
	paymentType := services.PaymentType(req.Type)
	if paymentType == "" {
		paymentType = services.PaymentCustom
	}

	amount := core.ToMinorUnits(req.Amount)

	// FULL and MINIMUM resolve the amount from the current bill, so the
	// caller does not need to echo a figure back.
	switch paymentType {
	case services.PaymentFull, services.PaymentMinimum:
		calc, err := s.creditCards.CalculatePayment(r.Context(), id, now)
		if err != nil {
			DomainError(r, err).Write(w)
			return
		}
		if !calc.IsValid {
			ErrorResponse(http.StatusUnprocessableEntity, calc.ValidationMessage).Write(w)
			return
		}
		if paymentType == services.PaymentFull {
			amount = calc.FullPayment
		} else {
			amount = calc.MinimumPayment
		}
	case services.PaymentCustom:
	default:
		BadRequestError("unknown payment type " + req.Type).Write(w)
		return
	}

	posted, err := s.creditCards.PayBill(r.Context(), services.PayBillRequest{
		AccountID:       id,
		SourceAccountID: req.SourceAccountID,
		Amount:          amount,
		Type:            paymentType,
	}, now)
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}

	s.invalidatePayment(posted.DebitAccountID, posted.CreditAccountID)
	NewJSONResponse().Status(http.StatusCreated).Body(toTransactionJSON(*posted)).Write(w)
}
