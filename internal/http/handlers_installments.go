package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rroihans/dompetku-sub001/internal/core"
	"github.com/rroihans/dompetku-sub001/internal/services"
)

type convertRequest struct {
	TransactionID       int64   `json:"transactionId"`
	TenorMonths         int     `json:"tenorMonths"`
	ProductName         string  `json:"productName"`
	BankName            string  `json:"bankName"`
	AdminFeeType        string  `json:"adminFeeType"`
	AdminFeeValue       float64 `json:"adminFeeValue"`
	InterestRatePercent float64 `json:"interestRatePercent"`
	DueDay              int     `json:"dueDay"`
}

func (s *Server) handleConvertInstallment(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	// Flat fees cross the wire as decimal amounts; percentages pass as-is.
	feeValue := req.AdminFeeValue
	if core.AdminFeeType(req.AdminFeeType) == core.AdminFeeFlat {
		feeValue = float64(core.ToMinorUnits(req.AdminFeeValue))
	}

	plan, err := s.installments.ConvertToInstallment(r.Context(), services.ConvertRequest{
		TransactionID:       req.TransactionID,
		TenorMonths:         req.TenorMonths,
		ProductName:         req.ProductName,
		BankName:            req.BankName,
		AdminFeeType:        core.AdminFeeType(req.AdminFeeType),
		AdminFeeValue:       feeValue,
		InterestRatePercent: req.InterestRatePercent,
		DueDay:              req.DueDay,
	}, time.Now())
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}

	s.invalidatePayment(plan.CreditAccountID)
	NewJSONResponse().Status(http.StatusCreated).Body(toPlanJSON(*plan)).Write(w)
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	status := core.PlanStatus(r.URL.Query().Get("status"))
	switch status {
	case "", core.PlanActive, core.PlanPaidOff:
	default:
		BadRequestError("unknown plan status " + string(status)).Write(w)
		return
	}

	plans, err := s.installments.ListPlans(r.Context(), status)
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}

	out := make([]planJSON, 0, len(plans))
	for _, p := range plans {
		out = append(out, toPlanJSON(p))
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	plan, err := s.installments.GetPlan(r.Context(), id)
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(toPlanJSON(*plan)).Write(w)
}

func (s *Server) handlePayInstallment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	posted, err := s.installments.PayInstallment(r.Context(), id, time.Now())
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}

	s.invalidatePayment(posted.DebitAccountID, posted.CreditAccountID)
	NewJSONResponse().Status(http.StatusCreated).Body(toTransactionJSON(*posted)).Write(w)
}

func (s *Server) handleAcceleratedPayoff(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	posted, err := s.installments.AcceleratedPayoff(r.Context(), id, time.Now())
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}

	s.invalidatePayment(posted.DebitAccountID, posted.CreditAccountID)
	NewJSONResponse().Status(http.StatusCreated).Body(toTransactionJSON(*posted)).Write(w)
}

func (s *Server) handleDeletePlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	plan, err := s.installments.GetPlan(r.Context(), id)
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}

	if err := s.installments.DeletePlan(r.Context(), id); err != nil {
		DomainError(r, err).Write(w)
		return
	}

	s.invalidatePayment(plan.CreditAccountID)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	bank := r.PathValue("bank")
	tenor, err := strconv.Atoi(r.PathValue("tenor"))
	if err != nil || tenor < 1 {
		BadRequestError("invalid tenor " + r.PathValue("tenor")).Write(w)
		return
	}

	tmpl, err := s.installments.GetTemplate(r.Context(), bank, tenor)
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(toTemplateJSON(*tmpl)).Write(w)
}

func (s *Server) handleSaveTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateJSON
	if err := decodeJSON(r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	feeValue := req.AdminFeeValue
	if core.AdminFeeType(req.AdminFeeType) == core.AdminFeeFlat {
		feeValue = float64(core.ToMinorUnits(req.AdminFeeValue))
	}

	saved, err := s.installments.SaveTemplate(r.Context(), core.InstallmentTemplate{
		BankName:      req.BankName,
		TenorMonths:   req.TenorMonths,
		AdminFeeType:  core.AdminFeeType(req.AdminFeeType),
		AdminFeeValue: feeValue,
	})
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(toTemplateJSON(*saved)).Write(w)
}
