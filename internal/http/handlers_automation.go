package http

import (
	"net/http"
	"time"
)

func (s *Server) handleAdminFees(w http.ResponseWriter, r *http.Request) {
	dryRun := queryBool(r.URL.Query(), "dry_run")

	result, err := s.automation.ProcessMonthlyAdminFees(r.Context(), time.Now(), dryRun)
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}

	NewJSONResponse().Body(toAutomationResultJSON(*result)).Write(w)
}

func (s *Server) handleInterest(w http.ResponseWriter, r *http.Request) {
	dryRun := queryBool(r.URL.Query(), "dry_run")

	result, err := s.automation.ProcessMonthlyInterest(r.Context(), time.Now(), dryRun)
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(toAutomationResultJSON(*result)).Write(w)
}
