package server

import (
	"net/http"
)

func (s *Server) handleTariffCalculate(w http.ResponseWriter, r *http.Request) {
	calc, err := s.report.TariffCalculation(r.Context(), s.getOwnerID(r))
	if err != nil {
		writeServiceError(w, r, err, "calculate tariff")
		return
	}
	writeJSON(w, calc, http.StatusOK)
}

func (s *Server) handleMonthlyReports(w http.ResponseWriter, r *http.Request) {
	reevaluate, err := queryBool(r, "reevaluate")
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	reports, err := s.report.MonthlyReports(r.Context(), s.getOwnerID(r), reevaluate)
	if err != nil {
		writeServiceError(w, r, err, "build monthly reports")
		return
	}
	writeJSON(w, reports, http.StatusOK)
}

func (s *Server) handleSolarStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.report.SolarStatus(r.Context(), s.getOwnerID(r))
	if err != nil {
		writeServiceError(w, r, err, "get solar status")
		return
	}
	writeJSON(w, status, http.StatusOK)
}

func (s *Server) handleSolarHistory(w http.ResponseWriter, r *http.Request) {
	from, to, limit, err := parseRange(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	points, err := s.report.SolarHistory(r.Context(), s.getOwnerID(r), from, to, limit)
	if err != nil {
		writeServiceError(w, r, err, "get solar history")
		return
	}
	writeJSON(w, points, http.StatusOK)
}
