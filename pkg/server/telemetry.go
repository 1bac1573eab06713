package server

import (
	"log/slog"
	"net/http"

	"github.com/voltledger/voltledger/pkg/log"
	"github.com/voltledger/voltledger/pkg/report"
)

const deviceTokenHeader = "X-Device-Token"

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var in report.ReadingInput
	if err := decodeBody(w, r, &in); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to decode reading", slog.Any("error", err))
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	reading, err := s.report.IngestReading(ctx, r.Header.Get(deviceTokenHeader), in)
	if err != nil {
		writeServiceError(w, r, err, "ingest reading")
		return
	}
	writeJSON(w, reading, http.StatusCreated)
}

func (s *Server) handleTelemetryRange(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		writeJSONError(w, "device_id is required", http.StatusBadRequest)
		return
	}
	from, to, limit, err := parseRange(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	readings, err := s.report.TelemetryRange(r.Context(), s.getOwnerID(r), deviceID, from, to, limit)
	if err != nil {
		writeServiceError(w, r, err, "get readings")
		return
	}
	writeJSON(w, readings, http.StatusOK)
}

func (s *Server) handleTelemetryLatest(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		writeJSONError(w, "device_id is required", http.StatusBadRequest)
		return
	}
	reading, err := s.report.LatestReading(r.Context(), s.getOwnerID(r), deviceID)
	if err != nil {
		writeServiceError(w, r, err, "get latest reading")
		return
	}
	writeJSON(w, reading, http.StatusOK)
}

func (s *Server) handleTelemetryToday(w http.ResponseWriter, r *http.Request) {
	summary, err := s.report.TodaySummary(r.Context(), s.getOwnerID(r), r.URL.Query().Get("device_id"))
	if err != nil {
		writeServiceError(w, r, err, "summarize today")
		return
	}
	writeJSON(w, summary, http.StatusOK)
}
