package server

import (
	"log/slog"
	"net/http"

	"github.com/voltledger/voltledger/pkg/log"
	"github.com/voltledger/voltledger/pkg/types"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.report.GetSettings(r.Context(), s.getOwnerID(r))
	if err != nil {
		writeServiceError(w, r, err, "get settings")
		return
	}
	writeJSON(w, settings, http.StatusOK)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var settings types.UserSettings
	if err := decodeBody(w, r, &settings); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to decode settings", slog.Any("error", err))
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	saved, err := s.report.UpdateSettings(ctx, s.getOwnerID(r), settings)
	if err != nil {
		writeServiceError(w, r, err, "update settings")
		return
	}
	writeJSON(w, saved, http.StatusOK)
}

func (s *Server) handleGetSolarConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.report.GetSolarConfig(r.Context(), s.getOwnerID(r))
	if err != nil {
		writeServiceError(w, r, err, "get solar config")
		return
	}
	writeJSON(w, cfg, http.StatusOK)
}

func (s *Server) handleUpdateSolarConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var cfg types.SolarConfig
	if err := decodeBody(w, r, &cfg); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to decode solar config", slog.Any("error", err))
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	saved, err := s.report.UpdateSolarConfig(ctx, s.getOwnerID(r), cfg)
	if err != nil {
		writeServiceError(w, r, err, "update solar config")
		return
	}
	writeJSON(w, saved, http.StatusOK)
}
