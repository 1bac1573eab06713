package server

import (
	"log/slog"
	"net/http"

	"github.com/voltledger/voltledger/pkg/log"
	"github.com/voltledger/voltledger/pkg/report"
)

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.report.ListDevices(r.Context(), s.getOwnerID(r))
	if err != nil {
		writeServiceError(w, r, err, "list devices")
		return
	}
	writeJSON(w, devices, http.StatusOK)
}

func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var in report.DeviceInput
	if err := decodeBody(w, r, &in); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to decode device", slog.Any("error", err))
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	created, err := s.report.CreateDevice(ctx, s.getOwnerID(r), in)
	if err != nil {
		writeServiceError(w, r, err, "create device")
		return
	}
	writeJSON(w, created, http.StatusCreated)
}
