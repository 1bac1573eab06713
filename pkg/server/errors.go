package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/voltledger/voltledger/pkg/log"
	"github.com/voltledger/voltledger/pkg/report"
	"github.com/voltledger/voltledger/pkg/storage"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

// writeServiceError maps a report error to a status code. Anything
// unrecognized is logged and hidden behind a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	ctx := r.Context()
	switch {
	case errors.Is(err, report.ErrInvalidDeviceToken):
		log.Ctx(ctx).WarnContext(ctx, "rejected device token", slog.Any("error", err))
		writeJSONError(w, "invalid device token", http.StatusUnauthorized)
	case errors.Is(err, report.ErrDeviceNotFound):
		writeJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, report.ErrDuplicateReading):
		writeJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, storage.ErrNotFound):
		writeJSONError(w, "not found", http.StatusNotFound)
	case errors.Is(err, report.ErrMalformedReading),
		errors.Is(err, report.ErrInvalidConfig),
		errors.Is(err, report.ErrInvalidRange),
		errors.Is(err, report.ErrSolarNotEnabled):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	default:
		log.Ctx(ctx).ErrorContext(ctx, "failed to "+action, slog.Any("error", err))
		writeJSONError(w, "failed to "+action, http.StatusInternalServerError)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// queryTime parses an RFC 3339 query parameter. A missing parameter is the
// zero time.
func queryTime(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: must be RFC 3339", name)
	}
	return t, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: must be an integer", name)
	}
	return n, nil
}

func queryBool(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: must be a boolean", name)
	}
	return b, nil
}

// parseRange reads from, to and limit for the range endpoints.
func parseRange(r *http.Request) (time.Time, time.Time, int, error) {
	from, err := queryTime(r, "from")
	if err != nil {
		return time.Time{}, time.Time{}, 0, err
	}
	to, err := queryTime(r, "to")
	if err != nil {
		return time.Time{}, time.Time{}, 0, err
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		return time.Time{}, time.Time{}, 0, err
	}
	return from, to, limit, nil
}
