package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/levenlabs/go-lflag"
	"github.com/voltledger/voltledger/pkg/log"
	"github.com/voltledger/voltledger/pkg/report"
)

const authTokenCookie = "auth_token"

type contextKey string

const ownerIDContextKey contextKey = "ownerID"

// tokenVerifier validates an OIDC ID token.
type tokenVerifier func(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)

// Server is the JSON API in front of the report service.
type Server struct {
	report *report.Service

	listenAddr string
	httpServer *http.Server

	verifier   tokenVerifier
	devOwnerID string
	serverName string
}

// Configured registers the server flags and returns a Server that is usable
// once flags are parsed.
func Configured(svc *report.Service) *Server {
	srv := &Server{
		report:     svc,
		serverName: "voltledger",
	}
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	oidcIssuer := lflag.String("oidc-issuer", "https://accounts.google.com", "Issuer URL of the OIDC provider that signs owner ID tokens")
	oidcAudience := lflag.String("oidc-audience", "", "Client ID that owner ID tokens must be issued for. Empty disables authentication")
	devOwnerID := lflag.String("dev-owner-id", "dev", "Owner ID used for every request when oidc-audience is empty")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		if *oidcAudience == "" {
			srv.devOwnerID = *devOwnerID
			log.Ctx(context.Background()).Warn("oidc-audience not set, authenticating every request as the dev owner", slog.String("ownerID", srv.devOwnerID))
			return
		}
		provider, err := oidc.NewProvider(context.Background(), *oidcIssuer)
		if err != nil {
			log.Ctx(context.Background()).Error("failed to initialize OIDC provider", slog.String("issuer", *oidcIssuer), slog.Any("error", err))
			os.Exit(1)
		}
		srv.verifier = provider.Verifier(&oidc.Config{ClientID: *oidcAudience}).Verify
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/telemetry/range", s.handleTelemetryRange)
	apiMux.HandleFunc("GET /api/telemetry/latest", s.handleTelemetryLatest)
	apiMux.HandleFunc("GET /api/telemetry/today", s.handleTelemetryToday)
	apiMux.HandleFunc("GET /api/tariff/calculate", s.handleTariffCalculate)
	apiMux.HandleFunc("GET /api/reports/monthly", s.handleMonthlyReports)
	apiMux.HandleFunc("GET /api/solar/status", s.handleSolarStatus)
	apiMux.HandleFunc("GET /api/solar/history", s.handleSolarHistory)
	apiMux.HandleFunc("GET /api/solar/config", s.handleGetSolarConfig)
	apiMux.HandleFunc("PUT /api/solar/config", s.handleUpdateSolarConfig)
	apiMux.HandleFunc("GET /api/settings", s.handleGetSettings)
	apiMux.HandleFunc("PUT /api/settings", s.handleUpdateSettings)
	apiMux.HandleFunc("GET /api/devices", s.handleListDevices)
	apiMux.HandleFunc("POST /api/devices", s.handleCreateDevice)

	mux := http.NewServeMux()
	// devices authenticate with their own token, not an owner session
	mux.HandleFunc("POST /api/telemetry/ingest", s.handleIngest)
	mux.Handle("/api/", s.authMiddleware(apiMux))
	mux.HandleFunc("/healthz", s.handleHealthz)
	return s.revisionMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(requestLogMiddleware(mux))))
}

func (s *Server) getOwnerID(r *http.Request) string {
	if ownerID, ok := r.Context().Value(ownerIDContextKey).(string); ok {
		return ownerID
	}
	// we want to have a stack trace when this happens
	panic("no ownerID in context")
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSON(w http.ResponseWriter, v any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}
