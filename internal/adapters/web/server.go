// Package web exposes the workflow/compliance status of tracked assets to
// the remediation UI and ticketing integration, plus the metrics endpoint.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lcalzada-xor/vmtrack/internal/core/domain"
	"github.com/lcalzada-xor/vmtrack/internal/core/ports"
)

// Server serves the read-mostly status API. The store is the single source
// of truth; the server performs no ingestion.
type Server struct {
	store  ports.Store
	router *mux.Router
	http   *http.Server
}

// NewServer creates the status API server bound to addr.
func NewServer(addr string, store ports.Store) *Server {
	s := &Server{store: store, router: mux.NewRouter()}
	s.routes()
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/assets", s.handleAssets).Methods(http.MethodGet)
	api.HandleFunc("/assets/{id:[0-9]+}/workflow", s.handleWorkflow).Methods(http.MethodGet)
	api.HandleFunc("/assets/{id:[0-9]+}/compliance", s.handleCompliance).Methods(http.MethodGet)
	api.HandleFunc("/workflow/{id:[0-9]+}/status", s.handleSetStatus).Methods(http.MethodPost)
	s.router.Handle("/metrics", promhttp.Handler())
}

// Handler returns the traced root handler. Every request span is named
// after the server, with the route recorded by the instrumentation.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "vmtrack-api")
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("status API listening", "addr", s.http.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := s.store.Assets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	type assetView struct {
		ID         int64  `json:"id"`
		UID        string `json:"uid"`
		ExternalID int64  `json:"external_id"`
		IP         string `json:"ip"`
		Hostname   string `json:"hostname"`
		MAC        string `json:"mac"`
	}
	out := make([]assetView, 0, len(assets))
	for _, a := range assets {
		out = append(out, assetView(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": out})
}

func (s *Server) handleWorkflow(w http.ResponseWriter, r *http.Request) {
	assetID := pathID(r)
	entries, err := s.store.WorkflowForAsset(r.Context(), assetID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	// No matching rows is an explicit empty result, not an error.
	if entries == nil {
		entries = []domain.WorkflowEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflow": entries})
}

func (s *Server) handleCompliance(w http.ResponseWriter, r *http.Request) {
	assetID := pathID(r)
	status, err := s.store.ComplianceForAsset(r.Context(), assetID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"compliance": status})
}

// handleSetStatus applies a human workflow transition. Only acknowledge
// and close are operator actions; NEW and RESOLVED are owned by ingestion.
func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status  string `json:"status"`
		Contact string `json:"contact"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var status domain.WorkflowStatus
	switch body.Status {
	case "acknowledged":
		status = domain.StatusAcknowledged
	case "closed":
		status = domain.StatusClosed
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "status must be one of: acknowledged, closed",
		})
		return
	}

	workflowID := pathID(r)
	if err := s.store.SetWorkflowStatus(r.Context(), workflowID, status, body.Contact); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflow_id": workflowID, "status": body.Status})
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	slog.Error("request failed", "error", err)
	writeJSON(w, code, map[string]any{"error": err.Error()})
}
