// Package api exposes the decision API over HTTP: one entry point accepting a
// raw signal and returning the route result, plus handshake inspection and a
// health probe. Authentication is a static bearer token when configured.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/dmribeiro/ambientd/internal/orchestrator"
	"github.com/dmribeiro/ambientd/internal/signal"
	"github.com/dmribeiro/ambientd/internal/storage"
	"github.com/dmribeiro/ambientd/internal/store"
)

const defaultUserID = "primary"

// Server is the HTTP decision API.
type Server struct {
	orch       *orchestrator.Orchestrator
	handshakes *store.HandshakeStore
	db         *storage.DB
	logger     *zap.Logger
	authToken  string
	httpServer *http.Server
}

// NewServer wires the HTTP surface.
func NewServer(orch *orchestrator.Orchestrator, handshakes *store.HandshakeStore, db *storage.DB, logger *zap.Logger, authToken string) *Server {
	return &Server{
		orch:       orch,
		handshakes: handshakes,
		db:         db,
		logger:     logger,
		authToken:  authToken,
	}
}

// routeRequest is the inbound payload for POST /v1/route.
type routeRequest struct {
	UserID     string           `json:"user_id"`
	SignalType string           `json:"signal_type"`
	Text       string           `json:"text"`
	OCRTrace   *signal.OCRTrace `json:"ocr_trace,omitempty"`
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/route", s.withAuth(s.handleRoute))
	mux.HandleFunc("GET /v1/handshakes", s.withAuth(s.handleHandshakes))
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}
	s.logger.Info("decision API listening", zap.String("addr", addr))
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken != "" {
			if r.Header.Get("Authorization") != "Bearer "+s.authToken {
				writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		req.UserID = defaultUserID
	}
	sigType := signal.Type(req.SignalType)
	switch sigType {
	case signal.TypeText, signal.TypeVoice, signal.TypeOCR:
	case "":
		sigType = signal.TypeText
	default:
		writeError(w, http.StatusBadRequest, "signal_type must be text, voice or ocr")
		return
	}

	sig := signal.New(sigType, req.Text, req.OCRTrace)
	result, err := s.orch.Route(r.Context(), req.UserID, sig)
	if err != nil {
		s.logger.Error("route failed", zap.String("signal_id", sig.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "routing failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHandshakes(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = defaultUserID
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	events, err := s.handshakes.Recent(r.Context(), userID, limit)
	if err != nil {
		s.logger.Error("handshake query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "handshake query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"handshakes": events})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.db.Ping(); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
