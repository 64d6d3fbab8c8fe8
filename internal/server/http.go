// Copyright (c) 2025 AndeLabs. All Rights Reserved.

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/AndeLabs/FlowClicker/pkg/common"
	"github.com/AndeLabs/FlowClicker/pkg/engine"
	"github.com/AndeLabs/FlowClicker/pkg/game"
	"github.com/AndeLabs/FlowClicker/pkg/leaderboard"
	"github.com/AndeLabs/FlowClicker/pkg/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ClickRequest is the body of POST /v1/click. Timestamp is optional;
// when zero the server clock is used.
type ClickRequest struct {
	Address     string `json:"address"`
	CountryCode string `json:"countryCode"`
	Timestamp   uint64 `json:"timestamp,omitempty"`
}

// ClickResponse mirrors the engine's outcome on the wire.
type ClickResponse struct {
	Accepted     bool   `json:"accepted"`
	RewardAmount string `json:"rewardAmount"`
	TrustScore   int    `json:"trustScore"`
	IsBotFlagged bool   `json:"isBotFlagged"`
	Reason       string `json:"reason,omitempty"`
}

// PlayerResponse is the player snapshot on the wire: the stored record
// plus the display band the game client renders for the trust score.
type PlayerResponse struct {
	*game.Player
	TrustLevel string `json:"trustLevel"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HTTPServer serves the public click and leaderboard API.
type HTTPServer struct {
	server  *http.Server
	port    int
	engine  *engine.Engine
	store   store.Store
	agg     *leaderboard.Aggregator
	limiter *rate.Limiter
}

// NewHTTPServer creates the public API server. The limiter throttles
// ingress globally; per-player limits live in the engine.
func NewHTTPServer(port int, eng *engine.Engine, s store.Store, agg *leaderboard.Aggregator, limit, burst int) *HTTPServer {
	return &HTTPServer{
		port:    port,
		engine:  eng,
		store:   s,
		agg:     agg,
		limiter: rate.NewLimiter(rate.Limit(limit), burst),
	}
}

// Setup builds the route table.
func (h *HTTPServer) Setup() error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/click", h.handleClick)
	mux.HandleFunc("GET /v1/player/{address}", h.handlePlayer)
	mux.HandleFunc("GET /v1/global", h.handleGlobal)
	mux.HandleFunc("GET /v1/countries", h.handleCountries)
	mux.HandleFunc("GET /healthz", h.handleHealth)

	h.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", h.port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return nil
}

// Start begins serving the API on the configured port.
func (h *HTTPServer) Start(ctx context.Context) error {
	go func() {
		logrus.Infof("HTTP server listening on port %d", h.port)
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (h *HTTPServer) Shutdown(ctx context.Context) error {
	logrus.Info("shutting down HTTP server...")
	if err := h.server.Shutdown(ctx); err != nil {
		return err
	}
	logrus.Info("HTTP server stopped")
	return nil
}

// RegisterWebSocket mounts a websocket handler on the API mux. Must be
// called after Setup and before Start.
func (h *HTTPServer) RegisterWebSocket(path string, handler http.Handler) {
	h.server.Handler.(*http.ServeMux).Handle("GET "+path, handler)
}

func (h *HTTPServer) handleClick(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow() {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many requests"})
		return
	}

	var req ClickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	now := req.Timestamp
	if now == 0 {
		now = uint64(time.Now().Unix())
	}
	eventID := common.MakeClickEventID(req.Address)

	outcome, err := h.engine.HandleClick(r.Context(), req.Address, req.CountryCode, now)
	if err != nil {
		logrus.WithField("clickEventID", eventID).Errorf("click handling failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	logrus.WithField("clickEventID", eventID).Debugf("click decided: accepted=%v reason=%s", outcome.Accepted, outcome.Reason)

	resp := ClickResponse{
		Accepted:     outcome.Accepted,
		RewardAmount: game.FormatTokenAmount(outcome.RewardAmount),
		TrustScore:   outcome.TrustScore,
		IsBotFlagged: outcome.IsBotFlagged,
		Reason:       string(outcome.Reason),
	}

	// Malformed input is the caller's fault; policy rejections are
	// regular outcomes and still return 200.
	status := http.StatusOK
	if outcome.Reason == game.ReasonInvalidInput {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

func (h *HTTPServer) handlePlayer(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	if err := game.ValidateAddress(address); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	player, err := h.store.GetPlayer(r.Context(), address)
	if err != nil {
		logrus.Errorf("failed to load player %s: %v", address, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	if player == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "player not found"})
		return
	}

	writeJSON(w, http.StatusOK, PlayerResponse{
		Player:     player,
		TrustLevel: game.TrustLevel(player.TrustScore),
	})
}

func (h *HTTPServer) handleGlobal(w http.ResponseWriter, r *http.Request) {
	state, err := h.agg.Snapshot(r.Context(), uint64(time.Now().Unix()))
	if err != nil {
		logrus.Errorf("failed to load global state: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, state)
}

func (h *HTTPServer) handleCountries(w http.ResponseWriter, r *http.Request) {
	countries, err := h.store.ListCountries(r.Context())
	if err != nil {
		logrus.Errorf("failed to list countries: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, leaderboard.Ranked(countries))
}

func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.Errorf("failed to write response: %v", err)
	}
}
