// Copyright (c) 2025 AndeLabs. All Rights Reserved.

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AndeLabs/FlowClicker/pkg/engine"
	"github.com/AndeLabs/FlowClicker/pkg/game"
	"github.com/AndeLabs/FlowClicker/pkg/leaderboard"
	"github.com/AndeLabs/FlowClicker/pkg/policy"
	"github.com/AndeLabs/FlowClicker/pkg/reward"
	"github.com/AndeLabs/FlowClicker/pkg/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

const genesis = uint64(1700000000)

func setupTestServer(t *testing.T) (*HTTPServer, store.Store) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	s := store.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err := s.InitGlobalState(context.Background(), game.NewGlobalState(genesis)); err != nil {
		t.Fatalf("InitGlobalState() error = %v", err)
	}

	cfg := policy.Default()
	calc, err := reward.NewCalculator(cfg)
	if err != nil {
		t.Fatalf("NewCalculator() error = %v", err)
	}
	agg := leaderboard.NewAggregator(s, calc)

	eng, err := engine.New(s, cfg, agg, nil, engine.NewMetrics())
	if err != nil {
		t.Fatalf("engine.New() error = %v", err)
	}

	srv := NewHTTPServer(8000, eng, s, agg, 1000, 2000)
	if err := srv.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	return srv, s
}

func (h *HTTPServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHandlePlayer_IncludesTrustLevel(t *testing.T) {
	srv, s := setupTestServer(t)
	ctx := context.Background()

	tests := []struct {
		trustScore int
		level      string
	}{
		{1000, "perfect"},
		{750, "excellent"},
		{550, "good"},
		{350, "suspicious"},
		{200, "bot"},
	}

	for i, tt := range tests {
		addr := fmt.Sprintf("0x%040x", i+1)
		player := game.NewPlayer(addr, "US", tt.trustScore)
		if err := s.PutPlayer(ctx, player); err != nil {
			t.Fatalf("PutPlayer() error = %v", err)
		}

		rec := srv.do(t, http.MethodGet, "/v1/player/"+addr, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("GET player (score %d) status = %d, expected 200", tt.trustScore, rec.Code)
		}

		var resp struct {
			TrustScore int    `json:"trustScore"`
			TrustLevel string `json:"trustLevel"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode player response: %v", err)
		}
		if resp.TrustScore != tt.trustScore {
			t.Errorf("trustScore = %d, expected %d", resp.TrustScore, tt.trustScore)
		}
		if resp.TrustLevel != tt.level {
			t.Errorf("trustLevel = %q for score %d, expected %q", resp.TrustLevel, tt.trustScore, tt.level)
		}
	}
}

func TestHandlePlayer_NotFound(t *testing.T) {
	srv, _ := setupTestServer(t)

	rec := srv.do(t, http.MethodGet, "/v1/player/"+fmt.Sprintf("0x%040x", 99), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d for unknown player, expected 404", rec.Code)
	}
}

func TestHandleClick_StatusMapping(t *testing.T) {
	srv, _ := setupTestServer(t)
	addr := fmt.Sprintf("0x%040x", 7)

	rec := srv.do(t, http.MethodPost, "/v1/click", ClickRequest{
		Address:     addr,
		CountryCode: "US",
		Timestamp:   genesis + 10,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("accepted click status = %d, expected 200", rec.Code)
	}
	var resp ClickResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode click response: %v", err)
	}
	if !resp.Accepted || resp.RewardAmount != "0.01" {
		t.Errorf("click response = %+v, expected accepted with reward 0.01", resp)
	}

	// Malformed input is the caller's fault and maps to 400.
	rec = srv.do(t, http.MethodPost, "/v1/click", ClickRequest{
		Address:     "not-an-address",
		CountryCode: "US",
		Timestamp:   genesis + 10,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid address status = %d, expected 400", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode click response: %v", err)
	}
	if resp.Accepted || resp.Reason != string(game.ReasonInvalidInput) {
		t.Errorf("click response = %+v, expected InvalidInput rejection", resp)
	}
}
