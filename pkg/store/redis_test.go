// Copyright (c) 2025 AndeLabs. All Rights Reserved.

package store

import (
	"context"
	"math/big"
	"testing"

	"github.com/AndeLabs/FlowClicker/pkg/game"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

// setupTestStore creates a miniredis-backed store for testing.
func setupTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	return NewRedisStore(client), mr
}

func TestGetPlayer_Missing(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	player, err := s.GetPlayer(ctx, "0x1234567890abcdef1234567890abcdef12345678")
	if err != nil {
		t.Fatalf("GetPlayer() error = %v", err)
	}
	if player != nil {
		t.Errorf("GetPlayer() = %+v, expected nil for unknown player", player)
	}
}

func TestCommitClick_RoundTrip(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	addr := "0x1234567890abcdef1234567890abcdef12345678"

	player := game.NewPlayer(addr, "US", 1000)
	player.TotalClicks = big.NewInt(5)
	player.TotalRewards, _ = game.ParseTokenAmount("0.05")
	player.LastClickTimestamp = 1700000100
	player.TrustScore = 950
	player.SequentialMaxClicks = 3

	session := &game.ClickSession{
		Player:          addr,
		SessionStart:    1700000095,
		ClicksInSession: 5,
		IsValid:         true,
	}

	if err := s.CommitClick(ctx, player, session); err != nil {
		t.Fatalf("CommitClick() error = %v", err)
	}

	got, err := s.GetPlayer(ctx, addr)
	if err != nil {
		t.Fatalf("GetPlayer() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetPlayer() returned nil after commit")
	}
	if got.TotalClicks.Cmp(player.TotalClicks) != 0 {
		t.Errorf("TotalClicks = %s, expected %s", got.TotalClicks, player.TotalClicks)
	}
	if got.TotalRewards.Cmp(player.TotalRewards) != 0 {
		t.Errorf("TotalRewards = %s, expected %s", got.TotalRewards, player.TotalRewards)
	}
	if got.TrustScore != 950 {
		t.Errorf("TrustScore = %d, expected 950", got.TrustScore)
	}

	sess, err := s.GetLatestSession(ctx, addr)
	if err != nil {
		t.Fatalf("GetLatestSession() error = %v", err)
	}
	if sess == nil {
		t.Fatal("GetLatestSession() returned nil after commit")
	}
	if sess.SessionStart != 1700000095 || sess.ClicksInSession != 5 || !sess.IsValid {
		t.Errorf("session = %+v, mismatch", sess)
	}
}

func TestCommitClick_RetainsSupersededSessions(t *testing.T) {
	s, mr := setupTestStore(t)
	ctx := context.Background()
	addr := "0x1234567890abcdef1234567890abcdef12345678"
	player := game.NewPlayer(addr, "US", 1000)

	first := &game.ClickSession{Player: addr, SessionStart: 100, ClicksInSession: 10, IsValid: true}
	second := &game.ClickSession{Player: addr, SessionStart: 200, ClicksInSession: 1, IsValid: true}

	if err := s.CommitClick(ctx, player, first); err != nil {
		t.Fatalf("CommitClick(first) error = %v", err)
	}
	if err := s.CommitClick(ctx, player, second); err != nil {
		t.Fatalf("CommitClick(second) error = %v", err)
	}

	// Latest points at the new window.
	sess, err := s.GetLatestSession(ctx, addr)
	if err != nil {
		t.Fatalf("GetLatestSession() error = %v", err)
	}
	if sess.SessionStart != 200 {
		t.Errorf("latest SessionStart = %d, expected 200", sess.SessionStart)
	}

	// The superseded window is still on disk for audit.
	if !mr.Exists(sessionKey(addr, 100)) {
		t.Error("superseded session record was not retained")
	}
}

func TestInitGlobalState_Immutable(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	if err := s.InitGlobalState(ctx, game.NewGlobalState(1700000000)); err != nil {
		t.Fatalf("InitGlobalState() error = %v", err)
	}

	// A second init with a different genesis must not overwrite the first.
	if err := s.InitGlobalState(ctx, game.NewGlobalState(1800000000)); err != nil {
		t.Fatalf("InitGlobalState() second call error = %v", err)
	}

	state, err := s.GetGlobalState(ctx)
	if err != nil {
		t.Fatalf("GetGlobalState() error = %v", err)
	}
	if state.StartTimestamp != 1700000000 {
		t.Errorf("StartTimestamp = %d, expected genesis 1700000000", state.StartTimestamp)
	}
}

func TestCountries_RoundTripAndList(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	for _, code := range []string{"US", "MX", "JP"} {
		country := game.NewCountry(code)
		country.TotalClicks = big.NewInt(int64(len(code)) * 100)
		country.PlayerCount = 2
		if err := s.PutCountry(ctx, country); err != nil {
			t.Fatalf("PutCountry(%s) error = %v", code, err)
		}
	}

	got, err := s.GetCountry(ctx, "MX")
	if err != nil {
		t.Fatalf("GetCountry() error = %v", err)
	}
	if got == nil || got.PlayerCount != 2 {
		t.Errorf("GetCountry(MX) = %+v, mismatch", got)
	}

	missing, err := s.GetCountry(ctx, "ZZ")
	if err != nil {
		t.Fatalf("GetCountry(ZZ) error = %v", err)
	}
	if missing != nil {
		t.Errorf("GetCountry(ZZ) = %+v, expected nil", missing)
	}

	all, err := s.ListCountries(ctx)
	if err != nil {
		t.Fatalf("ListCountries() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListCountries() returned %d countries, expected 3", len(all))
	}
}
