package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/AndeLabs/FlowClicker/pkg/game"
	"github.com/AndeLabs/FlowClicker/pkg/leaderboard"
	"github.com/AndeLabs/FlowClicker/pkg/policy"
	"github.com/AndeLabs/FlowClicker/pkg/reward"
	"github.com/AndeLabs/FlowClicker/pkg/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

const genesis = uint64(1700000000)

func setupTestEngine(t *testing.T) (*Engine, store.Store) {
	return setupTestEngineWithPolicy(t, policy.Default())
}

func setupTestEngineWithPolicy(t *testing.T, cfg *policy.Config) (*Engine, store.Store) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	s := store.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err := s.InitGlobalState(context.Background(), game.NewGlobalState(genesis)); err != nil {
		t.Fatalf("InitGlobalState() error = %v", err)
	}

	calc, err := reward.NewCalculator(cfg)
	if err != nil {
		t.Fatalf("NewCalculator() error = %v", err)
	}

	eng, err := New(s, cfg, leaderboard.NewAggregator(s, calc), nil, NewMetrics())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return eng, s
}

func makeAddr(i int) string {
	return fmt.Sprintf("0x%040x", i)
}

func TestHandleClick_FirstClick(t *testing.T) {
	eng, s := setupTestEngine(t)
	ctx := context.Background()
	addr := makeAddr(1)

	outcome, err := eng.HandleClick(ctx, addr, "US", genesis+10)
	if err != nil {
		t.Fatalf("HandleClick() error = %v", err)
	}
	if !outcome.Accepted {
		t.Fatalf("first click rejected: %+v", outcome)
	}
	if game.FormatTokenAmount(outcome.RewardAmount) != "0.01" {
		t.Errorf("reward = %s, expected 0.01", game.FormatTokenAmount(outcome.RewardAmount))
	}
	if outcome.TrustScore != 1000 {
		t.Errorf("trust = %d, expected 1000", outcome.TrustScore)
	}

	player, err := s.GetPlayer(ctx, addr)
	if err != nil {
		t.Fatalf("GetPlayer() error = %v", err)
	}
	if player.TotalClicks.Cmp(big.NewInt(1)) != 0 {
		t.Errorf("TotalClicks = %s, expected 1", player.TotalClicks)
	}

	state, _ := s.GetGlobalState(ctx)
	if state.TotalClicks.Cmp(big.NewInt(1)) != 0 || state.TotalPlayers != 1 {
		t.Errorf("global = %s clicks / %d players, expected 1/1", state.TotalClicks, state.TotalPlayers)
	}
}

func TestHandleClick_RateLimitScenario(t *testing.T) {
	eng, s := setupTestEngine(t)
	ctx := context.Background()
	addr := makeAddr(2)
	base := genesis + 100

	// 800 clicks spread over the 30 s window: all accepted, trust pinned
	// at the ceiling.
	for i := 0; i < 800; i++ {
		now := base + uint64(i*30/801)
		outcome, err := eng.HandleClick(ctx, addr, "US", now)
		if err != nil {
			t.Fatalf("click %d error = %v", i+1, err)
		}
		if !outcome.Accepted {
			t.Fatalf("click %d rejected: %+v", i+1, outcome)
		}
		if outcome.TrustScore != 1000 {
			t.Fatalf("click %d trust = %d, expected 1000", i+1, outcome.TrustScore)
		}
	}

	// Click 801 trips the limiter and costs 50 trust.
	outcome, err := eng.HandleClick(ctx, addr, "US", base+29)
	if err != nil {
		t.Fatalf("click 801 error = %v", err)
	}
	if outcome.Accepted {
		t.Fatal("click 801 accepted over the cap")
	}
	if outcome.Reason != game.ReasonRateLimited {
		t.Errorf("reason = %q, expected RateLimited", outcome.Reason)
	}
	if outcome.TrustScore != 950 {
		t.Errorf("trust = %d after trip, expected 950", outcome.TrustScore)
	}
	if outcome.RewardAmount.Sign() != 0 {
		t.Errorf("reward = %s on rejected click, expected 0", outcome.RewardAmount)
	}

	// Another click in the dead window: rejected, no further penalty.
	outcome, err = eng.HandleClick(ctx, addr, "US", base+29)
	if err != nil {
		t.Fatalf("click 802 error = %v", err)
	}
	if outcome.Accepted || outcome.TrustScore != 950 {
		t.Errorf("click 802: accepted=%v trust=%d, expected rejected at 950", outcome.Accepted, outcome.TrustScore)
	}

	// The player's ledger only reflects the 800 accepted clicks.
	player, _ := s.GetPlayer(ctx, addr)
	if player.TotalClicks.Cmp(big.NewInt(800)) != 0 {
		t.Errorf("TotalClicks = %s, expected 800", player.TotalClicks)
	}
	if game.FormatTokenAmount(player.TotalRewards) != "8" {
		t.Errorf("TotalRewards = %s, expected 8", game.FormatTokenAmount(player.TotalRewards))
	}

	// After rollover the player clicks again.
	outcome, err = eng.HandleClick(ctx, addr, "US", base+40)
	if err != nil {
		t.Fatalf("post-rollover click error = %v", err)
	}
	if !outcome.Accepted {
		t.Errorf("post-rollover click rejected: %+v", outcome)
	}
}

func TestHandleClick_BotFlagScenario(t *testing.T) {
	eng, s := setupTestEngine(t)
	ctx := context.Background()
	addr := makeAddr(3)
	base := genesis + 100

	// Metronomic same-second clicking builds a superhuman streak and
	// bleeds trust until the flag trips.
	var outcome *game.ClickOutcome
	var err error
	for i := 0; i < 200; i++ {
		outcome, err = eng.HandleClick(ctx, addr, "US", base)
		if err != nil {
			t.Fatalf("click %d error = %v", i+1, err)
		}
		if outcome.IsBotFlagged {
			break
		}
	}
	if !outcome.IsBotFlagged {
		t.Fatal("player never got flagged")
	}
	if outcome.TrustScore >= 300 {
		t.Errorf("trust = %d at flag time, expected below 300", outcome.TrustScore)
	}

	player, _ := s.GetPlayer(ctx, addr)
	clicksWhenFlagged := new(big.Int).Set(player.TotalClicks)
	rewardsWhenFlagged := new(big.Int).Set(player.TotalRewards)

	// A well-paced click afterwards is still rejected, with zero reward.
	outcome, err = eng.HandleClick(ctx, addr, "US", base+10)
	if err != nil {
		t.Fatalf("post-flag click error = %v", err)
	}
	if outcome.Accepted {
		t.Fatal("flagged player's click was accepted")
	}
	if outcome.Reason != game.ReasonBotFlagged {
		t.Errorf("reason = %q, expected BotFlagged", outcome.Reason)
	}
	if outcome.RewardAmount.Sign() != 0 {
		t.Errorf("reward = %s for flagged player, expected 0", outcome.RewardAmount)
	}

	// No ledger movement after the flag.
	player, _ = s.GetPlayer(ctx, addr)
	if player.TotalClicks.Cmp(clicksWhenFlagged) != 0 {
		t.Errorf("TotalClicks moved after flag: %s -> %s", clicksWhenFlagged, player.TotalClicks)
	}
	if player.TotalRewards.Cmp(rewardsWhenFlagged) != 0 {
		t.Errorf("TotalRewards moved after flag: %s -> %s", rewardsWhenFlagged, player.TotalRewards)
	}
}

func TestHandleClick_InvalidInput(t *testing.T) {
	eng, _ := setupTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		address string
		country string
		now     uint64
	}{
		{"bad address", "not-an-address", "US", genesis + 1},
		{"bad country", makeAddr(4), "usa", genesis + 1},
		{"zero timestamp", makeAddr(4), "US", 0},
	}

	for _, tt := range tests {
		outcome, err := eng.HandleClick(ctx, tt.address, tt.country, tt.now)
		if err != nil {
			t.Fatalf("%s: error = %v", tt.name, err)
		}
		if outcome.Accepted || outcome.Reason != game.ReasonInvalidInput {
			t.Errorf("%s: outcome = %+v, expected InvalidInput rejection", tt.name, outcome)
		}
	}
}

func TestHandleClick_TimestampMonotonicity(t *testing.T) {
	eng, s := setupTestEngine(t)
	ctx := context.Background()
	addr := makeAddr(5)

	if _, err := eng.HandleClick(ctx, addr, "US", genesis+100); err != nil {
		t.Fatalf("HandleClick() error = %v", err)
	}

	outcome, err := eng.HandleClick(ctx, addr, "US", genesis+50)
	if err != nil {
		t.Fatalf("HandleClick() error = %v", err)
	}
	if outcome.Accepted || outcome.Reason != game.ReasonInvalidInput {
		t.Errorf("backdated click: %+v, expected InvalidInput rejection", outcome)
	}

	// The rejected click mutated nothing.
	player, _ := s.GetPlayer(ctx, addr)
	if player.LastClickTimestamp != genesis+100 {
		t.Errorf("LastClickTimestamp = %d, mutated by invalid click", player.LastClickTimestamp)
	}
	if player.TotalClicks.Cmp(big.NewInt(1)) != 0 {
		t.Errorf("TotalClicks = %s, expected 1", player.TotalClicks)
	}
}

func TestHandleClick_SamePlayerConcurrentCapHolds(t *testing.T) {
	// All clicks carry the same timestamp, so the cadence check is
	// relaxed here to isolate the session cap.
	cfg := policy.Default()
	cfg.SuperhumanStreak = 1 << 20
	eng, _ := setupTestEngineWithPolicy(t, cfg)
	ctx := context.Background()
	addr := makeAddr(6)
	now := genesis + 100

	const total = 1000
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0

	for i := 0; i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := eng.HandleClick(ctx, addr, "US", now)
			if err != nil {
				t.Errorf("HandleClick() error = %v", err)
				return
			}
			if outcome.Accepted {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// All 1000 clicks land in one window; exactly the cap is accepted
	// regardless of interleaving.
	if accepted != 800 {
		t.Errorf("accepted %d concurrent clicks, expected exactly 800", accepted)
	}
}

func TestHandleClick_DistinctPlayersNoLostGlobalUpdates(t *testing.T) {
	eng, s := setupTestEngine(t)
	ctx := context.Background()

	const players = 40
	var wg sync.WaitGroup
	for i := 0; i < players; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := eng.HandleClick(ctx, makeAddr(100+i), "US", genesis+10)
			if err != nil {
				t.Errorf("HandleClick() error = %v", err)
				return
			}
			if !outcome.Accepted {
				t.Errorf("click from player %d rejected: %+v", i, outcome)
			}
		}(i)
	}
	wg.Wait()

	state, err := s.GetGlobalState(ctx)
	if err != nil {
		t.Fatalf("GetGlobalState() error = %v", err)
	}
	if state.TotalClicks.Cmp(big.NewInt(players)) != 0 {
		t.Errorf("global TotalClicks = %s, expected %d", state.TotalClicks, players)
	}
	if state.TotalPlayers != players {
		t.Errorf("TotalPlayers = %d, expected %d", state.TotalPlayers, players)
	}

	country, _ := s.GetCountry(ctx, "US")
	if country.PlayerCount != players {
		t.Errorf("US PlayerCount = %d, expected %d", country.PlayerCount, players)
	}
}

func TestHandleClick_RewardFollowsDecaySchedule(t *testing.T) {
	eng, _ := setupTestEngine(t)
	ctx := context.Background()

	// A click more than a year after genesis pays the year-2 rate.
	outcome, err := eng.HandleClick(ctx, makeAddr(7), "US", genesis+400*24*3600)
	if err != nil {
		t.Fatalf("HandleClick() error = %v", err)
	}
	if game.FormatTokenAmount(outcome.RewardAmount) != "0.004" {
		t.Errorf("reward = %s, expected 0.004", game.FormatTokenAmount(outcome.RewardAmount))
	}
}
