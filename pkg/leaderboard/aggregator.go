package leaderboard

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/AndeLabs/FlowClicker/pkg/game"
	"github.com/AndeLabs/FlowClicker/pkg/reward"
	"github.com/AndeLabs/FlowClicker/pkg/store"

	"github.com/sirupsen/logrus"
)

// Event is one accepted click, forwarded by the engine after the per-player
// mutations have durably committed.
type Event struct {
	Address     string
	CountryCode string
	Reward      *big.Int

	// FirstClick is true when this is the player's first-ever accepted
	// click, which is what grows totalPlayers and the country's
	// playerCount.
	FirstClick bool
}

// Aggregator folds accepted clicks into the shared global and country
// counters. All writers go through one mutex so concurrent accepted clicks
// from different players never lose an increment.
type Aggregator struct {
	mu    sync.Mutex
	store store.Store
	calc  *reward.Calculator
}

// NewAggregator creates an aggregator over the given store.
func NewAggregator(s store.Store, calc *reward.Calculator) *Aggregator {
	return &Aggregator{store: s, calc: calc}
}

// Record applies one accepted click to GlobalState and the player's country,
// refreshing the cached reward rate along the way.
func (a *Aggregator) Record(ctx context.Context, ev Event, now uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	state, err := a.store.GetGlobalState(ctx)
	if err != nil {
		return fmt.Errorf("failed to load global state: %w", err)
	}
	if state == nil {
		return fmt.Errorf("global state not initialized")
	}

	state.TotalClicks.Add(state.TotalClicks, big.NewInt(1))
	state.TotalRewardsDistributed.Add(state.TotalRewardsDistributed, ev.Reward)
	if ev.FirstClick {
		state.TotalPlayers++
	}
	state.CurrentRewardRate = a.calc.CurrentRate(state.StartTimestamp, now)

	if err := a.store.PutGlobalState(ctx, state); err != nil {
		return fmt.Errorf("failed to store global state: %w", err)
	}

	country, err := a.store.GetCountry(ctx, ev.CountryCode)
	if err != nil {
		return fmt.Errorf("failed to load country %s: %w", ev.CountryCode, err)
	}
	if country == nil {
		country = game.NewCountry(ev.CountryCode)
	}
	country.TotalClicks.Add(country.TotalClicks, big.NewInt(1))
	if ev.FirstClick {
		country.PlayerCount++
	}

	if err := a.store.PutCountry(ctx, country); err != nil {
		return fmt.Errorf("failed to store country %s: %w", ev.CountryCode, err)
	}

	logrus.Debugf("recorded accepted click: player=%s country=%s reward=%s",
		ev.Address, ev.CountryCode, game.FormatTokenAmount(ev.Reward))
	return nil
}

// Snapshot returns the current global state with the cached reward rate
// refreshed for display.
func (a *Aggregator) Snapshot(ctx context.Context, now uint64) (*game.GlobalState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	state, err := a.store.GetGlobalState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load global state: %w", err)
	}
	if state == nil {
		return nil, fmt.Errorf("global state not initialized")
	}

	state.CurrentRewardRate = a.calc.CurrentRate(state.StartTimestamp, now)
	return state, nil
}
