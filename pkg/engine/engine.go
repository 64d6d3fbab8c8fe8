package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/AndeLabs/FlowClicker/pkg/audit"
	"github.com/AndeLabs/FlowClicker/pkg/common"
	"github.com/AndeLabs/FlowClicker/pkg/game"
	"github.com/AndeLabs/FlowClicker/pkg/leaderboard"
	"github.com/AndeLabs/FlowClicker/pkg/policy"
	"github.com/AndeLabs/FlowClicker/pkg/reward"
	"github.com/AndeLabs/FlowClicker/pkg/session"
	"github.com/AndeLabs/FlowClicker/pkg/store"
	"github.com/AndeLabs/FlowClicker/pkg/trust"
)

// Engine orchestrates one click event end to end: session window, trust
// scoring, reward pricing, per-player commit, aggregation. Clicks from the
// same player are serialized in arrival order through a per-player lock;
// clicks from different players run fully in parallel.
type Engine struct {
	cfg     *policy.Config
	store   store.Store
	tracker *session.Tracker
	scorer  *trust.Scorer
	calc    *reward.Calculator
	agg     *leaderboard.Aggregator
	audit   *audit.Log // nil disables the audit trail
	metrics *Metrics

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an engine over the given store and policy.
func New(s store.Store, cfg *policy.Config, agg *leaderboard.Aggregator, auditLog *audit.Log, metrics *Metrics) (*Engine, error) {
	calc, err := reward.NewCalculator(cfg)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:     cfg,
		store:   s,
		tracker: session.NewTracker(cfg),
		scorer:  trust.NewScorer(cfg),
		calc:    calc,
		agg:     agg,
		audit:   auditLog,
		metrics: metrics,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

// HandleClick decides one click event. Rejections (RateLimited, BotFlagged,
// InvalidInput) are expected outcomes carried in the returned ClickOutcome;
// a non-nil error means storage failed and nothing for this click was
// partially applied on the player's side.
func (e *Engine) HandleClick(ctx context.Context, address, countryCode string, now uint64) (*game.ClickOutcome, error) {
	scope := common.NewScope(ctx, "engine.handle_click")
	defer scope.Finish()
	scope.SetAttributes("player", address)
	scope.SetAttributes("country", countryCode)

	// Format validation happens before any state is read.
	if err := e.validateInput(address, countryCode, now); err != nil {
		scope.Log.Debugf("rejecting click: %v", err)
		outcome := &game.ClickOutcome{RewardAmount: big.NewInt(0), Reason: game.ReasonInvalidInput}
		e.finish(scope, address, countryCode, now, outcome)
		return outcome, nil
	}

	lock := e.playerLock(address)
	lock.Lock()
	defer lock.Unlock()

	player, err := e.store.GetPlayer(scope.Ctx, address)
	if err != nil {
		return nil, e.storageFailure(scope, "load player", err)
	}
	if player == nil {
		player = game.NewPlayer(address, countryCode, e.cfg.MaxTrustScore)
	}

	// Timestamps must be monotone per player; a click dated before the
	// last one is rejected before any mutation.
	if now < player.LastClickTimestamp {
		scope.Log.Debugf("rejecting click: timestamp %d before last click %d", now, player.LastClickTimestamp)
		outcome := &game.ClickOutcome{
			RewardAmount: big.NewInt(0),
			TrustScore:   player.TrustScore,
			IsBotFlagged: player.IsBotFlagged,
			Reason:       game.ReasonInvalidInput,
		}
		e.finish(scope, address, countryCode, now, outcome)
		return outcome, nil
	}

	firstClick := player.TotalClicks.Sign() == 0

	latest, err := e.store.GetLatestSession(scope.Ctx, address)
	if err != nil {
		return nil, e.storageFailure(scope, "load session", err)
	}

	decision := e.tracker.Admit(latest, address, now)

	// Trust reflects behavior even on rejected clicks.
	update := e.scorer.Evaluate(player, decision, now)
	if update.NewlyFlagged {
		e.metrics.PlayersFlagged.Inc()
		scope.TraceEvent("player flagged as bot")
	}

	outcome := &game.ClickOutcome{
		RewardAmount: big.NewInt(0),
		TrustScore:   update.NewScore,
		IsBotFlagged: update.Flagged,
	}

	switch {
	case !decision.Accepted:
		outcome.Reason = game.ReasonRateLimited
	case update.Flagged:
		outcome.Reason = game.ReasonBotFlagged
	default:
		state, err := e.store.GetGlobalState(scope.Ctx)
		if err != nil {
			return nil, e.storageFailure(scope, "load global state", err)
		}
		if state == nil {
			return nil, e.storageFailure(scope, "load global state", fmt.Errorf("global state not initialized"))
		}

		amount := e.calc.PriceClick(state.StartTimestamp, now)
		player.TotalClicks.Add(player.TotalClicks, big.NewInt(1))
		player.TotalRewards.Add(player.TotalRewards, amount)
		outcome.Accepted = true
		outcome.RewardAmount = amount
	}

	// All per-player mutations of this click commit together or not at
	// all; until here everything happened on in-memory copies.
	commitScope := scope.NewChildScope("engine.commit_click")
	if err := e.store.CommitClick(commitScope.Ctx, player, decision.Session); err != nil {
		commitScope.Finish()
		return nil, e.storageFailure(commitScope, "commit click", err)
	}

	// The aggregator only runs once the per-player mutation is durable.
	if outcome.Accepted {
		ev := leaderboard.Event{
			Address:     address,
			CountryCode: player.CountryCode,
			Reward:      outcome.RewardAmount,
			FirstClick:  firstClick,
		}
		if err := e.agg.Record(commitScope.Ctx, ev, now); err != nil {
			commitScope.Finish()
			return nil, e.storageFailure(commitScope, "aggregate click", err)
		}
	}
	commitScope.Finish()

	e.finish(scope, address, countryCode, now, outcome)
	return outcome, nil
}

func (e *Engine) validateInput(address, countryCode string, now uint64) error {
	if err := game.ValidateAddress(address); err != nil {
		return err
	}
	if err := game.ValidateCountryCode(countryCode); err != nil {
		return err
	}
	if now == 0 {
		return fmt.Errorf("missing click timestamp")
	}
	return nil
}

// playerLock returns the mutex serializing one player's clicks.
func (e *Engine) playerLock(address string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[address]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[address] = lock
	}
	return lock
}

func (e *Engine) storageFailure(scope *common.Scope, op string, err error) error {
	wrapped := fmt.Errorf("failed to %s: %w", op, err)
	scope.TraceError(wrapped)
	scope.Log.Errorf("storage failure: %v", wrapped)
	e.metrics.StorageErrors.Inc()
	return wrapped
}

// finish records the decision in metrics and the audit trail.
func (e *Engine) finish(scope *common.Scope, address, countryCode string, now uint64, outcome *game.ClickOutcome) {
	label := "accepted"
	switch outcome.Reason {
	case game.ReasonRateLimited:
		label = "rate_limited"
	case game.ReasonBotFlagged:
		label = "bot_flagged"
	case game.ReasonInvalidInput:
		label = "invalid_input"
	}
	e.metrics.ClicksTotal.WithLabelValues(label).Inc()
	if outcome.Accepted {
		e.metrics.RewardsDistributed.Add(tokensAsFloat(outcome.RewardAmount))
	}

	scope.SetAttributes("accepted", outcome.Accepted)
	if outcome.Reason != game.ReasonNone {
		scope.SetAttributes("reason", string(outcome.Reason))
	}

	if e.audit == nil {
		return
	}
	rec := audit.Record{
		TraceID:     scope.TraceID,
		Address:     address,
		CountryCode: countryCode,
		Timestamp:   now,
		Accepted:    outcome.Accepted,
		Reason:      string(outcome.Reason),
		TrustScore:  outcome.TrustScore,
	}
	if outcome.Accepted {
		rec.Reward = game.FormatTokenAmount(outcome.RewardAmount)
	}
	if err := e.audit.Append(rec); err != nil {
		scope.Log.Warnf("failed to append audit record: %v", err)
	}
}
