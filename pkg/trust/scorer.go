package trust

import (
	"github.com/AndeLabs/FlowClicker/pkg/game"
	"github.com/AndeLabs/FlowClicker/pkg/policy"
	"github.com/AndeLabs/FlowClicker/pkg/session"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// intervalRingSize bounds the per-player ring of recent inter-click
// intervals kept for cadence analysis.
const intervalRingSize = 32

// minIntervalSamples is how many intervals the ring needs before a variance
// is reported.
const minIntervalSamples = 8

// Update is the scorer's result for one click.
type Update struct {
	NewScore int
	Delta    int
	Flagged  bool

	// NewlyFlagged is true only on the click that drove the score below
	// the bot threshold.
	NewlyFlagged bool

	Streak int

	// CadenceVariance is the variance of the player's recent inter-click
	// intervals, or -1 while there are too few samples. Low variance means
	// metronomic clicking; it feeds logs and metrics, not the score.
	CadenceVariance float64
}

// Scorer adjusts a player's trust score from session signals. All deltas are
// deterministic and ordered: rate-limit violations are penalized first, then
// superhuman cadence, and only then does a normal click earn slow recovery.
// The bot flag is sticky; the scorer never clears it and never grants a
// positive delta to a flagged player.
type Scorer struct {
	cfg *policy.Config
}

// NewScorer creates a scorer bound to a policy.
func NewScorer(cfg *policy.Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Evaluate scores one click and applies the resulting mutations to the
// player record: trust score, streak, sequential high-water mark, bot flag
// and last-click timestamp. The caller persists the record.
func (s *Scorer) Evaluate(player *game.Player, decision session.Decision, now uint64) Update {
	interval := now - player.LastClickTimestamp

	// Streak of clicks arriving faster than a human can click. The first
	// click ever has no predecessor and starts no streak.
	if player.LastClickTimestamp != 0 && interval < s.cfg.MinHumanIntervalSeconds {
		player.Streak++
	} else {
		player.Streak = 0
	}
	if player.Streak > int(player.SequentialMaxClicks) && player.Streak <= 255 {
		player.SequentialMaxClicks = uint8(player.Streak)
	}

	variance := s.trackCadence(player, interval)

	delta := 0
	switch {
	case decision.Reason == game.ReasonRateLimited:
		// Only the click that tripped the limiter is penalized; the rest
		// of the dead window is rejected without further scoring.
		if decision.Tripped {
			delta = -s.cfg.RateLimitPenalty
		}
	case player.Streak > s.cfg.SuperhumanStreak:
		delta = -s.cfg.CadencePenalty
	default:
		if !player.IsBotFlagged && player.TrustScore < s.cfg.MaxTrustScore {
			delta = s.cfg.RecoveryReward
		}
	}

	newScore := player.TrustScore + delta
	if newScore < 0 {
		newScore = 0
	}
	if newScore > s.cfg.MaxTrustScore {
		newScore = s.cfg.MaxTrustScore
	}
	delta = newScore - player.TrustScore
	player.TrustScore = newScore

	newlyFlagged := false
	if !player.IsBotFlagged && newScore < s.cfg.BotThreshold {
		player.IsBotFlagged = true
		newlyFlagged = true
		logrus.Warnf("player %s flagged as bot: trust score %d below threshold %d",
			player.Address, newScore, s.cfg.BotThreshold)
	}

	player.LastClickTimestamp = now

	return Update{
		NewScore:        newScore,
		Delta:           delta,
		Flagged:         player.IsBotFlagged,
		NewlyFlagged:    newlyFlagged,
		Streak:          player.Streak,
		CadenceVariance: variance,
	}
}

// trackCadence records the inter-click interval in the player's ring and
// returns the variance of the ring, or -1 with too few samples.
func (s *Scorer) trackCadence(player *game.Player, interval uint64) float64 {
	if player.LastClickTimestamp == 0 {
		return -1
	}

	player.RecentIntervals = append(player.RecentIntervals, float64(interval))
	if len(player.RecentIntervals) > intervalRingSize {
		player.RecentIntervals = player.RecentIntervals[len(player.RecentIntervals)-intervalRingSize:]
	}
	if len(player.RecentIntervals) < minIntervalSamples {
		return -1
	}

	variance := stat.Variance(player.RecentIntervals, nil)
	logrus.Debugf("player %s cadence variance %.4f over %d intervals",
		player.Address, variance, len(player.RecentIntervals))
	return variance
}
