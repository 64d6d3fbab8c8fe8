package game

import (
	"math/big"
)

// Player holds the lifetime record for one wallet address, including the
// anti-bot metrics maintained by the trust scorer. TrustScore and
// IsBotFlagged are mutated only through the scorer; TotalClicks and
// TotalRewards only grow, and only on accepted clicks.
type Player struct {
	Address             string   `json:"player"`
	TotalClicks         *big.Int `json:"totalClicks"`
	TotalRewards        *big.Int `json:"totalRewards"`
	CountryCode         string   `json:"countryCode"`
	LastClickTimestamp  uint64   `json:"lastClickTimestamp"`
	TrustScore          int      `json:"trustScore"`
	SequentialMaxClicks uint8    `json:"sequentialMaxClicks"`
	IsBotFlagged        bool     `json:"isBotFlagged"`

	// Streak is the current run of clicks arriving faster than the
	// minimum human interval. SequentialMaxClicks is its high-water mark.
	Streak int `json:"streak"`

	// RecentIntervals is a small ring of the latest inter-click intervals
	// in seconds, used for cadence variance analysis.
	RecentIntervals []float64 `json:"recentIntervals,omitempty"`
}

// NewPlayer creates a fresh player record with full trust.
func NewPlayer(address, countryCode string, maxTrustScore int) *Player {
	return &Player{
		Address:      address,
		TotalClicks:  big.NewInt(0),
		TotalRewards: big.NewInt(0),
		CountryCode:  countryCode,
		TrustScore:   maxTrustScore,
	}
}

// ClickSession is one rolling rate-limit window for a player, keyed by
// (player, sessionStart). Sessions are superseded on window rollover and
// retained for audit, never deleted.
type ClickSession struct {
	Player          string `json:"player"`
	SessionStart    uint64 `json:"sessionStart"`
	ClicksInSession uint32 `json:"clicksInSession"`
	IsValid         bool   `json:"isValid"`
}

// GlobalState is the singleton game-wide record. StartTimestamp is fixed at
// genesis and defines the reward decay schedule's origin; CurrentRewardRate
// is a cache of the schedule's value, refreshed whenever read or minted
// against, never independently settable.
type GlobalState struct {
	TotalClicks             *big.Int `json:"totalClicks"`
	TotalPlayers            uint32   `json:"totalPlayers"`
	StartTimestamp          uint64   `json:"startTimestamp"`
	CurrentRewardRate       *big.Int `json:"currentRewardRate"`
	TotalRewardsDistributed *big.Int `json:"totalRewardsDistributed"`
}

// NewGlobalState creates the genesis global state.
func NewGlobalState(startTimestamp uint64) *GlobalState {
	return &GlobalState{
		TotalClicks:             big.NewInt(0),
		StartTimestamp:          startTimestamp,
		CurrentRewardRate:       big.NewInt(0),
		TotalRewardsDistributed: big.NewInt(0),
	}
}

// Country is one per-country leaderboard record. Rank is a derived ordering
// over all countries by TotalClicks descending (ties broken by code),
// recomputed periodically rather than per click.
type Country struct {
	Code        string   `json:"code"`
	TotalClicks *big.Int `json:"totalClicks"`
	PlayerCount uint32   `json:"playerCount"`
	Rank        uint16   `json:"rank"`
}

// NewCountry creates an empty country record.
func NewCountry(code string) *Country {
	return &Country{
		Code:        code,
		TotalClicks: big.NewInt(0),
	}
}

// Reason identifies why a click was rejected.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonRateLimited  Reason = "RateLimited"
	ReasonBotFlagged   Reason = "BotFlagged"
	ReasonInvalidInput Reason = "InvalidInput"
)

// ClickOutcome is the engine's decision record for one click event. The
// caller persists it and, on acceptance, settles RewardAmount against the
// external ledger.
type ClickOutcome struct {
	Accepted     bool     `json:"accepted"`
	RewardAmount *big.Int `json:"rewardAmount"`
	TrustScore   int      `json:"trustScore"`
	IsBotFlagged bool     `json:"isBotFlagged"`
	Reason       Reason   `json:"reason,omitempty"`
}

// TrustLevel maps a trust score onto the display bands used by the game
// client.
func TrustLevel(score int) string {
	switch {
	case score >= 900:
		return "perfect"
	case score >= 700:
		return "excellent"
	case score >= 500:
		return "good"
	case score >= 300:
		return "suspicious"
	default:
		return "bot"
	}
}
