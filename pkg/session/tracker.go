package session

import (
	"github.com/AndeLabs/FlowClicker/pkg/game"
	"github.com/AndeLabs/FlowClicker/pkg/policy"

	"github.com/sirupsen/logrus"
)

// Decision is the tracker's verdict for one click.
type Decision struct {
	// Session is the window the click was counted against. The caller is
	// responsible for persisting it.
	Session *game.ClickSession

	Accepted bool
	Reason   game.Reason

	// NewWindow is true when this click opened a fresh rate-limit window.
	NewWindow bool

	// Tripped is true only on the click that pushed the window over the
	// cap. Later clicks in the same dead window are rejected without
	// re-penalizing.
	Tripped bool
}

// Tracker maintains the rolling per-player click-rate window. It is pure
// per-player logic: the caller loads the latest session and persists the
// result, serialized per player by the engine.
type Tracker struct {
	windowSeconds      uint64
	maxClicksPerWindow uint32
}

// NewTracker creates a tracker from the policy's window parameters.
func NewTracker(cfg *policy.Config) *Tracker {
	return &Tracker{
		windowSeconds:      cfg.RateLimitWindowSeconds,
		maxClicksPerWindow: cfg.MaxClicksPerWindow,
	}
}

// Admit counts a click at time now against the player's latest window
// (nil if the player has never clicked). A window older than the rate-limit
// window is superseded by a fresh one; within a live window the click
// increments the counter and trips the limiter once the cap is exceeded.
// Once a window is invalid every further click in it is rejected.
func (t *Tracker) Admit(latest *game.ClickSession, address string, now uint64) Decision {
	if latest == nil || now-latest.SessionStart >= t.windowSeconds {
		session := &game.ClickSession{
			Player:          address,
			SessionStart:    now,
			ClicksInSession: 1,
			IsValid:         true,
		}
		return Decision{Session: session, Accepted: true, NewWindow: true}
	}

	if !latest.IsValid {
		latest.ClicksInSession++
		return Decision{Session: latest, Accepted: false, Reason: game.ReasonRateLimited}
	}

	latest.ClicksInSession++
	if latest.ClicksInSession > t.maxClicksPerWindow {
		latest.IsValid = false
		logrus.Warnf("rate limit tripped for player %s: %d clicks in window starting %d",
			address, latest.ClicksInSession, latest.SessionStart)
		return Decision{Session: latest, Accepted: false, Reason: game.ReasonRateLimited, Tripped: true}
	}

	return Decision{Session: latest, Accepted: true}
}
