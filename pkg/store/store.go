// Copyright (c) 2025 AndeLabs. All Rights Reserved.

package store

import (
	"context"

	"github.com/AndeLabs/FlowClicker/pkg/game"
)

// Store is the access contract for the engine's four record types. Each
// method is the sole mutation path for its record kind. Implementations must
// provide per-player atomic commits (CommitClick) so a click's player and
// session mutations apply together or not at all. GlobalState and Country
// writers are serialized by the aggregator, not by the store.
type Store interface {
	// GetPlayer returns the player record, or (nil, nil) if none exists.
	GetPlayer(ctx context.Context, address string) (*game.Player, error)

	// PutPlayer writes a player record unconditionally. It exists for
	// operator tooling (e.g. an out-of-band bot-flag appeal); the click
	// path always goes through CommitClick.
	PutPlayer(ctx context.Context, player *game.Player) error

	// GetLatestSession returns the player's most recent rate-limit window,
	// or (nil, nil) if the player has never clicked.
	GetLatestSession(ctx context.Context, address string) (*game.ClickSession, error)

	// CommitClick atomically persists the per-player mutations of one
	// click: the updated player record and the (possibly new) session.
	// Superseded sessions remain stored for audit.
	CommitClick(ctx context.Context, player *game.Player, session *game.ClickSession) error

	// GetGlobalState returns the singleton global record, or (nil, nil)
	// before genesis.
	GetGlobalState(ctx context.Context) (*game.GlobalState, error)

	// InitGlobalState writes the genesis global state only if none exists
	// yet, keeping StartTimestamp immutable after first write.
	InitGlobalState(ctx context.Context, state *game.GlobalState) error

	// PutGlobalState overwrites the global record. Callers must never
	// change StartTimestamp.
	PutGlobalState(ctx context.Context, state *game.GlobalState) error

	// GetCountry returns a country record, or (nil, nil) if unseen.
	GetCountry(ctx context.Context, code string) (*game.Country, error)

	// PutCountry writes a country record and indexes its code.
	PutCountry(ctx context.Context, country *game.Country) error

	// ListCountries returns all known country records in no particular order.
	ListCountries(ctx context.Context) ([]*game.Country, error)

	Close() error
}
