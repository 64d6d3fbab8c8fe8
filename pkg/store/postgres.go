// Copyright (c) 2025 AndeLabs. All Rights Reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/AndeLabs/FlowClicker/pkg/game"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// PostgresStore implements Store on top of Postgres. Counters that are
// 256-bit on chain are kept as NUMERIC(78,0) and moved through big.Int
// strings.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres opens a Postgres connection and pings it with exponential
// backoff, then ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string, maxRetries uint64) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	err = backoff.RetryNotify(
		func() error {
			return db.PingContext(ctx)
		},
		policy,
		func(err error, next time.Duration) {
			logrus.Warnf("Postgres connection failed: %v, retrying in %v...", err, next)
		},
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logrus.Infof("connected to Postgres")
	return store, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS players (
			address TEXT PRIMARY KEY,
			total_clicks NUMERIC(78,0) NOT NULL DEFAULT 0,
			total_rewards NUMERIC(78,0) NOT NULL DEFAULT 0,
			country_code TEXT NOT NULL,
			last_click_timestamp BIGINT NOT NULL DEFAULT 0,
			trust_score INT NOT NULL,
			sequential_max_clicks INT NOT NULL DEFAULT 0,
			is_bot_flagged BOOLEAN NOT NULL DEFAULT FALSE,
			streak INT NOT NULL DEFAULT 0,
			recent_intervals TEXT NOT NULL DEFAULT '[]'
		)`,
		`CREATE TABLE IF NOT EXISTS click_sessions (
			player TEXT NOT NULL,
			session_start BIGINT NOT NULL,
			clicks_in_session BIGINT NOT NULL,
			is_valid BOOLEAN NOT NULL,
			PRIMARY KEY (player, session_start)
		)`,
		`CREATE TABLE IF NOT EXISTS global_state (
			id INT PRIMARY KEY,
			total_clicks NUMERIC(78,0) NOT NULL DEFAULT 0,
			total_players BIGINT NOT NULL DEFAULT 0,
			start_timestamp BIGINT NOT NULL,
			current_reward_rate NUMERIC(78,0) NOT NULL DEFAULT 0,
			total_rewards_distributed NUMERIC(78,0) NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS countries (
			code TEXT PRIMARY KEY,
			total_clicks NUMERIC(78,0) NOT NULL DEFAULT 0,
			player_count BIGINT NOT NULL DEFAULT 0,
			country_rank INT NOT NULL DEFAULT 0
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

func parseBig(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", s)
	}
	return v, nil
}

func (s *PostgresStore) GetPlayer(ctx context.Context, address string) (*game.Player, error) {
	var (
		p                   game.Player
		clicks, rewards     string
		sequential          int
		recentIntervalsJSON string
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT address, total_clicks, total_rewards, country_code, last_click_timestamp,
			trust_score, sequential_max_clicks, is_bot_flagged, streak, recent_intervals
		FROM players
		WHERE address = $1
	`, address).Scan(&p.Address, &clicks, &rewards, &p.CountryCode, &p.LastClickTimestamp,
		&p.TrustScore, &sequential, &p.IsBotFlagged, &p.Streak, &recentIntervalsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player %s: %w", address, err)
	}

	if p.TotalClicks, err = parseBig(clicks); err != nil {
		return nil, err
	}
	if p.TotalRewards, err = parseBig(rewards); err != nil {
		return nil, err
	}
	p.SequentialMaxClicks = uint8(sequential)
	if err := json.Unmarshal([]byte(recentIntervalsJSON), &p.RecentIntervals); err != nil {
		return nil, fmt.Errorf("failed to unmarshal intervals for %s: %w", address, err)
	}

	return &p, nil
}

func (s *PostgresStore) putPlayerTx(ctx context.Context, tx *sql.Tx, p *game.Player) error {
	intervals, err := json.Marshal(p.RecentIntervals)
	if err != nil {
		return fmt.Errorf("failed to marshal intervals for %s: %w", p.Address, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO players (
			address, total_clicks, total_rewards, country_code, last_click_timestamp,
			trust_score, sequential_max_clicks, is_bot_flagged, streak, recent_intervals
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (address) DO UPDATE SET
			total_clicks = EXCLUDED.total_clicks,
			total_rewards = EXCLUDED.total_rewards,
			country_code = EXCLUDED.country_code,
			last_click_timestamp = EXCLUDED.last_click_timestamp,
			trust_score = EXCLUDED.trust_score,
			sequential_max_clicks = EXCLUDED.sequential_max_clicks,
			is_bot_flagged = EXCLUDED.is_bot_flagged,
			streak = EXCLUDED.streak,
			recent_intervals = EXCLUDED.recent_intervals
	`, p.Address, p.TotalClicks.String(), p.TotalRewards.String(), p.CountryCode,
		p.LastClickTimestamp, p.TrustScore, int(p.SequentialMaxClicks), p.IsBotFlagged,
		p.Streak, string(intervals))
	if err != nil {
		return fmt.Errorf("failed to upsert player %s: %w", p.Address, err)
	}
	return nil
}

func (s *PostgresStore) PutPlayer(ctx context.Context, player *game.Player) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	if err := s.putPlayerTx(ctx, tx, player); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) GetLatestSession(ctx context.Context, address string) (*game.ClickSession, error) {
	var sess game.ClickSession

	err := s.db.QueryRowContext(ctx, `
		SELECT player, session_start, clicks_in_session, is_valid
		FROM click_sessions
		WHERE player = $1
		ORDER BY session_start DESC
		LIMIT 1
	`, address).Scan(&sess.Player, &sess.SessionStart, &sess.ClicksInSession, &sess.IsValid)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest session for %s: %w", address, err)
	}
	return &sess, nil
}

func (s *PostgresStore) CommitClick(ctx context.Context, player *game.Player, session *game.ClickSession) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}

	if err := s.putPlayerTx(ctx, tx, player); err != nil {
		tx.Rollback()
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO click_sessions (player, session_start, clicks_in_session, is_valid)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (player, session_start) DO UPDATE SET
			clicks_in_session = EXCLUDED.clicks_in_session,
			is_valid = EXCLUDED.is_valid
	`, session.Player, session.SessionStart, session.ClicksInSession, session.IsValid)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to upsert session for %s: %w", session.Player, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit click for %s: %w", player.Address, err)
	}
	return nil
}

func (s *PostgresStore) GetGlobalState(ctx context.Context) (*game.GlobalState, error) {
	var (
		state                 game.GlobalState
		clicks, rate, rewards string
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT total_clicks, total_players, start_timestamp, current_reward_rate, total_rewards_distributed
		FROM global_state
		WHERE id = 1
	`).Scan(&clicks, &state.TotalPlayers, &state.StartTimestamp, &rate, &rewards)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get global state: %w", err)
	}

	if state.TotalClicks, err = parseBig(clicks); err != nil {
		return nil, err
	}
	if state.CurrentRewardRate, err = parseBig(rate); err != nil {
		return nil, err
	}
	if state.TotalRewardsDistributed, err = parseBig(rewards); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *PostgresStore) InitGlobalState(ctx context.Context, state *game.GlobalState) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO global_state (id, total_clicks, total_players, start_timestamp, current_reward_rate, total_rewards_distributed)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, state.TotalClicks.String(), state.TotalPlayers, state.StartTimestamp,
		state.CurrentRewardRate.String(), state.TotalRewardsDistributed.String())
	if err != nil {
		return fmt.Errorf("failed to init global state: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logrus.Infof("initialized global state with genesis timestamp %d", state.StartTimestamp)
	}
	return nil
}

func (s *PostgresStore) PutGlobalState(ctx context.Context, state *game.GlobalState) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE global_state SET
			total_clicks = $1,
			total_players = $2,
			current_reward_rate = $3,
			total_rewards_distributed = $4
		WHERE id = 1
	`, state.TotalClicks.String(), state.TotalPlayers,
		state.CurrentRewardRate.String(), state.TotalRewardsDistributed.String())
	if err != nil {
		return fmt.Errorf("failed to put global state: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCountry(ctx context.Context, code string) (*game.Country, error) {
	var (
		country game.Country
		clicks  string
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT code, total_clicks, player_count, country_rank
		FROM countries
		WHERE code = $1
	`, code).Scan(&country.Code, &clicks, &country.PlayerCount, &country.Rank)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get country %s: %w", code, err)
	}

	if country.TotalClicks, err = parseBig(clicks); err != nil {
		return nil, err
	}
	return &country, nil
}

func (s *PostgresStore) PutCountry(ctx context.Context, country *game.Country) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO countries (code, total_clicks, player_count, country_rank)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (code) DO UPDATE SET
			total_clicks = EXCLUDED.total_clicks,
			player_count = EXCLUDED.player_count,
			country_rank = EXCLUDED.country_rank
	`, country.Code, country.TotalClicks.String(), country.PlayerCount, country.Rank)
	if err != nil {
		return fmt.Errorf("failed to put country %s: %w", country.Code, err)
	}
	return nil
}

func (s *PostgresStore) ListCountries(ctx context.Context) ([]*game.Country, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, total_clicks, player_count, country_rank FROM countries
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list countries: %w", err)
	}
	defer rows.Close()

	var countries []*game.Country
	for rows.Next() {
		var (
			country game.Country
			clicks  string
		)
		if err := rows.Scan(&country.Code, &clicks, &country.PlayerCount, &country.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan country: %w", err)
		}
		if country.TotalClicks, err = parseBig(clicks); err != nil {
			return nil, err
		}
		countries = append(countries, &country)
	}
	return countries, rows.Err()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
