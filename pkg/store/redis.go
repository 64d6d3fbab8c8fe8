// Copyright (c) 2025 AndeLabs. All Rights Reserved.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AndeLabs/FlowClicker/pkg/game"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	playerKeyPrefix        = "flowclicker:player:"
	sessionKeyPrefix       = "flowclicker:session:"
	latestSessionKeyPrefix = "flowclicker:session_latest:"
	globalStateKey         = "flowclicker:global"
	countryKeyPrefix       = "flowclicker:country:"
	countryIndexKey        = "flowclicker:countries"
)

// RedisStore keeps all four record types as JSON values under prefixed keys.
// Records never expire: sessions are part of the audit trail.
type RedisStore struct {
	client *redis.Client
}

// InitRedisClient initializes a Redis client and pings it with exponential
// backoff until it answers or the retry budget is exhausted.
func InitRedisClient(ctx context.Context, addr, password string, maxRetries uint64) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0, // use default DB
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	err := backoff.RetryNotify(
		func() error {
			return client.Ping(ctx).Err()
		},
		policy,
		func(err error, next time.Duration) {
			logrus.Warnf("Redis connection failed: %v, retrying in %v...", err, next)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	logrus.Infof("connected to Redis at %s", addr)
	return client, nil
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func playerKey(address string) string {
	return playerKeyPrefix + address
}

func sessionKey(address string, start uint64) string {
	return fmt.Sprintf("%s%s:%d", sessionKeyPrefix, address, start)
}

func latestSessionKey(address string) string {
	return latestSessionKeyPrefix + address
}

func countryKey(code string) string {
	return countryKeyPrefix + code
}

func (s *RedisStore) getJSON(ctx context.Context, key string, out interface{}) (bool, error) {
	data, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (s *RedisStore) GetPlayer(ctx context.Context, address string) (*game.Player, error) {
	var player game.Player
	found, err := s.getJSON(ctx, playerKey(address), &player)
	if err != nil || !found {
		return nil, err
	}
	return &player, nil
}

func (s *RedisStore) PutPlayer(ctx context.Context, player *game.Player) error {
	data, err := json.Marshal(player)
	if err != nil {
		return fmt.Errorf("failed to marshal player %s: %w", player.Address, err)
	}
	if err := s.client.Set(ctx, playerKey(player.Address), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set player %s: %w", player.Address, err)
	}
	return nil
}

func (s *RedisStore) GetLatestSession(ctx context.Context, address string) (*game.ClickSession, error) {
	var session game.ClickSession
	found, err := s.getJSON(ctx, latestSessionKey(address), &session)
	if err != nil || !found {
		return nil, err
	}
	return &session, nil
}

func (s *RedisStore) CommitClick(ctx context.Context, player *game.Player, session *game.ClickSession) error {
	playerData, err := json.Marshal(player)
	if err != nil {
		return fmt.Errorf("failed to marshal player %s: %w", player.Address, err)
	}
	sessionData, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session for %s: %w", player.Address, err)
	}

	// MULTI/EXEC so the player record and both session keys land together.
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, playerKey(player.Address), playerData, 0)
	pipe.Set(ctx, sessionKey(session.Player, session.SessionStart), sessionData, 0)
	pipe.Set(ctx, latestSessionKey(session.Player), sessionData, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to commit click for %s: %w", player.Address, err)
	}

	logrus.Debugf("committed click for player %s (session start %d, clicks %d)",
		player.Address, session.SessionStart, session.ClicksInSession)
	return nil
}

func (s *RedisStore) GetGlobalState(ctx context.Context) (*game.GlobalState, error) {
	var state game.GlobalState
	found, err := s.getJSON(ctx, globalStateKey, &state)
	if err != nil || !found {
		return nil, err
	}
	return &state, nil
}

func (s *RedisStore) InitGlobalState(ctx context.Context, state *game.GlobalState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal global state: %w", err)
	}
	created, err := s.client.SetNX(ctx, globalStateKey, data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to init global state: %w", err)
	}
	if created {
		logrus.Infof("initialized global state with genesis timestamp %d", state.StartTimestamp)
	}
	return nil
}

func (s *RedisStore) PutGlobalState(ctx context.Context, state *game.GlobalState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal global state: %w", err)
	}
	if err := s.client.Set(ctx, globalStateKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set global state: %w", err)
	}
	return nil
}

func (s *RedisStore) GetCountry(ctx context.Context, code string) (*game.Country, error) {
	var country game.Country
	found, err := s.getJSON(ctx, countryKey(code), &country)
	if err != nil || !found {
		return nil, err
	}
	return &country, nil
}

func (s *RedisStore) PutCountry(ctx context.Context, country *game.Country) error {
	data, err := json.Marshal(country)
	if err != nil {
		return fmt.Errorf("failed to marshal country %s: %w", country.Code, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, countryKey(country.Code), data, 0)
	pipe.SAdd(ctx, countryIndexKey, country.Code)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set country %s: %w", country.Code, err)
	}
	return nil
}

func (s *RedisStore) ListCountries(ctx context.Context) ([]*game.Country, error) {
	codes, err := s.client.SMembers(ctx, countryIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list country codes: %w", err)
	}

	countries := make([]*game.Country, 0, len(codes))
	for _, code := range codes {
		country, err := s.GetCountry(ctx, code)
		if err != nil {
			return nil, err
		}
		if country != nil {
			countries = append(countries, country)
		}
	}
	return countries, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
