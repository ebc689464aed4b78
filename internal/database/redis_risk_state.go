// Redis-backed persistence for the risk gate's counters, so daily limits and
// cooldowns survive an engine restart. When Redis is unavailable the store
// falls back to an in-memory copy and trading continues uninterrupted.
package database

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/HCTech2/GOLD-HFT/config"
	"github.com/HCTech2/GOLD-HFT/internal/logging"
	"github.com/HCTech2/GOLD-HFT/internal/risk"
)

const (
	// riskStateKey holds the serialized gate state. The key carries no date;
	// the gate's own lazy daily reset handles day boundaries.
	riskStateKey = "engine:risk:state"

	// riskStateTTL keeps stale state from outliving its relevance. Two days
	// covers a weekend restart without resurrecting week-old counters.
	riskStateTTL = 48 * time.Hour
)

// RiskStateStore persists risk gate state to Redis with an in-memory
// fallback when Redis is unavailable.
type RiskStateStore struct {
	client    *redis.Client
	mu        sync.RWMutex
	fallback  *risk.State
	available atomic.Bool
	log       zerolog.Logger
}

// NewRiskStateStore creates the store. A nil client means memory-only mode.
func NewRiskStateStore(client *redis.Client) *RiskStateStore {
	store := &RiskStateStore{
		client: client,
		log:    logging.Component("risk-store"),
	}

	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			store.log.Warn().Err(err).Msg("Redis unavailable at startup, using in-memory fallback")
		} else {
			store.available.Store(true)
			store.log.Info().Msg("Redis connected")
		}
	} else {
		store.log.Info().Msg("No Redis client configured, risk state is memory-only")
	}

	return store
}

// NewRedisClient builds a Redis client from configuration, or nil when the
// integration is disabled.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	if !cfg.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Save persists the gate state. Redis failures degrade to the in-memory copy.
func (s *RiskStateStore) Save(ctx context.Context, state risk.State) error {
	s.mu.Lock()
	copied := state
	s.fallback = &copied
	s.mu.Unlock()

	if s.client == nil {
		return nil
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, riskStateKey, payload, riskStateTTL).Err(); err != nil {
		if s.available.Swap(false) {
			s.log.Warn().Err(err).Msg("Redis save failed, falling back to memory")
		}
		return nil
	}
	s.available.Store(true)
	return nil
}

// Load returns the persisted gate state. The second return is false when no
// state exists anywhere.
func (s *RiskStateStore) Load(ctx context.Context) (risk.State, bool, error) {
	if s.client != nil {
		payload, err := s.client.Get(ctx, riskStateKey).Bytes()
		switch {
		case err == nil:
			var state risk.State
			if jsonErr := json.Unmarshal(payload, &state); jsonErr != nil {
				s.log.Warn().Err(jsonErr).Msg("Discarding corrupt persisted risk state")
				return risk.State{}, false, nil
			}
			s.available.Store(true)
			return state, true, nil
		case err == redis.Nil:
			s.available.Store(true)
			// No persisted state; fall through to the memory copy.
		default:
			if s.available.Swap(false) {
				s.log.Warn().Err(err).Msg("Redis load failed, falling back to memory")
			}
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fallback == nil {
		return risk.State{}, false, nil
	}
	return *s.fallback, true, nil
}

// Available reports whether the last Redis operation succeeded.
func (s *RiskStateStore) Available() bool {
	return s.available.Load()
}
