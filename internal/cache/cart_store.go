package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"brewbar/internal/cart"
)

// CartStore keeps cart snapshots in Redis as JSON under cart:<session>.
type CartStore struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewCartStore(client *redis.Client, ttl time.Duration) *CartStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CartStore{client: client, baseTTL: ttl}
}

func (s *CartStore) Load(ctx context.Context, sessionID string) ([]cart.Line, error) {
	data, err := s.client.Get(ctx, cartKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cart.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var snap cart.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return snap.Lines, nil
}

func (s *CartStore) Save(ctx context.Context, sessionID string, snap cart.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}
	// spread expiries so idle carts do not all lapse together
	jitter := time.Duration(rand.Int63n(int64(s.baseTTL/10) + 1))
	if err := s.client.Set(ctx, cartKey(sessionID), payload, s.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *CartStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, cartKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cartKey(sessionID string) string {
	return fmt.Sprintf("cart:%s", sessionID)
}
