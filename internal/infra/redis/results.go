package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trivia-live-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

// ErrNoResults is returned when no final leaderboard is retained.
var ErrNoResults = errors.New("no final results retained")

// ResultStore keeps the most recent final leaderboard in Redis for a bounded
// retention window; data-retention purging falls out of the key TTL.
type ResultStore struct {
	client    *redis.Client
	retention time.Duration
}

func NewResultStore(client *redis.Client, retention time.Duration) *ResultStore {
	return &ResultStore{client: client, retention: retention}
}

func (s *ResultStore) SaveFinal(ctx context.Context, final domain.FinalResults) error {
	raw, err := json.Marshal(final)
	if err != nil {
		return fmt.Errorf("marshal final results: %w", err)
	}
	if err := s.client.Set(ctx, s.key(), raw, s.retention).Err(); err != nil {
		return fmt.Errorf("store final results: %w", err)
	}
	return nil
}

// LatestFinal returns the retained leaderboard, or ErrNoResults once the
// retention window has lapsed.
func (s *ResultStore) LatestFinal(ctx context.Context) (domain.FinalResults, error) {
	raw, err := s.client.Get(ctx, s.key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.FinalResults{}, ErrNoResults
	}
	if err != nil {
		return domain.FinalResults{}, fmt.Errorf("load final results: %w", err)
	}
	var final domain.FinalResults
	if err := json.Unmarshal(raw, &final); err != nil {
		return domain.FinalResults{}, fmt.Errorf("unmarshal final results: %w", err)
	}
	return final, nil
}

func (s *ResultStore) key() string {
	return "session:results:final"
}
