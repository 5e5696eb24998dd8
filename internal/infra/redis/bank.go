package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"trivia-live-service/internal/domain"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// SetLoader fetches question sets from a backing store (e.g., Postgres).
type SetLoader interface {
	LoadSet(ctx context.Context, setID string) (domain.QuestionSet, error)
}

// BankCache caches question sets in Redis as JSON blobs and falls back to a
// loader on cache miss. Sets are stored as: SET bank:set:{setID} {json} EX ttl
type BankCache struct {
	client *redis.Client
	loader SetLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewBankCache(client *redis.Client, loader SetLoader, ttl time.Duration) *BankCache {
	return &BankCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *BankCache) GetSet(ctx context.Context, setID string) (domain.QuestionSet, error) {
	key := b.setKey(setID)

	if raw, err := b.client.Get(ctx, key).Bytes(); err == nil {
		var set domain.QuestionSet
		if uerr := json.Unmarshal(raw, &set); uerr == nil {
			return set, nil
		}
		// A corrupt cache entry falls through to the loader.
	}

	result, err, _ := b.sf.Do(setID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if raw, err := b.client.Get(ctx, key).Bytes(); err == nil {
			var set domain.QuestionSet
			if uerr := json.Unmarshal(raw, &set); uerr == nil {
				return set, nil
			}
		}

		set, err := b.loader.LoadSet(ctx, setID)
		if err != nil {
			return domain.QuestionSet{}, err
		}

		if raw, merr := json.Marshal(set); merr == nil {
			_ = b.client.Set(ctx, key, raw, b.ttlWithJitter()).Err()
		}
		return set, nil
	})
	if err != nil {
		return domain.QuestionSet{}, err
	}
	return result.(domain.QuestionSet), nil
}

func (b *BankCache) setKey(setID string) string {
	return "bank:set:" + setID
}

func (b *BankCache) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	jitterMax := int64(b.ttl) / 10
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}
