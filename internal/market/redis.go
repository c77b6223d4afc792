package market

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/pennypulse/pennypulse/internal/models"
)

// redisTier is the optional warm tier between the in-process LRU and disk.
// It shares the disk tier's msgpack encoding and is strictly best-effort:
// any redis error degrades to the next tier.
type redisTier struct {
	client redis.UniversalClient
	prefix string
}

func newRedisTier(client redis.UniversalClient) *redisTier {
	return &redisTier{client: client, prefix: "pp:bars:"}
}

func (r *redisTier) Get(ctx context.Context, key string) ([]models.Bar, bool) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Str("component", "market").Msg("redis tier read failed")
		}
		return nil, false
	}
	var bars []models.Bar
	if err := msgpack.Unmarshal(data, &bars); err != nil {
		return nil, false
	}
	return bars, true
}

func (r *redisTier) Put(ctx context.Context, key string, bars []models.Bar, ttl time.Duration) {
	data, err := msgpack.Marshal(bars)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, r.prefix+key, data, ttl).Err(); err != nil {
		log.Debug().Err(err).Str("component", "market").Msg("redis tier write failed")
	}
}
