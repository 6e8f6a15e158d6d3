package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache guarda odds e placares do feed externo no Redis. O buffer de
// liquidação e o check de plausibilidade leem daqui; só um cache miss
// gasta orçamento do feed.
type Cache struct{ R *redis.Client }

func NewCache(r *redis.Client) *Cache { return &Cache{R: r} }

func keyOdds(eventID, market string) string { return "feed:odds:" + eventID + ":" + market }
func keyScore(eventID string) string        { return "feed:score:" + eventID }

func (c *Cache) GetOdds(ctx context.Context, eventID, market string, dst any) (bool, error) {
	return c.get(ctx, keyOdds(eventID, market), dst)
}

func (c *Cache) SetOdds(ctx context.Context, eventID, market string, v any, ttl time.Duration) error {
	b, _ := json.Marshal(v)
	return c.R.Set(ctx, keyOdds(eventID, market), b, ttl).Err()
}

func (c *Cache) GetScore(ctx context.Context, eventID string, dst any) (bool, error) {
	return c.get(ctx, keyScore(eventID), dst)
}

func (c *Cache) SetScore(ctx context.Context, eventID string, v any, ttl time.Duration) error {
	b, _ := json.Marshal(v)
	return c.R.Set(ctx, keyScore(eventID), b, ttl).Err()
}

func (c *Cache) get(ctx context.Context, key string, dst any) (bool, error) {
	b, err := c.R.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(b, dst)
}

// Consume incrementa o contador mensal de chamadas ao feed e devolve o
// total após o incremento. O INCR atômico do Redis serializa chamadas
// concorrentes; a chave expira sozinha bem depois da virada do mês.
func (c *Cache) Consume(ctx context.Context, now time.Time) (int64, error) {
	key := fmt.Sprintf("feed:budget:%s", now.UTC().Format("2006-01"))
	n, err := c.R.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		_ = c.R.Expire(ctx, key, 40*24*time.Hour).Err()
	}
	return n, nil
}
