package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/zeu5/robot-goal-env/types"
)

// RedisStore keeps every episode as a redis list of json encoded
// transitions under <prefix>:ep:<index>. Episode and transition counters
// live under <prefix>:episodes and <prefix>:len.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = &RedisStore{}

// NewRedisStore connects to addr. The connection is checked with a PING.
func NewRedisStore(ctx context.Context, addr, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("replay: connecting to redis at %s: %w", addr, err)
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

// NewRedisStoreWithClient uses an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// appendEpisode allocates the next episode index only after its list was
// written, so a failed push leaves both counters untouched.
// KEYS: episode counter, transition counter. ARGV: prefix, transitions...
var appendEpisode = redis.NewScript(`
local n = tonumber(redis.call('GET', KEYS[1]) or '0')
local key = ARGV[1] .. ':ep:' .. n
for i = 2, #ARGV, 1000 do
	redis.call('RPUSH', key, unpack(ARGV, i, math.min(i + 999, #ARGV)))
end
redis.call('INCRBY', KEYS[2], #ARGV - 1)
redis.call('SET', KEYS[1], n + 1)
return n
`)

func (r *RedisStore) episodeKey(i int) string {
	return fmt.Sprintf("%s:ep:%d", r.prefix, i)
}

func (r *RedisStore) countKey() string { return r.prefix + ":episodes" }
func (r *RedisStore) lenKey() string   { return r.prefix + ":len" }

func (r *RedisStore) Append(ctx context.Context, ep Episode) (int, error) {
	values := make([]interface{}, len(ep))
	for i, tr := range ep {
		bs, err := json.Marshal(tr)
		if err != nil {
			return 0, fmt.Errorf("replay: encoding transition %d: %w", i, err)
		}
		values[i] = bs
	}
	args := make([]interface{}, 0, len(values)+1)
	args = append(args, r.prefix)
	args = append(args, values...)
	index, err := appendEpisode.Run(ctx, r.client, []string{r.countKey(), r.lenKey()}, args...).Int()
	if err != nil {
		return 0, fmt.Errorf("replay: storing episode: %w", err)
	}
	return index, nil
}

func (r *RedisStore) Episode(ctx context.Context, i int) (Episode, error) {
	n, err := r.Episodes(ctx)
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= n {
		return nil, fmt.Errorf("replay: episode %d: %w", i, ErrNoEpisode)
	}
	raw, err := r.client.LRange(ctx, r.episodeKey(i), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("replay: reading episode %d: %w", i, err)
	}
	ep := make(Episode, len(raw))
	for j, s := range raw {
		var tr types.Transition
		if err := json.Unmarshal([]byte(s), &tr); err != nil {
			return nil, fmt.Errorf("replay: decoding episode %d step %d: %w", i, j, err)
		}
		ep[j] = tr
	}
	return ep, nil
}

func (r *RedisStore) counter(ctx context.Context, key string) (int, error) {
	n, err := r.client.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("replay: reading %s: %w", key, err)
	}
	return n, nil
}

func (r *RedisStore) Episodes(ctx context.Context) (int, error) {
	return r.counter(ctx, r.countKey())
}

func (r *RedisStore) Len(ctx context.Context) (int, error) {
	return r.counter(ctx, r.lenKey())
}

// Clear deletes every key under the prefix.
func (r *RedisStore) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+":*", 100).Iterator()
	keys := make([]string, 0)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("replay: scanning keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
