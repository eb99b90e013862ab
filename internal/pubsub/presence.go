package pubsub

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	presenceKey = "rt:presence"
	presenceTTL = 45 * time.Second
)

// LocalPresence водители, подключенные к этому экземпляру
type LocalPresence interface {
	OnlineDrivers(ctx context.Context) ([]uint, error)
}

// RedisPresence объединяет подключенных водителей всех экземпляров.
// Каждый экземпляр раз в интервал пишет своих водителей в sorted set
// с текущим временем, записи старше presenceTTL считаются отключенными.
type RedisPresence struct {
	client *redis.Client
	local  LocalPresence
	key    string
	ttl    time.Duration
	now    func() time.Time
	log    *slog.Logger
}

func NewRedisPresence(client *redis.Client, local LocalPresence, logger *slog.Logger) *RedisPresence {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPresence{
		client: client,
		local:  local,
		key:    presenceKey,
		ttl:    presenceTTL,
		now:    time.Now,
		log:    logger.With("component", "presence"),
	}
}

// Heartbeat отмечает локальных водителей и чистит устаревшие записи
func (p *RedisPresence) Heartbeat(ctx context.Context) error {
	ids, err := p.local.OnlineDrivers(ctx)
	if err != nil {
		return err
	}
	now := p.now()

	if len(ids) > 0 {
		members := make([]*redis.Z, 0, len(ids))
		for _, id := range ids {
			members = append(members, &redis.Z{Score: float64(now.Unix()), Member: strconv.FormatUint(uint64(id), 10)})
		}
		if err := p.client.ZAdd(ctx, p.key, members...).Err(); err != nil {
			return fmt.Errorf("presence zadd: %w", err)
		}
	}

	cutoff := strconv.FormatInt(now.Add(-p.ttl).Unix(), 10)
	if err := p.client.ZRemRangeByScore(ctx, p.key, "-inf", "("+cutoff).Err(); err != nil {
		return fmt.Errorf("presence cleanup: %w", err)
	}
	return nil
}

// Run обновляет присутствие каждые interval до отмены ctx
func (p *RedisPresence) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := p.Heartbeat(ctx); err != nil && ctx.Err() == nil {
			p.log.Warn("не удалось обновить присутствие водителей", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// OnlineDrivers локальные водители плюс водители других экземпляров.
// При недоступном redis возвращает только локальных.
func (p *RedisPresence) OnlineDrivers(ctx context.Context) ([]uint, error) {
	local, err := p.local.OnlineDrivers(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[uint]struct{}, len(local))
	for _, id := range local {
		seen[id] = struct{}{}
	}

	min := strconv.FormatInt(p.now().Add(-p.ttl).Unix(), 10)
	remote, err := p.client.ZRangeByScore(ctx, p.key, &redis.ZRangeBy{Min: min, Max: "+inf"}).Result()
	if err != nil {
		p.log.Warn("присутствие из redis недоступно, используются локальные водители", "error", err)
	}
	for _, m := range remote {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil || id == 0 {
			continue
		}
		seen[uint(id)] = struct{}{}
	}

	ids := make([]uint, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
