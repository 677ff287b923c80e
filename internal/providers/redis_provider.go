package providers

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"referrald/internal/structures"
)

// NewRedisClient returns nil when the redis sink is disabled.
func NewRedisClient(conf *structures.Config, logger Logger) (*redis.Client, error) {
	rc := conf.Events.Redis
	if !rc.Enabled {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		// the sink retries per publish, so an unreachable redis is not fatal at boot
		logger.Warnf(TypeEvents, "redis %s not reachable: %s", rc.Addr, err)
	} else {
		logger.Infof(TypeEvents, "redis connected: %s db=%d", rc.Addr, rc.DB)
	}
	return client, nil
}
