package cache

import (
	gocache "github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/syncx"
)

// NewRedisStore returns a Redis-backed Store built from go-zero's cache node.
func NewRedisStore(conf redis.RedisConf, name string) Store {
	return gocache.NewNode(redis.MustNewRedis(conf), syncx.NewSingleFlight(), gocache.NewStat(name), ErrNotFound)
}
