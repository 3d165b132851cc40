package cache

import (
	"go.uber.org/fx"

	"github.com/aisgo/ais-workspace/cache/redis"
)

// Module 提供 *redis.Client 与 redis.Clienter
var Module = fx.Module("cache",
	fx.Provide(
		redis.NewClient,
		func(c *redis.Client) redis.Clienter { return c },
	),
)
