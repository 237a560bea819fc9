package database

import (
	"context"

	"github.com/go-redis/redis/v8"

	"assac-admin-go/pkg/log"
)

// RDB is the shared Redis client. It is only initialized when the redis
// session store backend is selected.
var RDB *redis.Client

// InitRedis connects the Redis client and verifies the connection.
func InitRedis(addr, password string, db int) {
	RDB = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := RDB.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to connect to redis", err)
	}

	log.Info("Redis client connected successfully")
}
