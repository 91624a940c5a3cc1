// Copyright 2021-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

// Package redisutil connects the committer to Redis.
package redisutil

import (
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
)

// RedisClientFromURL returns a client for a redis:// or rediss:// URL. The
// client connects on first use. An empty URL yields a nil client.
func RedisClientFromURL(redisURL string) (redis.UniversalClient, error) {
	if redisURL == "" {
		return nil, nil
	}
	if !strings.HasPrefix(redisURL, "redis://") && !strings.HasPrefix(redisURL, "rediss://") {
		return nil, fmt.Errorf("redis url %q must start with redis:// or rediss://", redisURL)
	}
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return redis.NewClient(options), nil
}
