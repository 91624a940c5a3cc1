// Copyright 2021-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

// Package redislock provides a per-epoch lock shared by every committer
// pointed at the same Redis.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	flag "github.com/spf13/pflag"
)

type Config struct {
	URL             string        `koanf:"url"`
	MyId            string        `koanf:"my-id"`
	LockoutDuration time.Duration `koanf:"lockout-duration"`
	KeyPrefix       string        `koanf:"key-prefix"`
}

type ConfigFetcher func() *Config

var DefaultConfig = Config{
	LockoutDuration: 10 * time.Minute,
	KeyPrefix:       "epoch-committer.lock",
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".url", DefaultConfig.URL, "redis url for the per-epoch publish lock (empty disables locking)")
	f.String(prefix+".my-id", DefaultConfig.MyId, "this committer's id prefix when acquiring the lock (optional)")
	f.Duration(prefix+".lockout-duration", DefaultConfig.LockoutDuration, "how long an epoch lock is held if never released")
	f.String(prefix+".key-prefix", DefaultConfig.KeyPrefix, "prefix of the per-epoch lock keys")
}

func (c *Config) Validate() error {
	if c.URL != "" && c.LockoutDuration <= 0 {
		return errors.New("redis lock lockout duration must be positive")
	}
	if c.KeyPrefix == "" {
		return errors.New("redis lock key prefix is required")
	}
	return nil
}

// EpochLock holds at most one lock per epoch for this process. A nil client
// makes every call succeed without coordination.
type EpochLock struct {
	client redis.UniversalClient
	config ConfigFetcher
	id     string
	mutex  sync.Mutex
}

func NewEpochLock(client redis.UniversalClient, config ConfigFetcher) (*EpochLock, error) {
	id := uuid.NewString()
	if prefix := config().MyId; prefix != "" {
		id = prefix + "-" + id
	}
	return &EpochLock{client: client, config: config, id: id}, nil
}

// Id is the value stored under the keys this process locks.
func (l *EpochLock) Id() string {
	return l.id
}

func (l *EpochLock) key(epoch uint64) string {
	return fmt.Sprintf("%s.%d", l.config().KeyPrefix, epoch)
}

// update runs change on the epoch's key in a transaction that aborts if the
// key is touched between reading the holder and writing. It reports whether
// change ran and committed. change is skipped when allowed rejects the
// current holder, "" meaning free.
func (l *EpochLock) update(ctx context.Context, epoch uint64, allowed func(holder string) bool, change func(redis.Pipeliner, string)) (bool, error) {
	key := l.key(epoch)
	committed := false
	err := l.client.Watch(ctx, func(tx *redis.Tx) error {
		holder, err := tx.Get(ctx, key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			holder = ""
		case err != nil:
			return err
		}
		if !allowed(holder) {
			log.Debug("epoch lock unavailable", "epoch", epoch, "holder", holder)
			return nil
		}
		cmds, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			change(pipe, key)
			return nil
		})
		if errors.Is(err, redis.TxFailedErr) {
			return nil
		}
		if err != nil {
			return err
		}
		for _, cmd := range cmds {
			if err := cmd.Err(); err != nil {
				return err
			}
		}
		committed = true
		return nil
	}, key)
	return committed, err
}

// AttemptLock takes the epoch's lock unless another committer holds it.
// Re-acquiring a lock this process already holds extends it.
func (l *EpochLock) AttemptLock(ctx context.Context, epoch uint64) (bool, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.client == nil {
		return true, nil
	}
	lockout := l.config().LockoutDuration
	expiry := time.Now().Add(lockout)
	locked, err := l.update(ctx, epoch,
		func(holder string) bool { return holder == "" || holder == l.id },
		func(pipe redis.Pipeliner, key string) {
			pipe.Set(ctx, key, l.id, lockout)
			pipe.PExpireAt(ctx, key, expiry)
		})
	if err != nil {
		return false, err
	}
	if !locked {
		log.Info("epoch lock held by another committer", "epoch", epoch)
	}
	return locked, nil
}

// Release drops the epoch's lock if this process holds it.
func (l *EpochLock) Release(ctx context.Context, epoch uint64) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.client == nil {
		return
	}
	_, err := l.update(ctx, epoch,
		func(holder string) bool { return holder == l.id },
		func(pipe redis.Pipeliner, key string) { pipe.Del(ctx, key) })
	if err != nil {
		log.Error("failed to release epoch lock", "epoch", epoch, "err", err)
	}
}

// Holder returns the id holding the epoch's lock, or "" if it is free.
func (l *EpochLock) Holder(ctx context.Context, epoch uint64) (string, error) {
	if l.client == nil {
		return "", nil
	}
	holder, err := l.client.Get(ctx, l.key(epoch)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return holder, err
}
