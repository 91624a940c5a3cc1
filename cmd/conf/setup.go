// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package conf

import (
	"context"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/offchainlabs/epoch-committer/cmd/util"
	"github.com/offchainlabs/epoch-committer/commitment"
	"github.com/offchainlabs/epoch-committer/distributor"
	"github.com/offchainlabs/epoch-committer/journal"
	"github.com/offchainlabs/epoch-committer/orchestrator"
	"github.com/offchainlabs/epoch-committer/publisher"
	"github.com/offchainlabs/epoch-committer/redislock"
	"github.com/offchainlabs/epoch-committer/snapshotclient"
	"github.com/offchainlabs/epoch-committer/util/redisutil"
)

// Committer owns the connections behind an orchestrator.
type Committer struct {
	Backend      *snapshotclient.Client
	Distributor  *distributor.Distributor
	Journal      *journal.Journal
	Orchestrator *orchestrator.Orchestrator

	chain *ethclient.Client
	redis redis.UniversalClient
}

// NewCommitter connects every component config enables. The wallet is
// opened once, after the chain id is known.
func NewCommitter(ctx context.Context, config *CommitterConfig, pathResolver func(string) string) (*Committer, error) {
	c := &Committer{}
	success := false
	defer func() {
		if !success {
			c.Close()
		}
	}()

	c.Backend = snapshotclient.NewClient(func() *snapshotclient.Config { return &config.Backend })
	if err := c.Backend.Start(ctx); err != nil {
		return nil, err
	}

	var err error
	c.chain, err = ethclient.DialContext(ctx, config.Chain.URL)
	if err != nil {
		return nil, commitment.Transportf(err, "dialing chain %s", config.Chain.URL)
	}
	chainId, err := c.chain.ChainID(ctx)
	if err != nil {
		return nil, commitment.Transportf(err, "reading chain id from %s", config.Chain.URL)
	}
	if config.Chain.ID != 0 && chainId.Uint64() != config.Chain.ID {
		return nil, errors.Errorf("chain endpoint reports chain id %v, configured %d", chainId, config.Chain.ID)
	}
	txOpts, err := util.OpenWallet("admin", &config.Wallet, chainId, pathResolver)
	if err != nil {
		return nil, err
	}
	c.Distributor = distributor.New(func() *distributor.Config { return &config.Chain }, c.chain, txOpts)

	var locker publisher.Locker
	if config.RedisLock.URL != "" {
		c.redis, err = redisutil.RedisClientFromURL(config.RedisLock.URL)
		if err != nil {
			return nil, errors.Wrap(err, "redis lock")
		}
		lock, err := redislock.NewEpochLock(c.redis, func() *redislock.Config { return &config.RedisLock })
		if err != nil {
			return nil, err
		}
		log.Info("using redis epoch lock", "id", lock.Id())
		locker = lock
	}

	var j orchestrator.Journal
	if config.Journal.Enable {
		journalConfig := config.Journal
		if journalConfig.Directory != "" {
			journalConfig.Directory = pathResolver(journalConfig.Directory)
		}
		c.Journal, err = journal.Open(&journalConfig)
		if err != nil {
			return nil, err
		}
		j = c.Journal
	}

	c.Orchestrator = orchestrator.New(
		func() *orchestrator.Config { return &config.Orchestrator },
		c.Backend,
		c.Backend,
		publisher.New(c.Distributor, locker),
		j,
	)
	success = true
	return c, nil
}

func (c *Committer) Close() {
	if c.Backend != nil {
		c.Backend.Close()
	}
	if c.chain != nil {
		c.chain.Close()
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			log.Warn("error closing redis client", "err", err)
		}
	}
	if c.Journal != nil {
		if err := c.Journal.Close(); err != nil {
			log.Warn("error closing journal", "err", err)
		}
	}
}
