// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

// Package publisher writes an epoch's snapshot root to the distributor
// contract exactly once, reading the chain before and after every write.
package publisher

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"github.com/offchainlabs/epoch-committer/commitment"
	"github.com/offchainlabs/epoch-committer/distributor"
)

// ErrLockHeld is a commitment.ErrTransport: another committer is publishing
// the same epoch and a later attempt may find it done.
var ErrLockHeld = fmt.Errorf("%w: epoch locked by another committer", commitment.ErrTransport)

type Chain interface {
	EpochRoot(ctx context.Context, epoch uint64) (*commitment.Record, error)
	Update(ctx context.Context, rec *commitment.Record) (*distributor.Submission, error)
}

type Locker interface {
	AttemptLock(ctx context.Context, epoch uint64) (bool, error)
	Release(ctx context.Context, epoch uint64)
}

// Receipt describes a successful Publish. AlreadyCommitted is set when the
// chain held the record without this call's transaction being confirmed.
type Receipt struct {
	Epoch            uint64
	TxHash           common.Hash
	BlockNumber      uint64
	AlreadyCommitted bool
}

type Publisher struct {
	chain Chain
	lock  Locker
}

// New returns a publisher writing through chain. lock may be nil.
func New(chain Chain, lock Locker) *Publisher {
	return &Publisher{chain: chain, lock: lock}
}

func (p *Publisher) ReadBack(ctx context.Context, epoch uint64) (*commitment.Record, error) {
	return p.chain.EpochRoot(ctx, epoch)
}

func mismatch(md *commitment.Metadata, onChain *commitment.Record, when string) error {
	return commitment.Inconsistentf("epoch %d %s: chain has root %v leaves %d, snapshot has root %v leaves %d",
		md.Epoch, when, onChain.Root, onChain.LeavesCount, md.Root, md.LeavesCount)
}

// Publish commits md to the chain. An equal existing record is success
// without a transaction and a different one is a consistency error. At most
// one transaction is sent per call.
func (p *Publisher) Publish(ctx context.Context, md *commitment.Metadata) (*Receipt, error) {
	epoch := md.Epoch
	if p.lock != nil {
		locked, err := p.lock.AttemptLock(ctx, epoch)
		if err != nil {
			return nil, commitment.Transportf(err, "locking epoch %d", epoch)
		}
		if !locked {
			return nil, errors.Wrapf(ErrLockHeld, "epoch %d", epoch)
		}
		defer p.lock.Release(context.WithoutCancel(ctx), epoch)
	}

	existing, err := p.chain.EpochRoot(ctx, epoch)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if !existing.Matches(md) {
			return nil, mismatch(md, existing, "before publishing")
		}
		log.Info("epoch root already committed", "epoch", epoch, "root", md.Root, "leaves", md.LeavesCount)
		return &Receipt{Epoch: epoch, AlreadyCommitted: true}, nil
	}

	sub, err := p.chain.Update(ctx, md.Record())
	if err != nil {
		if errors.Is(err, distributor.ErrAlreadySet) || errors.Is(err, distributor.ErrTxReverted) || errors.Is(err, distributor.ErrUnconfirmed) {
			return p.resolve(ctx, md, err)
		}
		return nil, err
	}
	if sub.Event != nil && !sub.Event.Matches(md) {
		return nil, mismatch(md, sub.Event, "in update event")
	}

	written, err := p.chain.EpochRoot(ctx, epoch)
	if err != nil {
		return nil, err
	}
	if written == nil {
		return nil, commitment.Inconsistentf("epoch %d: record absent after tx %v was mined", epoch, sub.TxHash)
	}
	if !written.Matches(md) {
		return nil, mismatch(md, written, "after publishing")
	}
	log.Info("published epoch root", "epoch", epoch, "root", md.Root, "leaves", md.LeavesCount, "tx", sub.TxHash, "block", sub.BlockNumber)
	return &Receipt{
		Epoch:       epoch,
		TxHash:      sub.TxHash,
		BlockNumber: sub.BlockNumber,
	}, nil
}

// resolve decides the outcome of an update the chain refused or did not
// confirm by reading the epoch's record back.
func (p *Publisher) resolve(ctx context.Context, md *commitment.Metadata, updateErr error) (*Receipt, error) {
	onChain, err := p.chain.EpochRoot(ctx, md.Epoch)
	if err != nil {
		return nil, fmt.Errorf("%w (reading back after: %v)", err, updateErr)
	}
	if onChain == nil {
		if errors.Is(updateErr, distributor.ErrAlreadySet) {
			return nil, commitment.Inconsistentf("epoch %d: contract reported the root set but no record exists: %v", md.Epoch, updateErr)
		}
		return nil, updateErr
	}
	if !onChain.Matches(md) {
		return nil, mismatch(md, onChain, "after concurrent write")
	}
	log.Info("epoch root committed concurrently", "epoch", md.Epoch, "root", md.Root, "updateErr", updateErr)
	return &Receipt{Epoch: md.Epoch, AlreadyCommitted: true}, nil
}
