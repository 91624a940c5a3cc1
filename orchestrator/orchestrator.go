// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

// Package orchestrator moves one epoch from an unbuilt snapshot to a root
// verified on-chain.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/offchainlabs/epoch-committer/commitment"
	"github.com/offchainlabs/epoch-committer/journal"
	"github.com/offchainlabs/epoch-committer/publisher"
	"github.com/offchainlabs/epoch-committer/util/retry"
)

var (
	commitStartedCounter     = metrics.NewRegisteredCounter("epochcommitter/commit/started", nil)
	commitPublishedCounter   = metrics.NewRegisteredCounter("epochcommitter/commit/published", nil)
	commitIdempotentCounter  = metrics.NewRegisteredCounter("epochcommitter/commit/already_committed", nil)
	fetchAttemptsCounter     = metrics.NewRegisteredCounter("epochcommitter/fetch/attempts", nil)
	commitDurationTimer      = metrics.NewRegisteredTimer("epochcommitter/commit/duration", nil)
	journalReadFailedCounter = metrics.NewRegisteredCounter("epochcommitter/journal/read_failed", nil)
)

func failureCounter(phase commitment.Phase) metrics.Counter {
	return metrics.GetOrRegisterCounter(fmt.Sprintf("epochcommitter/commit/failed/%s", phase), nil)
}

type Builder interface {
	Build(ctx context.Context, epoch uint64) error
}

type Fetcher interface {
	Fetch(ctx context.Context, epoch uint64) (*commitment.Metadata, error)
}

type Publisher interface {
	Publish(ctx context.Context, md *commitment.Metadata) (*publisher.Receipt, error)
	ReadBack(ctx context.Context, epoch uint64) (*commitment.Record, error)
}

type Journal interface {
	Get(ctx context.Context, epoch uint64) (*journal.Entry, error)
	Put(ctx context.Context, prev *journal.Entry, next *journal.Entry) error
}

// Result is what one run learned about an epoch. On failure it holds the
// state reached before the failing phase.
type Result struct {
	Epoch    uint64
	State    commitment.State
	Metadata *commitment.Metadata
	Receipt  *publisher.Receipt
	Duration time.Duration
}

type Orchestrator struct {
	config    ConfigFetcher
	builder   Builder
	fetcher   Fetcher
	publisher Publisher
	journal   Journal
}

// New wires the phases together. j may be nil to disable the journal.
func New(config ConfigFetcher, builder Builder, fetcher Fetcher, pub Publisher, j Journal) *Orchestrator {
	return &Orchestrator{
		config:    config,
		builder:   builder,
		fetcher:   fetcher,
		publisher: pub,
		journal:   j,
	}
}

// Commit builds, fetches, publishes and verifies epoch. The returned error is
// a *commitment.PhaseError.
func (o *Orchestrator) Commit(ctx context.Context, epoch uint64) (*Result, error) {
	return o.run(ctx, epoch, true)
}

// CommitBuilt is Commit for an epoch whose snapshot is known to exist.
func (o *Orchestrator) CommitBuilt(ctx context.Context, epoch uint64) (*Result, error) {
	return o.run(ctx, epoch, false)
}

func (o *Orchestrator) run(ctx context.Context, epoch uint64, build bool) (*Result, error) {
	start := time.Now()
	commitStartedCounter.Inc(1)
	res := &Result{Epoch: epoch, State: commitment.Uncommitted}
	fail := func(phase commitment.Phase, err error) (*Result, error) {
		res.Duration = time.Since(start)
		prevState := res.State
		res.State = commitment.Failed
		failureCounter(phase).Inc(1)
		o.record(ctx, res, phase, err)
		log.Error("epoch commitment failed", "epoch", epoch, "phase", phase, "reached", prevState, "kind", commitment.Kind(err), "err", err)
		return res, &commitment.PhaseError{Epoch: epoch, Phase: phase, Err: err}
	}

	if build {
		if err := o.builder.Build(ctx, epoch); err != nil {
			return fail(commitment.PhaseBuild, err)
		}
	}
	res.State = commitment.SnapshotRequested
	log.Debug("snapshot requested", "epoch", epoch, "built", build)

	md, err := o.awaitSnapshot(ctx, epoch)
	if err != nil {
		return fail(commitment.PhaseFetch, err)
	}
	res.Metadata = md
	if err := o.checkJournal(ctx, md); err != nil {
		return fail(commitment.PhaseFetch, err)
	}
	res.State = commitment.SnapshotReady
	o.record(ctx, res, commitment.PhaseFetch, nil)
	log.Info("snapshot ready", "epoch", epoch, "root", md.Root, "leaves", md.LeavesCount)

	receipt, err := o.publisher.Publish(ctx, md)
	if err != nil {
		return fail(commitment.PhasePublish, err)
	}
	res.Receipt = receipt

	onChain, err := o.publisher.ReadBack(ctx, epoch)
	if err != nil {
		return fail(commitment.PhaseVerify, err)
	}
	if onChain == nil {
		return fail(commitment.PhaseVerify, commitment.Inconsistentf("epoch %d: no record on-chain after publishing", epoch))
	}
	if !onChain.Matches(md) {
		return fail(commitment.PhaseVerify, commitment.Inconsistentf("epoch %d: chain has %v, snapshot has %v", epoch, onChain, md))
	}

	res.State = commitment.Published
	res.Duration = time.Since(start)
	commitDurationTimer.Update(res.Duration)
	if receipt.AlreadyCommitted {
		commitIdempotentCounter.Inc(1)
	} else {
		commitPublishedCounter.Inc(1)
	}
	o.record(ctx, res, commitment.PhaseVerify, nil)
	log.Info("epoch committed", "epoch", epoch, "root", md.Root, "leaves", md.LeavesCount, "tx", receipt.TxHash, "alreadyCommitted", receipt.AlreadyCommitted, "elapsed", res.Duration)
	return res, nil
}

// awaitSnapshot polls the fetcher while the snapshot is not ready, backing
// off between attempts.
func (o *Orchestrator) awaitSnapshot(ctx context.Context, epoch uint64) (*commitment.Metadata, error) {
	config := o.config()
	md, err := retry.Bounded(ctx, config.backoff(), commitment.IsRetryable, func(attempt int) (*commitment.Metadata, error) {
		fetchAttemptsCounter.Inc(1)
		return o.fetcher.Fetch(ctx, epoch)
	})
	if errors.Is(err, retry.ErrAttemptsExhausted) {
		return nil, fmt.Errorf("%w: epoch %d after %d attempts: %w", commitment.ErrPollTimeout, epoch, config.PollAttempts, err)
	}
	return md, err
}

// checkJournal refuses metadata that differs from what an earlier run
// fetched for the same epoch, and metadata it cannot compare.
func (o *Orchestrator) checkJournal(ctx context.Context, md *commitment.Metadata) error {
	if o.journal == nil {
		return nil
	}
	entry, err := o.journal.Get(ctx, md.Epoch)
	if err != nil {
		journalReadFailedCounter.Inc(1)
		return commitment.Transportf(err, "reading journal for epoch %d", md.Epoch)
	}
	prior := entry.Metadata()
	if prior == nil {
		return nil
	}
	if prior.Root != md.Root || prior.LeavesCount != md.LeavesCount {
		return commitment.Inconsistentf("epoch %d snapshot changed since an earlier run: was root %v leaves %d, now root %v leaves %d",
			md.Epoch, prior.Root, prior.LeavesCount, md.Root, md.LeavesCount)
	}
	return nil
}

// record mirrors res into the journal. Journal failures are logged only.
func (o *Orchestrator) record(ctx context.Context, res *Result, phase commitment.Phase, runErr error) {
	if o.journal == nil {
		return
	}
	prev, err := o.journal.Get(ctx, res.Epoch)
	if err != nil {
		log.Warn("failed to read journal", "epoch", res.Epoch, "err", err)
		return
	}
	next := &journal.Entry{Epoch: res.Epoch}
	if prev != nil {
		*next = *prev
	}
	// Metadata that contradicts the journal is never recorded over it.
	if res.Metadata != nil && (prev == nil || !prev.HasMetadata) {
		next.HasMetadata = true
		next.Root = res.Metadata.Root
		next.LeavesCount = res.Metadata.LeavesCount
	}
	next.State = uint8(res.State)
	next.Phase = string(phase)
	next.Err = ""
	if runErr != nil {
		next.Err = runErr.Error()
	}
	if res.Receipt != nil && res.Receipt.TxHash != (common.Hash{}) {
		next.TxHash = res.Receipt.TxHash
	}
	next.UpdatedAt = uint64(time.Now().UnixMilli())
	if err := o.journal.Put(ctx, prev, next); err != nil {
		log.Warn("failed to update journal", "epoch", res.Epoch, "state", res.State, "err", err)
	}
}
