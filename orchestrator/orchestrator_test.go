// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package orchestrator

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/offchainlabs/epoch-committer/commitment"
	"github.com/offchainlabs/epoch-committer/distributor"
	"github.com/offchainlabs/epoch-committer/distributor/chaintest"
	"github.com/offchainlabs/epoch-committer/journal"
	"github.com/offchainlabs/epoch-committer/publisher"
	"github.com/offchainlabs/epoch-committer/snapshotclient"
	"github.com/offchainlabs/epoch-committer/snapshotclient/backendtest"
	"github.com/offchainlabs/epoch-committer/util/testhelpers"
)

type harness struct {
	backend     *backendtest.Backend
	chain       *chaintest.Chain
	distributor distributor.Config
	snapshots   *snapshotclient.Client
	publisher   *publisher.Publisher
	journal     *journal.Journal
	orch        *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{backend: backendtest.New()}

	clientConfig := snapshotclient.TestConfig
	clientConfig.URL = h.backend.Start(t)
	client := snapshotclient.NewClient(func() *snapshotclient.Config { return &clientConfig })
	require.NoError(t, client.Start(context.Background()))
	t.Cleanup(client.Close)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	chainID := big.NewInt(421614)
	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	require.NoError(t, err)
	h.distributor = distributor.TestConfig
	h.distributor.URL = "in-process"
	h.distributor.ProgramAddress = testhelpers.RandomAddress().Hex()
	h.distributor.DistributorAddress = testhelpers.RandomAddress().Hex()
	h.chain = chaintest.New(chainID, h.distributor.Program(), opts.From)
	d := distributor.New(func() *distributor.Config { return &h.distributor }, h.chain, opts)

	h.journal, err = journal.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { h.journal.Close() })

	h.snapshots = client
	h.publisher = publisher.New(d, nil)
	config := TestConfig
	h.orch = New(func() *Config { return &config }, client, client, h.publisher, h.journal)
	return h
}

func (h *harness) onChain(epoch uint64) *commitment.Record {
	return h.chain.Record(h.distributor.Distributor(), epoch)
}

func requirePhaseError(t *testing.T, err error, epoch uint64, phase commitment.Phase, sentinel error) {
	t.Helper()
	var phaseErr *commitment.PhaseError
	require.True(t, errors.As(err, &phaseErr), "expected PhaseError, got %v", err)
	require.Equal(t, epoch, phaseErr.Epoch)
	require.Equal(t, phase, phaseErr.Phase)
	require.ErrorIs(t, err, sentinel)
}

func TestCommitPublishesOnce(t *testing.T) {
	ctx := context.Background()
	logs := testhelpers.InitTestLog(t, log.LevelInfo)
	h := newHarness(t)
	root := testhelpers.RandomHash()
	h.backend.Plan(1, root, 3)

	res, err := h.orch.Commit(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, commitment.Published, res.State)
	require.Equal(t, root, res.Metadata.Root)
	require.False(t, res.Receipt.AlreadyCommitted)
	require.Equal(t, 1, h.chain.Sent())
	require.True(t, h.onChain(1).Matches(res.Metadata))

	res, err = h.orch.Commit(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, commitment.Published, res.State)
	require.True(t, res.Receipt.AlreadyCommitted)
	require.Equal(t, 1, h.chain.Sent(), "rerun must not send a transaction")
	require.Equal(t, 2, h.backend.Calls("buildEpochSnapshot"))

	entry, err := h.journal.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, commitment.Published, entry.CommitmentState())
	require.Equal(t, root, entry.Root)
	require.NotZero(t, entry.TxHash)
	require.True(t, logs.WasLogged("^epoch committed$"))
	require.True(t, logs.WasLogged("^epoch root already committed$"))
}

func TestZeroLeavesEpochIsPublished(t *testing.T) {
	h := newHarness(t)
	h.backend.Plan(6, testhelpers.RandomHash(), 0)

	res, err := h.orch.Commit(context.Background(), 6)
	require.NoError(t, err)
	require.Equal(t, uint64(0), h.onChain(6).LeavesCount)
	require.Equal(t, uint64(0), res.Metadata.LeavesCount)
}

func TestConflictingRootIsNotOverwritten(t *testing.T) {
	h := newHarness(t)
	h.backend.Plan(2, testhelpers.RandomHash(), 5)
	existing := testhelpers.RandomHash()
	h.chain.SetRecord(h.distributor.Distributor(), 2, existing, 5)

	res, err := h.orch.Commit(context.Background(), 2)
	requirePhaseError(t, err, 2, commitment.PhasePublish, commitment.ErrConsistency)
	require.Equal(t, commitment.Failed, res.State)
	require.Equal(t, 0, h.chain.Sent())
	require.Equal(t, existing, h.onChain(2).Root)
}

func TestMalformedMetadataNeverReachesPublisher(t *testing.T) {
	root := testhelpers.RandomHash().Hex()
	cases := map[string]map[string]interface{}{
		"short root":       {"epoch": "0x3", "root": "0x" + root[4:], "leaves_count": "0x1", "locked": true},
		"long root":        {"epoch": "0x3", "root": root + "00", "leaves_count": "0x1", "locked": true},
		"negative leaves":  {"epoch": "0x3", "root": root, "leaves_count": -4, "locked": true},
		"garbage leaves":   {"epoch": "0x3", "root": root, "leaves_count": "lots", "locked": true},
		"missing leaves":   {"epoch": "0x3", "root": root, "locked": true},
		"mismatched epoch": {"epoch": "0x4", "root": root, "leaves_count": "0x1", "locked": true},
	}
	for name, meta := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.backend.Plan(3, testhelpers.RandomHash(), 1)
			h.backend.SetRawMeta(3, meta)

			res, err := h.orch.Commit(context.Background(), 3)
			requirePhaseError(t, err, 3, commitment.PhaseFetch, commitment.ErrMalformedData)
			require.Nil(t, res.Metadata)
			require.Equal(t, 0, h.chain.Sent())
			require.Nil(t, h.onChain(3))
			require.Equal(t, 1, h.backend.Calls("getEpochMeta"), "malformed data is not retried")
		})
	}
}

func TestPollingWaitsForLockedSnapshot(t *testing.T) {
	h := newHarness(t)
	h.backend.Plan(4, testhelpers.RandomHash(), 9)
	h.backend.SetNotReady(4, TestConfig.PollAttempts-1)

	res, err := h.orch.Commit(context.Background(), 4)
	require.NoError(t, err)
	require.Equal(t, commitment.Published, res.State)
	require.Equal(t, TestConfig.PollAttempts, h.backend.Calls("getEpochMeta"))
}

func TestPollingIsBounded(t *testing.T) {
	h := newHarness(t)
	h.backend.Plan(5, testhelpers.RandomHash(), 9)
	h.backend.SetNotReady(5, 1000)

	res, err := h.orch.Commit(context.Background(), 5)
	requirePhaseError(t, err, 5, commitment.PhaseFetch, commitment.ErrPollTimeout)
	require.ErrorIs(t, err, commitment.ErrNotFound)
	require.Equal(t, "timeout", commitment.Kind(err))
	require.Equal(t, TestConfig.PollAttempts, h.backend.Calls("getEpochMeta"))
	require.Equal(t, commitment.Failed, res.State)
	require.Equal(t, 0, h.chain.Sent())
}

func TestBuildRejected(t *testing.T) {
	h := newHarness(t)

	logs := testhelpers.InitTestLog(t, log.LevelInfo)
	res, err := h.orch.Commit(context.Background(), 7)
	requirePhaseError(t, err, 7, commitment.PhaseBuild, commitment.ErrRejected)
	require.True(t, logs.WasLogged("^epoch commitment failed$"))
	require.Equal(t, commitment.Failed, res.State)
	require.Equal(t, 0, h.backend.Calls("getEpochMeta"))

	entry, err := h.journal.Get(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, commitment.Failed, entry.CommitmentState())
	require.Equal(t, string(commitment.PhaseBuild), entry.Phase)
	require.False(t, entry.HasMetadata)
	require.Contains(t, entry.Err, "no claimable rewards")
}

func TestCommitBuiltSkipsBuild(t *testing.T) {
	h := newHarness(t)
	h.backend.Put(8, testhelpers.RandomHash(), 2)

	_, err := h.orch.CommitBuilt(context.Background(), 8)
	require.NoError(t, err)
	require.Equal(t, 0, h.backend.Calls("buildEpochSnapshot"))
	require.Equal(t, 1, h.chain.Sent())
}

func TestJournalDetectsChangedSnapshot(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	earlier := &journal.Entry{
		Epoch:       9,
		HasMetadata: true,
		Root:        testhelpers.RandomHash(),
		LeavesCount: 4,
		State:       uint8(commitment.Failed),
		Phase:       string(commitment.PhasePublish),
	}
	require.NoError(t, h.journal.Put(ctx, nil, earlier))
	h.backend.Plan(9, testhelpers.RandomHash(), 4)

	_, err := h.orch.Commit(ctx, 9)
	requirePhaseError(t, err, 9, commitment.PhaseFetch, commitment.ErrConsistency)
	require.Equal(t, 0, h.chain.Sent())

	entry, err := h.journal.Get(ctx, 9)
	require.NoError(t, err)
	require.Equal(t, earlier.Root, entry.Root, "journal keeps the first metadata it saw")
	require.Equal(t, commitment.Failed, entry.CommitmentState())
}

type failingJournal struct {
	*journal.Journal
}

func (f failingJournal) Get(context.Context, uint64) (*journal.Entry, error) {
	return nil, errors.New("leveldb: closed")
}

func TestUnreadableJournalFailsFetch(t *testing.T) {
	h := newHarness(t)
	h.backend.Plan(11, testhelpers.RandomHash(), 2)
	config := TestConfig
	orch := New(func() *Config { return &config }, h.snapshots, h.snapshots, h.publisher, failingJournal{h.journal})

	res, err := orch.Commit(context.Background(), 11)
	requirePhaseError(t, err, 11, commitment.PhaseFetch, commitment.ErrTransport)
	require.Contains(t, err.Error(), "leveldb: closed")
	require.Equal(t, commitment.Failed, res.State)
	require.Equal(t, 0, h.chain.Sent())
}

type stubPublisher struct {
	receipt  *publisher.Receipt
	readBack *commitment.Record
	readErr  error
}

func (s *stubPublisher) Publish(_ context.Context, md *commitment.Metadata) (*publisher.Receipt, error) {
	return s.receipt, nil
}

func (s *stubPublisher) ReadBack(context.Context, uint64) (*commitment.Record, error) {
	return s.readBack, s.readErr
}

type stubSnapshots struct {
	md *commitment.Metadata
}

func (s *stubSnapshots) Build(context.Context, uint64) error { return nil }

func (s *stubSnapshots) Fetch(context.Context, uint64) (*commitment.Metadata, error) {
	return s.md, nil
}

func TestVerifyPhase(t *testing.T) {
	md := &commitment.Metadata{Epoch: 10, Root: testhelpers.RandomHash(), LeavesCount: 1, Locked: true}
	snapshots := &stubSnapshots{md: md}
	config := TestConfig
	for name, tc := range map[string]struct {
		pub      *stubPublisher
		sentinel error
	}{
		"absent":    {&stubPublisher{receipt: &publisher.Receipt{Epoch: 10}}, commitment.ErrConsistency},
		"different": {&stubPublisher{receipt: &publisher.Receipt{Epoch: 10}, readBack: &commitment.Record{Epoch: 10, Root: md.Root, LeavesCount: 2}}, commitment.ErrConsistency},
		"read fail": {&stubPublisher{receipt: &publisher.Receipt{Epoch: 10}, readErr: commitment.ErrTransport}, commitment.ErrTransport},
	} {
		orch := New(func() *Config { return &config }, snapshots, snapshots, tc.pub, nil)
		res, err := orch.Commit(context.Background(), 10)
		require.Error(t, err, name)
		requirePhaseError(t, err, 10, commitment.PhaseVerify, tc.sentinel)
		require.Equal(t, commitment.Failed, res.State, name)
	}
}
